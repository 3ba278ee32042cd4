// README: In-process publish/subscribe hub keyed by request and user.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lifeline/internal/types"
)

// ConnectionsRecorder tracks the live-connection gauge.
type ConnectionsRecorder interface {
	RecordEventPublished(eventType string)
	ConnectionsChanged(delta int)
}

// Hub routes events to live connections. Two channel kinds exist:
// per-request (requester plus assigned responders viewing one request) and
// per-user (every live connection of one identity). Delivery is
// fire-and-forget: a slow or absent subscriber loses the event.
type Hub struct {
	mu        sync.RWMutex
	byRequest map[RequestKey]map[*Conn]struct{}
	byUser    map[UserKey]map[*Conn]struct{}
	log       *logrus.Logger
	metrics   ConnectionsRecorder
}

func NewHub(log *logrus.Logger, metrics ConnectionsRecorder) *Hub {
	return &Hub{
		byRequest: make(map[RequestKey]map[*Conn]struct{}),
		byUser:    make(map[UserKey]map[*Conn]struct{}),
		log:       log,
		metrics:   metrics,
	}
}

func (h *Hub) JoinRequest(c *Conn, key RequestKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byRequest[key] == nil {
		h.byRequest[key] = make(map[*Conn]struct{})
	}
	h.byRequest[key][c] = struct{}{}
}

func (h *Hub) LeaveRequest(c *Conn, key RequestKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byRequest[key], c)
	if len(h.byRequest[key]) == 0 {
		delete(h.byRequest, key)
	}
}

func (h *Hub) JoinUser(c *Conn, key UserKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[key] == nil {
		h.byUser[key] = make(map[*Conn]struct{})
	}
	h.byUser[key][c] = struct{}{}
}

func (h *Hub) LeaveUser(c *Conn, key UserKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byUser[key], c)
	if len(h.byUser[key]) == 0 {
		delete(h.byUser, key)
	}
}

// register is called when a connection comes up; its user channel is joined
// implicitly so direct notices reach every live device.
func (h *Hub) register(c *Conn) {
	h.JoinUser(c, UserKey(c.UserID))
	if h.metrics != nil {
		h.metrics.ConnectionsChanged(1)
	}
}

// unregister drops the connection from every channel it joined and closes
// its send channel so the write pump exits right away instead of idling
// until the next ping fails.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	for key, set := range h.byRequest {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byRequest, key)
		}
	}
	for key, set := range h.byUser {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, key)
		}
	}
	c.closeOnce.Do(func() { close(c.send) })
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ConnectionsChanged(-1)
	}
}

// PublishToRequest delivers the event to every subscriber of the request
// channel. Best effort: delivery failures never propagate to the caller.
func (h *Hub) PublishToRequest(key RequestKey, e Event) {
	e.RequestID = types.ID(key)
	h.mu.RLock()
	n := h.deliver(h.byRequest[key], e)
	h.mu.RUnlock()
	if h.metrics != nil && n > 0 {
		h.metrics.RecordEventPublished(string(e.Type))
	}
}

// PublishToUser delivers a direct notice to every live connection of one
// identity.
func (h *Hub) PublishToUser(key UserKey, e Event) {
	h.mu.RLock()
	n := h.deliver(h.byUser[key], e)
	h.mu.RUnlock()
	if h.metrics != nil && n > 0 {
		h.metrics.RecordEventPublished(string(e.Type))
	}
}

// deliver must run with h.mu held so a concurrent unregister cannot close a
// send channel mid-loop.
func (h *Hub) deliver(conns map[*Conn]struct{}, e Event) int {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.WithError(err).Error("event marshal failed")
		return 0
	}
	for c := range conns {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; the event is dropped rather than blocking
			// the publisher.
			h.log.WithField("conn_id", c.ID).Debug("send buffer full, event dropped")
		}
	}
	return len(conns)
}
