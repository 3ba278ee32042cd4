// README: Websocket connection lifecycle and inbound control frames.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lifeline/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the gateway in front of this service.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is one live websocket subscriber. A connection may hold any number
// of request subscriptions plus its implicit user subscription.
type Conn struct {
	ID     string
	UserID types.ID

	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	// closeOnce guards the hub closing send on unregister.
	closeOnce sync.Once
}

// controlFrame is what clients send: subscription management plus the two
// relayed chatter kinds.
type controlFrame struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ServeWS upgrades the HTTP request and runs the connection until it drops.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID types.ID) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
	}
	hub.register(c)
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.hub.log.WithError(err).WithField("conn_id", c.ID).Debug("bad control frame")
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Conn) handleFrame(frame controlFrame) {
	switch frame.Action {
	case "join_request":
		c.hub.JoinRequest(c, RequestKey(frame.ID))
	case "leave_request":
		c.hub.LeaveRequest(c, RequestKey(frame.ID))
	case "join_user":
		// Only the connection's own identity may be joined explicitly;
		// other users' channels are not subscribable.
		if types.ID(frame.ID) == c.UserID {
			c.hub.JoinUser(c, UserKey(frame.ID))
		}
	case "leave_user":
		if types.ID(frame.ID) == c.UserID {
			c.hub.LeaveUser(c, UserKey(frame.ID))
		}
	case "chat":
		c.hub.PublishToRequest(RequestKey(frame.ID), Event{
			Type:   TypeChatMessage,
			UserID: c.UserID,
			Data:   map[string]any{"text": frame.Text},
		})
	case "typing":
		c.hub.PublishToRequest(RequestKey(frame.ID), Event{
			Type:   TypeTyping,
			UserID: c.UserID,
		})
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
