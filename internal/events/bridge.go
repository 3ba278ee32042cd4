// README: Bridge adapting domain-side publisher contracts onto the hub.
package events

import (
	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/request"
	"lifeline/internal/types"
)

// Bridge translates module-level publish calls into hub events. It
// satisfies the Publisher interfaces declared by the request, dispatch,
// billing, and responder modules.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) PublishStatusUpdate(r *request.Request, from request.Status, actorID types.ID) {
	data := map[string]any{
		"from":   string(from),
		"status": string(r.Status),
	}
	if r.CancelReason != nil {
		data["reason"] = *r.CancelReason
	}
	b.hub.PublishToRequest(RequestKey(r.ID), Event{
		Type:   TypeStatusUpdate,
		UserID: actorID,
		Data:   data,
	})
	b.hub.PublishToUser(UserKey(r.RequesterID), Event{
		Type:      TypeStatusUpdate,
		RequestID: r.ID,
		Data:      data,
	})
}

func (b *Bridge) PublishAssigned(r *request.Request, responderID types.ID, distanceKm float64) {
	data := map[string]any{
		"status":       string(request.StatusAssigned),
		"category":     string(r.Category),
		"responder_id": string(responderID),
		"distance_km":  distanceKm,
	}
	b.hub.PublishToRequest(RequestKey(r.ID), Event{Type: TypeStatusUpdate, Data: data})
	b.hub.PublishToUser(UserKey(r.RequesterID), Event{Type: TypeStatusUpdate, RequestID: r.ID, Data: data})
	b.hub.PublishToUser(UserKey(responderID), Event{Type: TypeStatusUpdate, RequestID: r.ID, Data: data})
}

func (b *Bridge) PublishPaymentUpdate(o *billing.Order, event string) {
	data := map[string]any{
		"event":    event,
		"order_id": string(o.ID),
		"kind":     string(o.Kind),
		"status":   string(o.Status),
		"amount":   o.Amount.Amount,
		"currency": o.Amount.Currency,
	}
	if o.DeliverableRef != nil {
		data["deliverable_ref"] = *o.DeliverableRef
	}
	if o.RequestID != nil {
		b.hub.PublishToRequest(RequestKey(*o.RequestID), Event{Type: TypePaymentUpdate, Data: data})
	}
	b.hub.PublishToUser(UserKey(o.PayerID), Event{Type: TypePaymentUpdate, Data: data})
}

func (b *Bridge) PublishLocation(requestID, responderID types.ID, pos types.Point) {
	b.hub.PublishToRequest(RequestKey(requestID), Event{
		Type:   TypeLocationUpdate,
		UserID: responderID,
		Data:   map[string]any{"lng": pos.Lng, "lat": pos.Lat},
	})
}

// PublishChat relays a chat message posted through the HTTP API.
func (b *Bridge) PublishChat(requestID, fromID types.ID, text string) {
	b.hub.PublishToRequest(RequestKey(requestID), Event{
		Type:   TypeChatMessage,
		UserID: fromID,
		Data:   map[string]any{"text": text},
	})
}
