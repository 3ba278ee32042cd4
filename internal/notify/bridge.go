// README: Bridge adapting domain notifier contracts onto the dispatcher.
package notify

import (
	"context"

	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/request"
	"lifeline/internal/types"
)

// Bridge satisfies the Notifier interfaces declared by the request,
// dispatch, and billing modules. Recipient tokens are the user
// identifiers; the delivery mechanism resolves them to device tokens.
type Bridge struct {
	dispatcher Dispatcher
}

func NewBridge(dispatcher Dispatcher) *Bridge {
	return &Bridge{dispatcher: dispatcher}
}

func (b *Bridge) NotifyAssignment(ctx context.Context, r *request.Request, responderID types.ID) error {
	return b.dispatcher.Send(ctx, []string{string(r.RequesterID), string(responderID)}, KindAssignment, map[string]any{
		"request_id": string(r.ID),
		"category":   string(r.Category),
		"urgency":    string(r.Urgency),
	})
}

func (b *Bridge) NotifyStatus(ctx context.Context, r *request.Request, to request.Status) error {
	recipients := []string{string(r.RequesterID)}
	for _, id := range []*types.ID{r.MedicalID, r.VolunteerID, r.TransportID} {
		if id != nil {
			recipients = append(recipients, string(*id))
		}
	}
	return b.dispatcher.Send(ctx, recipients, KindStatus, map[string]any{
		"request_id": string(r.ID),
		"status":     string(to),
	})
}

func (b *Bridge) NotifyPayment(ctx context.Context, o *billing.Order) error {
	payload := map[string]any{
		"order_id": string(o.ID),
		"kind":     string(o.Kind),
		"amount":   o.Amount.Amount,
		"currency": o.Amount.Currency,
	}
	if o.RequestID != nil {
		payload["request_id"] = string(*o.RequestID)
	}
	return b.dispatcher.Send(ctx, []string{string(o.PayerID)}, KindPayment, payload)
}
