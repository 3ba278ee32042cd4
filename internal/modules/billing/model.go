// README: Financial order aggregate and service-kind definitions.
package billing

import (
	"strings"
	"time"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type ServiceKind string

const (
	// KindPrescription is a paid medical consultation whose deliverable is
	// an issued prescription document.
	KindPrescription ServiceKind = "prescription"
	// KindTransportFare is distance-priced transport.
	KindTransportFare ServiceKind = "transport_fare"
	// KindItemSupply covers the optional item manifest of a request.
	KindItemSupply ServiceKind = "item_supply"
)

func ParseServiceKind(s string) (ServiceKind, bool) {
	switch ServiceKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPrescription:
		return KindPrescription, true
	case KindTransportFare:
		return KindTransportFare, true
	case KindItemSupply:
		return KindItemSupply, true
	}
	return "", false
}

type Order struct {
	ID            types.ID
	PayerID       types.ID
	PayeeCategory responder.Category
	RequestID     *types.ID
	Kind          ServiceKind
	Amount        types.Money
	Status        Status
	Distributed   bool
	// TxRef is the external settlement confirmation reference.
	TxRef *string
	// DeliverableRef points at the issued artifact (e.g. a prescription
	// document). Its existence gates order completion.
	DeliverableRef *string

	CreatedAt     time.Time
	PaidAt        *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	DistributedAt *time.Time
}

// Settled reports whether the order is past the point where verify calls
// should mutate it.
func (o *Order) Settled() bool {
	return o.Status != StatusPending
}
