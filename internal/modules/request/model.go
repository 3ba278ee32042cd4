// README: Emergency request aggregate, urgency tiers, and status definitions.
package request

import (
	"strings"
	"time"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusEnRoute   Status = "en_route"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusAssigned:
		return StatusAssigned, true
	case StatusEnRoute:
		return StatusEnRoute, true
	case StatusArrived:
		return StatusArrived, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return "", false
}

type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

func ParseUrgency(s string) (Urgency, bool) {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyCritical:
		return UrgencyCritical, true
	case UrgencyHigh:
		return UrgencyHigh, true
	case UrgencyMedium:
		return UrgencyMedium, true
	case UrgencyLow:
		return UrgencyLow, true
	}
	return "", false
}

// Rank orders urgency tiers, higher is more urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

type PaymentStatus string

const (
	PaymentNone        PaymentStatus = "none"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentDistributed PaymentStatus = "distributed"
)

type Item struct {
	Name string
	Qty  int
}

type Request struct {
	ID          types.ID
	RequesterID types.ID
	Location    types.Point
	Description string
	Urgency     Urgency
	Category    responder.Category

	Items             []Item
	EstimatedItemCost *types.Money
	// EstimatedDistanceKm feeds the fare rule for transport requests.
	EstimatedDistanceKm *float64

	PaymentStatus PaymentStatus

	// One assignment slot per responder category, at most one each.
	MedicalID   *types.ID
	VolunteerID *types.ID
	TransportID *types.ID

	Status        Status
	StatusVersion int

	CreatedAt    time.Time
	AssignedAt   *time.Time
	EnRouteAt    *time.Time
	ArrivedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

// Assignment returns the slot for the given category.
func (r *Request) Assignment(cat responder.Category) *types.ID {
	switch cat {
	case responder.CategoryMedical:
		return r.MedicalID
	case responder.CategoryVolunteer:
		return r.VolunteerID
	case responder.CategoryTransport:
		return r.TransportID
	}
	return nil
}

// IsAssignedTo reports whether the actor occupies any assignment slot.
func (r *Request) IsAssignedTo(id types.ID) bool {
	for _, cat := range responder.Categories() {
		if a := r.Assignment(cat); a != nil && *a == id {
			return true
		}
	}
	return false
}

// Terminal reports whether the request has reached a final state.
func (r *Request) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// AllowedTransitions represents the request lifecycle as code. Cancellation
// is reachable from every non-terminal state; everything else is linear.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusEnRoute, StatusCancelled},
	StatusEnRoute:  {StatusArrived, StatusCancelled},
	StatusArrived:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
