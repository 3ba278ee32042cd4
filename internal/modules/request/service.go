// README: Request service implements lifecycle transitions and their side effects.
package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("request not found")
	ErrUnauthorized = errors.New("actor not entitled to this transition")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("request state conflict")
)

// Actor roles accepted on transitions.
const (
	RoleRequester = "requester"
	RoleResponder = "responder"
	RoleAdmin     = "admin"
)

type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id types.ID) (*Request, error)
	ListByRequester(ctx context.Context, requesterID types.ID) ([]*Request, error)
	ListPendingByCategory(ctx context.Context, cat responder.Category) ([]*Request, error)
	// UpdateStatus is a compare-and-swap on (status, status_version). It
	// stamps the timestamp for the target status; a transition to en_route
	// also backstops a missing assigned_at.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error)
}

// Assigner runs the dispatch pipeline for a freshly created or re-opened
// request. Implemented by the dispatch module.
type Assigner interface {
	Assign(ctx context.Context, r *Request) (DispatchOutcome, error)
}

// DispatchOutcome reports how an assignment attempt ended. An unassigned
// outcome is informational, never an error: the request itself was recorded.
type DispatchOutcome struct {
	Assigned    bool
	ResponderID types.ID
	DistanceKm  float64
	Reasons     []string
}

// Settlement is the order/payment binding consumed on completion.
// Implemented by the billing module.
type Settlement interface {
	// GateCompletion rejects completion while a paid prescription order
	// created after assignedAt still lacks its deliverable.
	GateCompletion(ctx context.Context, requestID types.ID, cat responder.Category, assignedAt *time.Time) error
	// SettleForRequest completes and distributes every paid, undistributed
	// order tied to the request, returning how many were settled.
	SettleForRequest(ctx context.Context, requestID types.ID, at time.Time) (int, error)
}

// Publisher fans status changes out to live subscribers. Best effort.
type Publisher interface {
	PublishStatusUpdate(r *Request, from Status, actorID types.ID)
}

// Notifier is the external push-notification collaborator.
type Notifier interface {
	NotifyStatus(ctx context.Context, r *Request, to Status) error
}

// DistanceEstimator supplies a travel-distance estimate when the caller did
// not provide one. Optional.
type DistanceEstimator interface {
	EstimateKm(ctx context.Context, origin, dest types.Point) (float64, error)
}

// MetricsSink records settlement volume.
type MetricsSink interface {
	RecordOrdersSettled(n int)
}

type Service struct {
	store      Store
	dispatcher Assigner
	billing    Settlement
	events     Publisher
	notifier   Notifier
	estimator  DistanceEstimator
	metrics    MetricsSink
	log        *logrus.Logger
}

func NewService(store Store, dispatcher Assigner, billing Settlement, events Publisher, notifier Notifier, estimator DistanceEstimator, metrics MetricsSink, log *logrus.Logger) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		billing:    billing,
		events:     events,
		notifier:   notifier,
		estimator:  estimator,
		metrics:    metrics,
		log:        log,
	}
}

type CreateCommand struct {
	RequesterID types.ID
	Location    types.Point
	Description string
	Urgency     Urgency
	Category    responder.Category

	Items             []Item
	EstimatedItemCost *types.Money
	// Destination is optional; with an estimator configured it yields an
	// EstimatedDistanceKm for transport requests that arrive without one.
	Destination         *types.Point
	EstimatedDistanceKm *float64
}

// CreateResult pairs the recorded request with its dispatch outcome.
// Recording always succeeds on valid input; assignment may not.
type CreateResult struct {
	Request  *Request
	Dispatch DispatchOutcome
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if cmd.RequesterID == "" {
		return nil, ErrBadRequest
	}
	if cmd.Location.IsZero() {
		return nil, ErrBadRequest
	}
	if cmd.Urgency.Rank() == 0 {
		return nil, ErrBadRequest
	}

	distKm := cmd.EstimatedDistanceKm
	if distKm == nil && cmd.Category == responder.CategoryTransport &&
		cmd.Destination != nil && s.estimator != nil {
		if km, err := s.estimator.EstimateKm(ctx, cmd.Location, *cmd.Destination); err == nil {
			distKm = &km
		} else {
			s.log.WithError(err).Warn("distance estimate failed, fare will use stored distance only")
		}
	}

	r := &Request{
		ID:                  types.ID(uuid.NewString()),
		RequesterID:         cmd.RequesterID,
		Location:            cmd.Location,
		Description:         cmd.Description,
		Urgency:             cmd.Urgency,
		Category:            cmd.Category,
		Items:               cmd.Items,
		EstimatedItemCost:   cmd.EstimatedItemCost,
		EstimatedDistanceKm: distKm,
		PaymentStatus:       PaymentNone,
		Status:              StatusPending,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	outcome, err := s.dispatcher.Assign(ctx, r)
	if err != nil {
		// The request is recorded; a failed assignment attempt leaves it
		// pending rather than failing the creation.
		s.log.WithError(err).WithField("request_id", r.ID).Error("assignment attempt failed")
		outcome = DispatchOutcome{Assigned: false, Reasons: []string{"assignment attempt failed, request remains pending"}}
	}

	updated, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Request: updated, Dispatch: outcome}, nil
}

// Redispatch re-runs assignment for an existing, non-terminal request. Only
// the requester, a currently assigned responder or an admin may force it,
// since reassignment cancels paid prescription orders.
func (s *Service) Redispatch(ctx context.Context, id, actorID types.ID, role string) (*CreateResult, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authorized(r, actorID, role) {
		return nil, ErrUnauthorized
	}
	if r.Terminal() {
		return nil, ErrInvalidState
	}
	outcome, err := s.dispatcher.Assign(ctx, r)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Request: updated, Dispatch: outcome}, nil
}

type UpdateCommand struct {
	RequestID types.ID
	ActorID   types.ID
	ActorRole string
	NewStatus Status
	// Reason is stored verbatim on cancellation.
	Reason string
}

func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateCommand) (*Request, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	if !s.authorized(r, cmd.ActorID, cmd.ActorRole) {
		return nil, ErrUnauthorized
	}
	if cmd.NewStatus == StatusAssigned {
		// Assignment is driven by the selector, never supplied by clients.
		return nil, ErrBadRequest
	}
	if !CanTransition(r.Status, cmd.NewStatus) {
		return nil, ErrInvalidState
	}

	if cmd.NewStatus == StatusCompleted && s.billing != nil {
		if err := s.billing.GateCompletion(ctx, r.ID, r.Category, r.AssignedAt); err != nil {
			return nil, err
		}
	}

	var reason *string
	if cmd.NewStatus == StatusCancelled {
		v := cmd.Reason
		reason = &v
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, cmd.NewStatus, r.StatusVersion, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	if cmd.NewStatus == StatusCompleted && s.billing != nil {
		if n, err := s.billing.SettleForRequest(ctx, r.ID, time.Now().UTC()); err != nil {
			s.log.WithError(err).WithField("request_id", r.ID).Error("settlement failed")
		} else if n > 0 {
			if s.metrics != nil {
				s.metrics.RecordOrdersSettled(n)
			}
			s.log.WithFields(logrus.Fields{"request_id": r.ID, "orders": n}).Info("orders settled")
		}
	}

	updated, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.PublishStatusUpdate(updated, r.Status, cmd.ActorID)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyStatus(ctx, updated, cmd.NewStatus); err != nil {
			s.log.WithError(err).Warn("status notification failed")
		}
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByRequester(ctx context.Context, requesterID types.ID) ([]*Request, error) {
	if requesterID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByRequester(ctx, requesterID)
}

func (s *Service) authorized(r *Request, actorID types.ID, role string) bool {
	if role == RoleAdmin {
		return true
	}
	if actorID == "" {
		return false
	}
	if actorID == r.RequesterID {
		return true
	}
	return r.IsAssignedTo(actorID)
}
