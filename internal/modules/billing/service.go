// README: Billing service binds financial orders to requests and settles them.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lifeline/internal/config"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

var (
	ErrBadRequest = errors.New("bad order request")
	ErrNotFound   = errors.New("order not found")
	ErrConflict   = errors.New("order state conflict")
	// ErrUnissuedDeliverable blocks completing a request while a paid
	// consultation has not produced its deliverable.
	ErrUnissuedDeliverable = errors.New("paid prescription order has no issued deliverable")
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	// FindActive returns the one order in {pending, paid, completed} for
	// the (request, kind, payee) tuple, or nil when none exists.
	FindActive(ctx context.Context, requestID types.ID, kind ServiceKind, payee responder.Category) (*Order, error)
	ListByRequest(ctx context.Context, requestID types.ID) ([]*Order, error)
	// ListDeliverables returns orders of the kind carrying a deliverable
	// reference, restricted to those created at or after since (temporal
	// fence) when since is non-nil.
	ListDeliverables(ctx context.Context, requestID types.ID, kind ServiceKind, since *time.Time) ([]*Order, error)
	MarkPaid(ctx context.Context, id types.ID, txRef string, at time.Time) (bool, error)
	AttachDeliverable(ctx context.Context, id types.ID, ref string, at time.Time) (bool, error)
	CancelActiveByKind(ctx context.Context, requestID types.ID, kind ServiceKind, at time.Time) (int, error)
	// SettlePaid flips every paid, undistributed order of the request to
	// completed + distributed, stamping the distribution time.
	SettlePaid(ctx context.Context, requestID types.ID, at time.Time) (int, error)
	CountPaidUnissued(ctx context.Context, requestID types.ID, kind ServiceKind, since *time.Time) (int, error)
}

// PaymentMarker mirrors order progress onto the owning request's payment
// status. Implemented by the request store. MarkPaymentPending is monotone:
// it only lifts a request out of the initial state and never moves an
// already paid or distributed request backward. ResetPaymentPending is the
// one deliberate backward move, reserved for the reassignment rule.
type PaymentMarker interface {
	MarkPaymentPending(ctx context.Context, requestID types.ID) error
	ResetPaymentPending(ctx context.Context, requestID types.ID) error
	MarkPaymentPaid(ctx context.Context, requestID types.ID) error
	MarkPaymentDistributed(ctx context.Context, requestID types.ID) error
}

// Publisher fans payment and deliverable changes out to live subscribers.
type Publisher interface {
	PublishPaymentUpdate(o *Order, event string)
}

// Notifier is the external push-notification collaborator.
type Notifier interface {
	NotifyPayment(ctx context.Context, o *Order) error
}

type Service struct {
	store    Store
	payments PaymentMarker
	events   Publisher
	notifier Notifier
	cfg      config.BillingConfig
	log      *logrus.Logger
}

func NewService(store Store, payments PaymentMarker, events Publisher, notifier Notifier, cfg config.BillingConfig, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		payments: payments,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

type CreateOrderCommand struct {
	PayerID       types.ID
	PayeeCategory responder.Category
	RequestID     *types.ID
	Kind          ServiceKind
	// Amount is honored for non-fare kinds; fare-kind orders always derive
	// their amount from DistanceKm.
	Amount     *int64
	DistanceKm *float64
}

// CreateOrder creates an order, or returns the existing active order for
// the same (request, kind, payee) tuple. The bool reports whether a new
// order was created.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, bool, error) {
	if cmd.PayerID == "" || cmd.Kind == "" {
		return nil, false, ErrBadRequest
	}

	if cmd.RequestID != nil {
		existing, err := s.store.FindActive(ctx, *cmd.RequestID, cmd.Kind, cmd.PayeeCategory)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	amount := int64(0)
	switch {
	case cmd.Kind == KindTransportFare:
		if cmd.DistanceKm == nil {
			return nil, false, ErrBadRequest
		}
		amount = FareAmount(*cmd.DistanceKm, s.cfg.FreeKm, s.cfg.PerKmRate)
	case cmd.Amount != nil:
		if *cmd.Amount < 0 {
			return nil, false, ErrBadRequest
		}
		amount = *cmd.Amount
	}

	o := &Order{
		ID:            types.ID(uuid.NewString()),
		PayerID:       cmd.PayerID,
		PayeeCategory: cmd.PayeeCategory,
		RequestID:     cmd.RequestID,
		Kind:          cmd.Kind,
		Amount:        types.Money{Amount: amount, Currency: s.cfg.Currency},
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, false, err
	}

	if cmd.RequestID != nil && s.payments != nil {
		if err := s.payments.MarkPaymentPending(ctx, *cmd.RequestID); err != nil {
			s.log.WithError(err).WithField("request_id", *cmd.RequestID).Warn("payment status update failed")
		}
	}
	s.publish(o, "order_created")
	return o, true, nil
}

// VerifyPayment records the external settlement confirmation. Calling it
// again for an already settled or cancelled order returns the current state
// without touching it or re-firing notifications.
func (s *Service) VerifyPayment(ctx context.Context, orderID types.ID, txRef string) (*Order, error) {
	if txRef == "" {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Settled() {
		return o, nil
	}

	ok, err := s.store.MarkPaid(ctx, o.ID, txRef, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with another verify call; the stored state wins.
		return s.store.Get(ctx, orderID)
	}

	o, err = s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RequestID != nil && s.payments != nil {
		if err := s.payments.MarkPaymentPaid(ctx, *o.RequestID); err != nil {
			s.log.WithError(err).WithField("request_id", *o.RequestID).Warn("payment status update failed")
		}
	}
	s.publish(o, "payment_confirmed")
	if s.notifier != nil {
		if err := s.notifier.NotifyPayment(ctx, o); err != nil {
			s.log.WithError(err).Warn("payment notification failed")
		}
	}
	return o, nil
}

// AttachDeliverable links the issued artifact to its order. A paid order
// becomes completed; this is what unlocks the completion gate.
func (s *Service) AttachDeliverable(ctx context.Context, orderID types.ID, ref string) (*Order, error) {
	if ref == "" {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return nil, ErrConflict
	}

	ok, err := s.store.AttachDeliverable(ctx, o.ID, ref, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// The order was cancelled between the read above and the update.
		return nil, ErrConflict
	}
	o, err = s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publish(o, "deliverable_issued")
	return o, nil
}

// OnAssigned applies the reassignment rule: a (re)assignment of the medical
// category cancels every prior non-cancelled prescription order for the
// request, forcing a fresh payment cycle, and resets the request's payment
// status. Identity of the new responder does not matter.
func (s *Service) OnAssigned(ctx context.Context, requestID types.ID, cat responder.Category, at time.Time) error {
	if cat != responder.CategoryMedical {
		return nil
	}
	n, err := s.store.CancelActiveByKind(ctx, requestID, KindPrescription, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	s.log.WithFields(logrus.Fields{"request_id": requestID, "cancelled": n}).Info("stale prescription orders cancelled on reassignment")
	if s.payments != nil {
		if err := s.payments.ResetPaymentPending(ctx, requestID); err != nil {
			s.log.WithError(err).Warn("payment status reset failed")
		}
	}
	return nil
}

// GateCompletion implements the medical completion guard: a paid
// prescription order created after the current assignment that has no
// deliverable blocks closure.
func (s *Service) GateCompletion(ctx context.Context, requestID types.ID, cat responder.Category, assignedAt *time.Time) error {
	if cat != responder.CategoryMedical {
		return nil
	}
	n, err := s.store.CountPaidUnissued(ctx, requestID, KindPrescription, assignedAt)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrUnissuedDeliverable
	}
	return nil
}

// SettleForRequest completes and distributes every paid, undistributed
// order of the request.
func (s *Service) SettleForRequest(ctx context.Context, requestID types.ID, at time.Time) (int, error) {
	n, err := s.store.SettlePaid(ctx, requestID, at)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if s.payments != nil {
		if err := s.payments.MarkPaymentDistributed(ctx, requestID); err != nil {
			s.log.WithError(err).Warn("payment status update failed")
		}
	}
	return n, nil
}

// CurrentDeliverables lists deliverable-carrying orders created under the
// current assignment; artifacts issued before the fence are invisible here.
func (s *Service) CurrentDeliverables(ctx context.Context, requestID types.ID, assignedAt *time.Time) ([]*Order, error) {
	return s.store.ListDeliverables(ctx, requestID, KindPrescription, assignedAt)
}

// Quote exposes the fare rule without creating an order.
func (s *Service) Quote(distanceKm float64) types.Money {
	return types.Money{
		Amount:   FareAmount(distanceKm, s.cfg.FreeKm, s.cfg.PerKmRate),
		Currency: s.cfg.Currency,
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByRequest(ctx context.Context, requestID types.ID) ([]*Order, error) {
	return s.store.ListByRequest(ctx, requestID)
}

func (s *Service) publish(o *Order, event string) {
	if s.events != nil {
		s.events.PublishPaymentUpdate(o, event)
	}
}
