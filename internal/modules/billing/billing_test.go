// README: Billing tests (fare rule, duplicate suppression, verify idempotence, settlement).
package billing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"lifeline/internal/config"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

// ---------------------------------------------------------------------------
// Fare rule (pure function)
// ---------------------------------------------------------------------------

func TestFareAmount(t *testing.T) {
	const freeKm, rate = 5.0, 20

	cases := []struct {
		km   float64
		want int64
	}{
		{0, 0},
		{0.5, 0},
		{4.99, 0},
		{5, 0}, // inclusive boundary, still free
		{5.01, 20},
		{5.5, 20},
		{6, 20},
		{6.01, 40}, // ceil of excess km
		{10, 100},
		{12.3, 160},
		{55, 1000},
	}
	for _, tc := range cases {
		if got := FareAmount(tc.km, freeKm, rate); got != tc.want {
			t.Errorf("FareAmount(%.2f) = %d, want %d", tc.km, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// In-memory store mirroring the Postgres semantics
// ---------------------------------------------------------------------------

type memStore struct {
	mu sync.Mutex
	m  map[types.ID]*Order
}

func newMemStore() *memStore {
	return &memStore{m: make(map[types.ID]*Order)}
}

func (s *memStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.m[o.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) FindActive(_ context.Context, requestID types.ID, kind ServiceKind, payee responder.Category) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.m {
		if o.RequestID != nil && *o.RequestID == requestID &&
			o.Kind == kind && o.PayeeCategory == payee && o.Status != StatusCancelled {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListByRequest(_ context.Context, requestID types.ID) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.m {
		if o.RequestID != nil && *o.RequestID == requestID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListDeliverables(_ context.Context, requestID types.ID, kind ServiceKind, since *time.Time) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.m {
		if o.RequestID == nil || *o.RequestID != requestID || o.Kind != kind || o.DeliverableRef == nil {
			continue
		}
		if since != nil && o.CreatedAt.Before(*since) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) MarkPaid(_ context.Context, id types.ID, txRef string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.m[id]
	if !ok || o.Status != StatusPending {
		return false, nil
	}
	o.Status = StatusPaid
	o.TxRef = &txRef
	o.PaidAt = &at
	return true, nil
}

func (s *memStore) AttachDeliverable(_ context.Context, id types.ID, ref string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.m[id]
	if !ok || o.Status == StatusCancelled {
		return false, nil
	}
	o.DeliverableRef = &ref
	if o.Status == StatusPaid {
		o.Status = StatusCompleted
		o.CompletedAt = &at
	}
	return true, nil
}

func (s *memStore) CancelActiveByKind(_ context.Context, requestID types.ID, kind ServiceKind, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.m {
		if o.RequestID != nil && *o.RequestID == requestID && o.Kind == kind && o.Status != StatusCancelled {
			o.Status = StatusCancelled
			o.CancelledAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStore) SettlePaid(_ context.Context, requestID types.ID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.m {
		if o.RequestID != nil && *o.RequestID == requestID && o.Status == StatusPaid && !o.Distributed {
			o.Status = StatusCompleted
			o.CompletedAt = &at
			o.Distributed = true
			o.DistributedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountPaidUnissued(_ context.Context, requestID types.ID, kind ServiceKind, since *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.m {
		if o.RequestID == nil || *o.RequestID != requestID || o.Kind != kind {
			continue
		}
		if o.Status != StatusPaid || o.DeliverableRef != nil {
			continue
		}
		if since != nil && o.CreatedAt.Before(*since) {
			continue
		}
		n++
	}
	return n, nil
}

// backdate shifts an order's creation time, simulating history.
func (s *memStore) backdate(id types.ID, to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id].CreatedAt = to
}

// markerLog mirrors the request store's payment_status column, including the
// monotone guard on MarkPaymentPending.
type markerLog struct {
	mu     sync.Mutex
	status string
}

func (m *markerLog) set(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

func (m *markerLog) MarkPaymentPending(context.Context, types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == "" || m.status == "none" {
		m.status = "pending"
	}
	return nil
}

func (m *markerLog) ResetPaymentPending(context.Context, types.ID) error {
	m.set("pending")
	return nil
}

func (m *markerLog) MarkPaymentPaid(context.Context, types.ID) error {
	m.set("paid")
	return nil
}

func (m *markerLog) MarkPaymentDistributed(context.Context, types.ID) error {
	m.set("distributed")
	return nil
}

func (m *markerLog) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func testConfig() config.BillingConfig {
	return config.BillingConfig{Currency: "BDT", PerKmRate: 20, FreeKm: 5.0}
}

func newTestService(store Store, marker PaymentMarker) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(store, marker, nil, nil, testConfig(), log)
}

func reqID(s string) *types.ID {
	id := types.ID(s)
	return &id
}

// ---------------------------------------------------------------------------
// Service behaviour
// ---------------------------------------------------------------------------

func TestCreateOrderDuplicateSuppression(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	cmd := CreateOrderCommand{
		PayerID:       "u1",
		PayeeCategory: responder.CategoryMedical,
		RequestID:     reqID("req1"),
		Kind:          KindPrescription,
		Amount:        int64p(500),
	}
	first, created, err := svc.CreateOrder(ctx, cmd)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := svc.CreateOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("duplicate order was created")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned different order %s, want %s", second.ID, first.ID)
	}
}

func TestCreateOrderDifferentKindsCoexist(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	_, created, err := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if err != nil || !created {
		t.Fatalf("prescription: created=%v err=%v", created, err)
	}
	_, created, err = svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req1"), Kind: KindTransportFare, DistanceKm: float64p(8),
	})
	if err != nil || !created {
		t.Fatalf("fare alongside prescription: created=%v err=%v", created, err)
	}
}

func TestCreateFareOrderDerivesAmount(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	o, _, err := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req1"), Kind: KindTransportFare,
		DistanceKm: float64p(12.3),
		Amount:     int64p(999999), // caller-supplied amounts are ignored for fares
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Amount.Amount != 160 {
		t.Fatalf("fare = %d, want 160", o.Amount.Amount)
	}
	if o.Amount.Currency != "BDT" {
		t.Fatalf("currency = %s, want BDT", o.Amount.Currency)
	}

	// a fare with no distance has nothing to price
	_, _, err = svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req2"), Kind: KindTransportFare,
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("fare without distance: want ErrBadRequest, got %v", err)
	}
}

func TestCreateOrderMarksRequestPaymentPending(t *testing.T) {
	marker := &markerLog{}
	svc := newTestService(newMemStore(), marker)

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if marker.last() != "pending" {
		t.Fatalf("payment status = %q, want pending", marker.last())
	}
}

func TestLaterOrderKeepsPaidStatus(t *testing.T) {
	marker := &markerLog{}
	svc := newTestService(newMemStore(), marker)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_001"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if marker.last() != "paid" {
		t.Fatalf("payment status = %q, want paid", marker.last())
	}

	// a transport fare on the same request must not drag the request's
	// payment status back to pending
	_, created, err := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req1"), Kind: KindTransportFare, DistanceKm: float64p(8),
	})
	if err != nil || !created {
		t.Fatalf("fare: created=%v err=%v", created, err)
	}
	if marker.last() != "paid" {
		t.Fatalf("payment status = %q after fare order, want paid", marker.last())
	}
}

func TestVerifyPaymentIdempotent(t *testing.T) {
	marker := &markerLog{}
	svc := newTestService(newMemStore(), marker)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})

	paid, err := svc.VerifyPayment(ctx, o.ID, "tx_001")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if paid.Status != StatusPaid || paid.TxRef == nil || *paid.TxRef != "tx_001" {
		t.Fatalf("order after verify = %+v", paid)
	}
	if marker.last() != "paid" {
		t.Fatalf("payment status = %q, want paid", marker.last())
	}

	// second verify with a different reference must not overwrite the first
	again, err := svc.VerifyPayment(ctx, o.ID, "tx_002")
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if *again.TxRef != "tx_001" {
		t.Fatalf("tx_ref overwritten to %s", *again.TxRef)
	}

	_, err = svc.VerifyPayment(ctx, o.ID, "")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty tx_ref: want ErrBadRequest, got %v", err)
	}
}

func TestAttachDeliverable(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_001"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	done, err := svc.AttachDeliverable(ctx, o.ID, "rx_doc_42")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.DeliverableRef == nil || *done.DeliverableRef != "rx_doc_42" {
		t.Fatalf("deliverable ref = %v", done.DeliverableRef)
	}
}

func TestAttachDeliverableToCancelledOrder(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := store.CancelActiveByKind(ctx, "req1", KindPrescription, time.Now().UTC()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.AttachDeliverable(ctx, o.ID, "rx_doc_42"); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

// staleOrderStore serves reads from a snapshot taken before a concurrent
// cancellation landed, so the attach update fails while Get still looks fine.
type staleOrderStore struct {
	*memStore
	snapshot *Order
}

func (s *staleOrderStore) Get(context.Context, types.ID) (*Order, error) {
	cp := *s.snapshot
	return &cp, nil
}

func TestAttachDeliverableLosesRaceWithCancellation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_001"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	paid, _ := store.Get(ctx, o.ID)
	if _, err := store.CancelActiveByKind(ctx, "req1", KindPrescription, time.Now().UTC()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	racy := newTestService(&staleOrderStore{memStore: store, snapshot: paid}, nil)
	if _, err := racy.AttachDeliverable(ctx, o.ID, "rx_doc_42"); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	got, _ := store.Get(ctx, o.ID)
	if got.DeliverableRef != nil {
		t.Fatalf("deliverable attached to cancelled order")
	}
}

func TestReassignmentCancelsPrescriptionOrders(t *testing.T) {
	store := newMemStore()
	marker := &markerLog{}
	svc := newTestService(store, marker)
	ctx := context.Background()

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_001"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := svc.OnAssigned(ctx, "req1", responder.CategoryMedical, time.Now().UTC()); err != nil {
		t.Fatalf("on assigned: %v", err)
	}
	got, _ := svc.Get(ctx, o.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("order status = %s, want cancelled after reassignment", got.Status)
	}
	if marker.last() != "pending" {
		t.Fatalf("payment status = %q, want reset to pending", marker.last())
	}

	// non-medical reassignment leaves orders alone
	o2, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req2"), Kind: KindTransportFare, DistanceKm: float64p(3),
	})
	if err := svc.OnAssigned(ctx, "req2", responder.CategoryTransport, time.Now().UTC()); err != nil {
		t.Fatalf("on assigned transport: %v", err)
	}
	got2, _ := svc.Get(ctx, o2.ID)
	if got2.Status == StatusCancelled {
		t.Fatalf("transport order cancelled by reassignment rule")
	}
}

func TestGateCompletion(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	assignedAt := time.Now().UTC().Add(-time.Hour)

	// nothing ordered yet: gate open
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, &assignedAt); err != nil {
		t.Fatalf("empty gate: %v", err)
	}

	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})

	// pending order does not block
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, &assignedAt); err != nil {
		t.Fatalf("pending order blocked completion: %v", err)
	}

	// paid but unissued blocks
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_001"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, &assignedAt); !errors.Is(err, ErrUnissuedDeliverable) {
		t.Fatalf("want ErrUnissuedDeliverable, got %v", err)
	}

	// issuing the deliverable opens the gate
	if _, err := svc.AttachDeliverable(ctx, o.ID, "rx_doc_42"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, &assignedAt); err != nil {
		t.Fatalf("gate still closed after issuance: %v", err)
	}

	// the gate only applies to the medical category
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryVolunteer, &assignedAt); err != nil {
		t.Fatalf("volunteer gate: %v", err)
	}
}

func TestGateCompletionTemporalFence(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	// paid, unissued order from a previous assignment epoch
	o, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	if _, err := svc.VerifyPayment(ctx, o.ID, "tx_old"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	store.backdate(o.ID, time.Now().UTC().Add(-48*time.Hour))

	assignedAt := time.Now().UTC().Add(-time.Hour)
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, &assignedAt); err != nil {
		t.Fatalf("pre-assignment order leaked through the fence: %v", err)
	}

	// without an assignment timestamp the fence is off and the order counts
	if err := svc.GateCompletion(ctx, "req1", responder.CategoryMedical, nil); !errors.Is(err, ErrUnissuedDeliverable) {
		t.Fatalf("want ErrUnissuedDeliverable with no fence, got %v", err)
	}
}

func TestSettleForRequest(t *testing.T) {
	store := newMemStore()
	marker := &markerLog{}
	svc := newTestService(store, marker)
	ctx := context.Background()

	o1, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryMedical,
		RequestID: reqID("req1"), Kind: KindPrescription, Amount: int64p(500),
	})
	o2, _, _ := svc.CreateOrder(ctx, CreateOrderCommand{
		PayerID: "u1", PayeeCategory: responder.CategoryTransport,
		RequestID: reqID("req1"), Kind: KindTransportFare, DistanceKm: float64p(9),
	})
	if _, err := svc.VerifyPayment(ctx, o1.ID, "tx_1"); err != nil {
		t.Fatalf("verify o1: %v", err)
	}
	// o2 stays pending, must not be swept up

	n, err := svc.SettleForRequest(ctx, "req1", time.Now().UTC())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if n != 1 {
		t.Fatalf("settled %d orders, want 1", n)
	}
	if marker.last() != "distributed" {
		t.Fatalf("payment status = %q, want distributed", marker.last())
	}

	settled, _ := svc.Get(ctx, o1.ID)
	if !settled.Distributed || settled.Status != StatusCompleted {
		t.Fatalf("settled order = %+v", settled)
	}
	unpaid, _ := svc.Get(ctx, o2.ID)
	if unpaid.Distributed {
		t.Fatalf("pending order was distributed")
	}

	// settling again is a no-op
	if n, _ := svc.SettleForRequest(ctx, "req1", time.Now().UTC()); n != 0 {
		t.Fatalf("re-settle touched %d orders", n)
	}
}

func TestQuote(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	q := svc.Quote(7.2)
	if q.Amount != 60 || q.Currency != "BDT" {
		t.Fatalf("quote = %+v, want 60 BDT", q)
	}
	if q := svc.Quote(2); q.Amount != 0 {
		t.Fatalf("short trip quoted %d, want 0", q.Amount)
	}
}

func int64p(v int64) *int64 {
	return &v
}

func float64p(v float64) *float64 {
	return &v
}
