// README: Request store backed by PostgreSQL with optimistic versioning.
package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const requestColumns = `
        id, requester_id, lng, lat, description, urgency, category,
        items, est_item_cost, est_item_cost_currency, est_distance_km,
        payment_status, medical_id, volunteer_id, transport_id,
        status, status_version, created_at, assigned_at, en_route_at,
        arrived_at, completed_at, cancelled_at, cancel_reason`

func (s *PGStore) Create(ctx context.Context, r *Request) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return err
	}
	var costAmount *int64
	var costCurrency *string
	if r.EstimatedItemCost != nil {
		costAmount = &r.EstimatedItemCost.Amount
		costCurrency = &r.EstimatedItemCost.Currency
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO requests (
            id, requester_id, lng, lat, description, urgency, category,
            items, est_item_cost, est_item_cost_currency, est_distance_km,
            payment_status, status, status_version, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7,
            $8, $9, $10, $11,
            $12, $13, $14, $15
        )`,
		string(r.ID), string(r.RequesterID),
		r.Location.Lng, r.Location.Lat,
		r.Description, string(r.Urgency), string(r.Category),
		items, costAmount, costCurrency, r.EstimatedDistanceKm,
		string(r.PaymentStatus), string(r.Status), r.StatusVersion, r.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, string(id))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PGStore) ListByRequester(ctx context.Context, requesterID types.ID) ([]*Request, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+requestColumns+` FROM requests
        WHERE requester_id = $1
        ORDER BY created_at DESC`, string(requesterID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PGStore) ListPendingByCategory(ctx context.Context, cat responder.Category) ([]*Request, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+requestColumns+` FROM requests
        WHERE category = $1 AND status = 'pending'
        ORDER BY created_at ASC`, string(cat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE requests
        SET status = $1,
            status_version = status_version + 1,
            assigned_at = CASE WHEN $1 = 'en_route' THEN COALESCE(assigned_at, NOW()) ELSE assigned_at END,
            en_route_at = CASE WHEN $1 = 'en_route' THEN NOW() ELSE en_route_at END,
            arrived_at = CASE WHEN $1 = 'arrived' THEN NOW() ELSE arrived_at END,
            completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
            cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
            cancel_reason = COALESCE($2, cancel_reason)
        WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), reason, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Assign sets the category slot and assignment timestamp under the same
// optimistic version check used for status transitions. A pending request
// advances to assigned; a request already past pending keeps its status
// (reassignment case).
func (s *PGStore) Assign(ctx context.Context, id types.ID, cat responder.Category, responderID types.ID, version int) (bool, error) {
	col, ok := slotColumn(cat)
	if !ok {
		return false, errors.New("unknown assignment slot")
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE requests
        SET `+col+` = $1,
            status = CASE WHEN status = 'pending' THEN 'assigned' ELSE status END,
            status_version = status_version + 1,
            assigned_at = NOW()
        WHERE id = $2 AND status_version = $3 AND status NOT IN ('completed','cancelled')`,
		string(responderID), string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Payment markers implement the billing module's PaymentMarker contract.

// MarkPaymentPending only lifts a request out of the initial payment state.
// A later order on a request that already reached paid or distributed must
// not drag the status backward, so the update is guarded on the current
// value and zero affected rows is not an error here.
func (s *PGStore) MarkPaymentPending(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
        UPDATE requests SET payment_status = $1 WHERE id = $2 AND payment_status = $3`,
		string(PaymentPending), string(id), string(PaymentNone),
	)
	return err
}

// ResetPaymentPending is the deliberate backward move used when a
// reassignment cancels the prior payment cycle.
func (s *PGStore) ResetPaymentPending(ctx context.Context, id types.ID) error {
	return s.setPaymentStatus(ctx, id, PaymentPending)
}

func (s *PGStore) MarkPaymentPaid(ctx context.Context, id types.ID) error {
	return s.setPaymentStatus(ctx, id, PaymentPaid)
}

func (s *PGStore) MarkPaymentDistributed(ctx context.Context, id types.ID) error {
	return s.setPaymentStatus(ctx, id, PaymentDistributed)
}

func (s *PGStore) setPaymentStatus(ctx context.Context, id types.ID, ps PaymentStatus) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE requests SET payment_status = $1 WHERE id = $2`,
		string(ps), string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func slotColumn(cat responder.Category) (string, bool) {
	switch cat {
	case responder.CategoryMedical:
		return "medical_id", true
	case responder.CategoryVolunteer:
		return "volunteer_id", true
	case responder.CategoryTransport:
		return "transport_id", true
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var items []byte
	var costAmount sql.NullInt64
	var costCurrency, medID, volID, traID, cancelReason sql.NullString
	var assignedAt, enRouteAt, arrivedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RequesterID, &r.Location.Lng, &r.Location.Lat,
		&r.Description, &r.Urgency, &r.Category,
		&items, &costAmount, &costCurrency, &r.EstimatedDistanceKm,
		&r.PaymentStatus, &medID, &volID, &traID,
		&r.Status, &r.StatusVersion, &r.CreatedAt, &assignedAt, &enRouteAt,
		&arrivedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &r.Items); err != nil {
			return nil, err
		}
	}
	if costAmount.Valid {
		m := types.Money{Amount: costAmount.Int64}
		if costCurrency.Valid {
			m.Currency = costCurrency.String
		}
		r.EstimatedItemCost = &m
	}
	r.MedicalID = toIDPtr(medID)
	r.VolunteerID = toIDPtr(volID)
	r.TransportID = toIDPtr(traID)
	r.AssignedAt = toTimePtr(assignedAt)
	r.EnRouteAt = toTimePtr(enRouteAt)
	r.ArrivedAt = toTimePtr(arrivedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		r.CancelReason = &cancelReason.String
	}
	return &r, nil
}

func scanRequests(rows pgx.Rows) ([]*Request, error) {
	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
