// README: Order store backed by PostgreSQL.
package billing

import (
	"context"
	"database/sql"
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

const orderColumns = `
        id, payer_id, payee_category, request_id, kind, amount, currency,
        status, distributed, tx_ref, deliverable_ref,
        created_at, paid_at, completed_at, cancelled_at, distributed_at`

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO orders (
            id, payer_id, payee_category, request_id, kind, amount, currency,
            status, distributed, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(o.ID), string(o.PayerID), string(o.PayeeCategory),
		toStringPtr(o.RequestID), string(o.Kind),
		o.Amount.Amount, o.Amount.Currency,
		string(o.Status), o.Distributed, o.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) FindActive(ctx context.Context, requestID types.ID, kind ServiceKind, payee responder.Category) (*Order, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE request_id = $1 AND kind = $2 AND payee_category = $3
          AND status IN ('pending','paid','completed')
        ORDER BY created_at DESC
        LIMIT 1`,
		string(requestID), string(kind), string(payee),
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) ListByRequest(ctx context.Context, requestID types.ID) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE request_id = $1
        ORDER BY created_at ASC`, string(requestID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PGStore) ListDeliverables(ctx context.Context, requestID types.ID, kind ServiceKind, since *time.Time) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE request_id = $1 AND kind = $2
          AND deliverable_ref IS NOT NULL
          AND status != 'cancelled'
          AND ($3::timestamptz IS NULL OR created_at >= $3)
        ORDER BY created_at ASC`,
		string(requestID), string(kind), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PGStore) MarkPaid(ctx context.Context, id types.ID, txRef string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = 'paid', tx_ref = $1, paid_at = $2
        WHERE id = $3 AND status = 'pending'`,
		txRef, at, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AttachDeliverable(ctx context.Context, id types.ID, ref string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET deliverable_ref = $1,
            status = CASE WHEN status = 'paid' THEN 'completed' ELSE status END,
            completed_at = CASE WHEN status = 'paid' THEN $2 ELSE completed_at END
        WHERE id = $3 AND status != 'cancelled'`,
		ref, at, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) CancelActiveByKind(ctx context.Context, requestID types.ID, kind ServiceKind, at time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = 'cancelled', cancelled_at = $1
        WHERE request_id = $2 AND kind = $3 AND status != 'cancelled'`,
		at, string(requestID), string(kind),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) SettlePaid(ctx context.Context, requestID types.ID, at time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = 'completed', distributed = TRUE,
            completed_at = COALESCE(completed_at, $1), distributed_at = $1
        WHERE request_id = $2 AND status = 'paid' AND NOT distributed`,
		at, string(requestID),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) CountPaidUnissued(ctx context.Context, requestID types.ID, kind ServiceKind, since *time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM orders
        WHERE request_id = $1 AND kind = $2
          AND status = 'paid' AND deliverable_ref IS NULL
          AND ($3::timestamptz IS NULL OR created_at >= $3)`,
		string(requestID), string(kind), since,
	).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var requestID, txRef, deliverable sql.NullString
	var paidAt, completedAt, cancelledAt, distributedAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.PayerID, &o.PayeeCategory, &requestID, &o.Kind,
		&o.Amount.Amount, &o.Amount.Currency,
		&o.Status, &o.Distributed, &txRef, &deliverable,
		&o.CreatedAt, &paidAt, &completedAt, &cancelledAt, &distributedAt,
	)
	if err != nil {
		return nil, err
	}

	if requestID.Valid {
		id := types.ID(requestID.String)
		o.RequestID = &id
	}
	if txRef.Valid {
		o.TxRef = &txRef.String
	}
	if deliverable.Valid {
		o.DeliverableRef = &deliverable.String
	}
	o.PaidAt = toTimePtr(paidAt)
	o.CompletedAt = toTimePtr(completedAt)
	o.CancelledAt = toTimePtr(cancelledAt)
	o.DistributedAt = toTimePtr(distributedAt)
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*Order, error) {
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
