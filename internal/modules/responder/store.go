// README: Responder store backed by PostgreSQL.
package responder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifeline/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// activeStatuses are the request states that occupy a responder slot.
const activeStatuses = `'assigned','en_route','arrived'`

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, category, on_duty, lng, lat, active, updated_at
        FROM responders
        WHERE id = $1`, string(id),
	)
	p, err := scanProfile(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadUnavailability(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PGStore) GetMany(ctx context.Context, ids []types.ID) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
        SELECT id, category, on_duty, lng, lat, active, updated_at
        FROM responders
        WHERE id = ANY($1)`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadUnavailability(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) CountByCategory(ctx context.Context, cat Category) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM responders WHERE category = $1 AND active`, string(cat),
	).Scan(&n)
	return n, err
}

func (s *PGStore) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE responders SET on_duty = $1, updated_at = NOW() WHERE id = $2`,
		onDuty, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetLocation(ctx context.Context, id types.ID, pos types.Point) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE responders SET lng = $1, lat = $2, updated_at = NOW() WHERE id = $3`,
		pos.Lng, pos.Lat, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AddUnavailableDate(ctx context.Context, id types.ID, day time.Time) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO responder_unavailability (responder_id, day)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING`, string(id), day,
	)
	return err
}

func (s *PGStore) RemoveUnavailableDate(ctx context.Context, id types.ID, day time.Time) error {
	_, err := s.db.Exec(ctx, `
        DELETE FROM responder_unavailability
        WHERE responder_id = $1 AND day = $2`, string(id), day,
	)
	return err
}

func (s *PGStore) ActiveAssignments(ctx context.Context, id types.ID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM requests
        WHERE (medical_id = $1 OR volunteer_id = $1 OR transport_id = $1)
          AND status IN (`+activeStatuses+`)`, string(id),
	).Scan(&n)
	return n, err
}

func (s *PGStore) ActiveRequestIDs(ctx context.Context, id types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id FROM requests
        WHERE (medical_id = $1 OR volunteer_id = $1 OR transport_id = $1)
          AND status IN (`+activeStatuses+`)`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, types.ID(v))
	}
	return out, rows.Err()
}

func (s *PGStore) loadUnavailability(ctx context.Context, p *Profile) error {
	rows, err := s.db.Query(ctx, `
        SELECT day FROM responder_unavailability WHERE responder_id = $1`, string(p.ID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return err
		}
		p.UnavailableDates = append(p.UnavailableDates, day)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Category, &p.OnDuty, &p.Location.Lng, &p.Location.Lat, &p.Active, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
