// README: Responder service handles duty, location, and unavailability updates.
package responder

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"lifeline/internal/types"
)

var ErrNotFound = errors.New("responder not found")

type Store interface {
	Get(ctx context.Context, id types.ID) (*Profile, error)
	GetMany(ctx context.Context, ids []types.ID) ([]Profile, error)
	CountByCategory(ctx context.Context, cat Category) (int, error)
	SetDuty(ctx context.Context, id types.ID, onDuty bool) error
	SetLocation(ctx context.Context, id types.ID, pos types.Point) error
	AddUnavailableDate(ctx context.Context, id types.ID, day time.Time) error
	RemoveUnavailableDate(ctx context.Context, id types.ID, day time.Time) error
	// ActiveAssignments counts requests currently holding this responder in
	// a slot with status in {assigned, en_route, arrived}. The count is
	// derived on demand, never stored, so it cannot drift.
	ActiveAssignments(ctx context.Context, id types.ID) (int, error)
	// ActiveRequestIDs lists the requests behind ActiveAssignments.
	ActiveRequestIDs(ctx context.Context, id types.ID) ([]types.ID, error)
}

// GeoIndex mirrors position updates into the spatial candidate index.
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, cat Category, pos types.Point) error
	Remove(ctx context.Context, id types.ID, cat Category) error
}

// LocationPublisher fans a responder's position out to the live channels of
// the requests it is currently assigned to.
type LocationPublisher interface {
	PublishLocation(requestID, responderID types.ID, pos types.Point)
}

type Service struct {
	store  Store
	index  GeoIndex
	events LocationPublisher
	log    *logrus.Logger
}

func NewService(store Store, index GeoIndex, events LocationPublisher, log *logrus.Logger) *Service {
	return &Service{store: store, index: index, events: events, log: log}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return s.store.Get(ctx, id)
}

// ActiveAssignments exposes the derived workload count.
func (s *Service) ActiveAssignments(ctx context.Context, id types.ID) (int, error) {
	return s.store.ActiveAssignments(ctx, id)
}

// SetDuty accepts any legacy duty-flag representation and stores a strict
// boolean.
func (s *Service) SetDuty(ctx context.Context, id types.ID, raw any) error {
	return s.store.SetDuty(ctx, id, ParseDutyFlag(raw))
}

// UpdateLocation persists the position, refreshes the geo index, and pings
// every request channel the responder is currently serving. Index and
// fan-out failures are logged and swallowed; the persisted position is the
// source of truth.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, pos types.Point) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetLocation(ctx, id, pos); err != nil {
		return err
	}

	if s.index != nil {
		if pos.IsZero() {
			err = s.index.Remove(ctx, id, p.Category)
		} else {
			err = s.index.Add(ctx, id, p.Category, pos)
		}
		if err != nil {
			s.log.WithError(err).WithField("responder_id", id).Warn("geo index update failed")
		}
	}

	if s.events != nil && !pos.IsZero() {
		ids, err := s.store.ActiveRequestIDs(ctx, id)
		if err != nil {
			s.log.WithError(err).Warn("active request lookup failed")
			return nil
		}
		for _, reqID := range ids {
			s.events.PublishLocation(reqID, id, pos)
		}
	}
	return nil
}

func (s *Service) AddUnavailableDate(ctx context.Context, id types.ID, day time.Time) error {
	return s.store.AddUnavailableDate(ctx, id, day.UTC().Truncate(24*time.Hour))
}

func (s *Service) RemoveUnavailableDate(ctx context.Context, id types.ID, day time.Time) error {
	return s.store.RemoveUnavailableDate(ctx, id, day.UTC().Truncate(24*time.Hour))
}
