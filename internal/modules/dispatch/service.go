// README: Dispatch service orchestrates candidate search, filtering, and assignment.
package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lifeline/internal/config"
	"lifeline/internal/geo"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

// Index answers radius-bounded candidate queries. Result order is not
// guaranteed; the selector recomputes distances.
type Index interface {
	Add(ctx context.Context, id types.ID, cat responder.Category, pos types.Point) error
	Remove(ctx context.Context, id types.ID, cat responder.Category) error
	Nearby(ctx context.Context, origin types.Point, radiusKm float64, cat responder.Category) ([]types.ID, error)
}

type ResponderSource interface {
	Get(ctx context.Context, id types.ID) (*responder.Profile, error)
	GetMany(ctx context.Context, ids []types.ID) ([]responder.Profile, error)
	CountByCategory(ctx context.Context, cat responder.Category) (int, error)
	ActiveAssignments(ctx context.Context, id types.ID) (int, error)
}

// RequestStore is the slice of the request store dispatch needs.
type RequestStore interface {
	Assign(ctx context.Context, id types.ID, cat responder.Category, responderID types.ID, version int) (bool, error)
	ListPendingByCategory(ctx context.Context, cat responder.Category) ([]*request.Request, error)
}

// Binding is the order/payment side effect fired on every (re)assignment.
type Binding interface {
	OnAssigned(ctx context.Context, requestID types.ID, cat responder.Category, at time.Time) error
}

// Publisher fans assignment events out to live subscribers.
type Publisher interface {
	PublishAssigned(r *request.Request, responderID types.ID, distanceKm float64)
}

// Notifier is the external push-notification collaborator.
type Notifier interface {
	NotifyAssignment(ctx context.Context, r *request.Request, responderID types.ID) error
}

// MetricsSink records assignment outcomes.
type MetricsSink interface {
	RecordAssignment(category string)
	RecordUnassigned(reason string)
}

type Service struct {
	index      Index
	responders ResponderSource
	requests   RequestStore
	billing    Binding
	events     Publisher
	notifier   Notifier
	metrics    MetricsSink
	cfg        config.DispatchConfig
	log        *logrus.Logger
}

func NewService(index Index, responders ResponderSource, requests RequestStore, billing Binding, events Publisher, notifier Notifier, metrics MetricsSink, cfg config.DispatchConfig, log *logrus.Logger) *Service {
	return &Service{
		index:      index,
		responders: responders,
		requests:   requests,
		billing:    billing,
		events:     events,
		notifier:   notifier,
		metrics:    metrics,
		cfg:        cfg,
		log:        log,
	}
}

// Assign runs the full pipeline for one request: spatial query, eligibility
// filter, nearest selection, slot assignment, order binding, fan-out. An
// empty candidate pool is a normal outcome reported through the returned
// DispatchOutcome, never an error.
func (s *Service) Assign(ctx context.Context, r *request.Request) (request.DispatchOutcome, error) {
	ids, err := s.index.Nearby(ctx, r.Location, s.cfg.RadiusKm, r.Category)
	if err != nil {
		return request.DispatchOutcome{}, err
	}
	if len(ids) == 0 {
		total, err := s.responders.CountByCategory(ctx, r.Category)
		if err != nil {
			return request.DispatchOutcome{}, err
		}
		if total == 0 {
			return s.unassigned(r, ReasonNoneExist), nil
		}
		return s.unassigned(r, ReasonNoneNearby), nil
	}

	candidates, err := s.responders.GetMany(ctx, ids)
	if err != nil {
		return request.DispatchOutcome{}, err
	}

	eligible, reason := Eligible(candidates, time.Now().UTC())
	if len(eligible) == 0 {
		return s.unassigned(r, reason), nil
	}

	if s.cfg.CapacityLimit > 0 {
		eligible, err = s.underCapacity(ctx, eligible)
		if err != nil {
			return request.DispatchOutcome{}, err
		}
		if len(eligible) == 0 {
			return s.unassigned(r, ReasonAllAtCapacity), nil
		}
	}

	chosen, distKm := SelectNearest(eligible, r.Location)

	now := time.Now().UTC()
	ok, err := s.requests.Assign(ctx, r.ID, r.Category, chosen.ID, r.StatusVersion)
	if err != nil {
		return request.DispatchOutcome{}, err
	}
	if !ok {
		// A concurrent transition moved the request; the caller may retry
		// against the fresh version.
		return request.DispatchOutcome{}, request.ErrConflict
	}

	if s.billing != nil {
		if err := s.billing.OnAssigned(ctx, r.ID, r.Category, now); err != nil {
			s.log.WithError(err).WithField("request_id", r.ID).Error("order binding failed on assignment")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordAssignment(string(r.Category))
	}
	s.log.WithFields(logrus.Fields{
		"request_id":   r.ID,
		"responder_id": chosen.ID,
		"category":     r.Category,
		"distance_km":  distKm,
	}).Info("request assigned")

	if s.events != nil {
		s.events.PublishAssigned(r, chosen.ID, distKm)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyAssignment(ctx, r, chosen.ID); err != nil {
			s.log.WithError(err).Warn("assignment notification failed")
		}
	}

	return request.DispatchOutcome{
		Assigned:    true,
		ResponderID: chosen.ID,
		DistanceKm:  distKm,
	}, nil
}

// FeedItem is one nearby open request offered to a responder.
type FeedItem struct {
	Request    *request.Request
	DistanceKm float64
}

// Feed lists pending requests of the responder's category within the
// search radius, nearest first.
func (s *Service) Feed(ctx context.Context, responderID types.ID) ([]FeedItem, error) {
	p, err := s.responders.Get(ctx, responderID)
	if err != nil {
		return nil, err
	}
	if !p.HasLocation() {
		return nil, nil
	}

	pending, err := s.requests.ListPendingByCategory(ctx, p.Category)
	if err != nil {
		return nil, err
	}

	var items []FeedItem
	for _, r := range pending {
		d := geo.HaversineKm(p.Location, r.Location)
		if d > s.cfg.RadiusKm {
			continue
		}
		items = append(items, FeedItem{Request: r, DistanceKm: d})
	}
	geo.SortByDistance(items, func(it FeedItem) float64 { return it.DistanceKm })
	return items, nil
}

func (s *Service) unassigned(r *request.Request, reason string) request.DispatchOutcome {
	if s.metrics != nil {
		s.metrics.RecordUnassigned(reason)
	}
	s.log.WithFields(logrus.Fields{
		"request_id": r.ID,
		"category":   r.Category,
		"reason":     reason,
	}).Info("request left unassigned")
	return request.DispatchOutcome{Assigned: false, Reasons: []string{reason}}
}

func (s *Service) underCapacity(ctx context.Context, pool []responder.Profile) ([]responder.Profile, error) {
	var out []responder.Profile
	for _, c := range pool {
		n, err := s.responders.ActiveAssignments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if n >= s.cfg.CapacityLimit {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
