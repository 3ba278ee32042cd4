// README: Spatial candidate index backed by Redis GEO.
package dispatch

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

const geoKeyPrefix = "dispatch:responders:%s"

// GeoStore keeps responder positions in one Redis GEO set per category.
// It backs both the dispatch index and the responder location mirror.
type GeoStore struct {
	redis *redis.Client
}

func NewGeoStore(redis *redis.Client) *GeoStore {
	return &GeoStore{redis: redis}
}

func (s *GeoStore) Add(ctx context.Context, id types.ID, cat responder.Category, pos types.Point) error {
	return s.redis.GeoAdd(ctx, geoKey(cat), &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *GeoStore) Remove(ctx context.Context, id types.ID, cat responder.Category) error {
	return s.redis.ZRem(ctx, geoKey(cat), string(id)).Err()
}

func (s *GeoStore) Nearby(ctx context.Context, origin types.Point, radiusKm float64, cat responder.Category) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, geoKey(cat), &redis.GeoSearchQuery{
		Longitude:  origin.Lng,
		Latitude:   origin.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func geoKey(cat responder.Category) string {
	return fmt.Sprintf(geoKeyPrefix, string(cat))
}
