// README: Shared identifier and coordinate value objects.
package types

// ID is an opaque entity identifier (requests, responders, orders, users).
type ID string

// Point is a geographic coordinate. Longitude comes first to match the
// (lng, lat) storage order used everywhere in the persistence layer.
type Point struct {
	Lng float64
	Lat float64
}

// IsZero reports whether the point is the (0,0) sentinel, which the
// dispatch layer treats as "no location known".
func (p Point) IsZero() bool {
	return p.Lng == 0 && p.Lat == 0
}
