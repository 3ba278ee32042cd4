// README: Nearest-candidate selection with deterministic tie-break.
package dispatch

import (
	"lifeline/internal/geo"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

// SelectNearest picks the eligible candidate closest to the origin by
// great-circle distance. The backing index may or may not return candidates
// sorted, so every distance is computed here. Equal distances break on
// responder ID ascending, which keeps the choice deterministic regardless
// of input order.
func SelectNearest(eligible []responder.Profile, origin types.Point) (responder.Profile, float64) {
	best := eligible[0]
	bestDist := geo.HaversineKm(origin, best.Location)
	for _, c := range eligible[1:] {
		d := geo.HaversineKm(origin, c.Location)
		if d < bestDist || (d == bestDist && c.ID < best.ID) {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}
