// README: Distance-priced fare rule.
package billing

import "math"

// FareAmount prices a distance-based service: travel up to freeKm costs
// nothing, every additional kilometre (rounded up) costs perKmRate. The
// amount is always re-derivable server-side from the stored distance, so a
// client-supplied figure is never trusted for fare-kind orders.
func FareAmount(distanceKm, freeKm float64, perKmRate int64) int64 {
	if distanceKm <= freeKm {
		return 0
	}
	extra := math.Ceil(distanceKm - freeKm)
	return int64(extra) * perKmRate
}
