// README: Eligibility filter for raw spatial-index candidates.
package dispatch

import (
	"time"

	"lifeline/internal/modules/responder"
)

// Human-readable no-candidate diagnostics, surfaced to the caller when a
// request stays unassigned.
const (
	ReasonNoneExist      = "no responders of this category exist"
	ReasonNoneNearby     = "no responders of this category are located within the search radius"
	ReasonNoneAvailable  = "responders exist but none are on duty or validly located"
	ReasonAllUnavailable = "responders found but all are unavailable today"
	ReasonAllAtCapacity  = "responders found but all are at their assignment capacity"
)

// Eligible reduces raw candidates to assignable ones. The empty result is a
// valid outcome, not an error; the returned reason explains which stage
// emptied the pool.
//
// Rules, in order:
//  1. Candidates with the (0,0) location sentinel or an inactive account
//     are dropped.
//  2. On-duty candidates are preferred. Only when nobody is on duty does
//     the pool fall back to the remaining off-duty candidates, so
//     availability degrades gracefully instead of failing the request.
//  3. Candidates who blocked out today are dropped (day granularity).
//
// Workload never excludes a candidate here: duty status is the
// authoritative availability signal. The optional capacity policy is
// applied separately by the service.
func Eligible(candidates []responder.Profile, today time.Time) ([]responder.Profile, string) {
	var located []responder.Profile
	for _, c := range candidates {
		if !c.HasLocation() || !c.Active {
			continue
		}
		located = append(located, c)
	}
	if len(located) == 0 {
		return nil, ReasonNoneAvailable
	}

	var onDuty []responder.Profile
	for _, c := range located {
		if c.OnDuty {
			onDuty = append(onDuty, c)
		}
	}
	pool := located
	if len(onDuty) > 0 {
		pool = onDuty
	}

	var eligible []responder.Profile
	for _, c := range pool {
		if c.UnavailableOn(today) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil, ReasonAllUnavailable
	}
	return eligible, ""
}
