// README: Responder profile, category and duty-flag definitions.
package responder

import (
	"strings"
	"time"

	"lifeline/internal/types"
)

type Category string

const (
	CategoryMedical   Category = "medical"
	CategoryVolunteer Category = "volunteer"
	CategoryTransport Category = "transport"
)

// ParseCategory validates a caller-supplied category string.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryMedical:
		return CategoryMedical, true
	case CategoryVolunteer:
		return CategoryVolunteer, true
	case CategoryTransport:
		return CategoryTransport, true
	}
	return "", false
}

// Categories lists every responder category in slot order.
func Categories() []Category {
	return []Category{CategoryMedical, CategoryVolunteer, CategoryTransport}
}

type Profile struct {
	ID       types.ID
	Category Category
	OnDuty   bool
	Location types.Point
	Active   bool
	// UnavailableDates holds whole days the responder has blocked out,
	// truncated to midnight UTC.
	UnavailableDates []time.Time
	UpdatedAt        time.Time
}

// HasLocation reports whether the responder has a usable position.
// (0,0) is the legacy "never located" sentinel.
func (p Profile) HasLocation() bool {
	return !p.Location.IsZero()
}

// UnavailableOn compares at day granularity, ignoring time-of-day.
func (p Profile) UnavailableOn(day time.Time) bool {
	y, m, d := day.UTC().Date()
	for _, u := range p.UnavailableDates {
		uy, um, ud := u.UTC().Date()
		if uy == y && um == m && ud == d {
			return true
		}
	}
	return false
}

// ParseDutyFlag normalizes legacy duty-flag representations to a strict
// boolean. Older records stored the flag as a bool, the strings
// "true"/"false", or numeric 0/1; normalization happens once here at the
// write boundary so the rest of the engine only ever sees a bool.
func ParseDutyFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}
