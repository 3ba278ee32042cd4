// README: Responder model tests (duty normalization, unavailability dates).
package responder

import (
	"testing"
	"time"

	"lifeline/internal/types"
)

func TestParseDutyFlag(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"TRUE", true},
		{" true ", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"yes", true},
		{"on", true},
		{"off", false},
		{"", false},
		{"garbage", false},
		{1, true},
		{0, false},
		{1.0, true},
		{0.0, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := ParseDutyFlag(tc.in); got != tc.want {
			t.Errorf("ParseDutyFlag(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, s := range []string{"medical", "Medical", " TRANSPORT ", "volunteer"} {
		if _, ok := ParseCategory(s); !ok {
			t.Errorf("ParseCategory(%q) rejected valid category", s)
		}
	}
	for _, s := range []string{"", "driver", "med"} {
		if _, ok := ParseCategory(s); ok {
			t.Errorf("ParseCategory(%q) accepted invalid category", s)
		}
	}
}

func TestUnavailableOn_DayGranularity(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	p := Profile{UnavailableDates: []time.Time{day}}

	// Any time-of-day on the blocked date counts.
	if !p.UnavailableOn(time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)) {
		t.Error("expected unavailable late on the blocked day")
	}
	if !p.UnavailableOn(time.Date(2026, 8, 31, 0, 0, 1, 0, time.UTC)) {
		t.Error("expected unavailable just after midnight")
	}
	if p.UnavailableOn(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("next day should not be blocked")
	}
}

func TestHasLocation(t *testing.T) {
	if (Profile{}).HasLocation() {
		t.Error("zero point must read as no location")
	}
	p := Profile{Location: types.Point{Lng: 90.41, Lat: 23.81}}
	if !p.HasLocation() {
		t.Error("non-zero point must read as located")
	}
}
