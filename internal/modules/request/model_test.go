// README: Lifecycle state machine and aggregate helper tests.
package request

import (
	"testing"

	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

// TestCanTransition verifies the transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// forward path
		{StatusPending, StatusAssigned, true},
		{StatusAssigned, StatusEnRoute, true},
		{StatusEnRoute, StatusArrived, true},
		{StatusArrived, StatusCompleted, true},
		// cancel from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusEnRoute, StatusCancelled, true},
		{StatusArrived, StatusCancelled, true},
		// terminal states have no outgoing transitions
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAssigned, false},
		// skipping states
		{StatusPending, StatusEnRoute, false},
		{StatusPending, StatusArrived, false},
		{StatusPending, StatusCompleted, false},
		{StatusAssigned, StatusArrived, false},
		{StatusAssigned, StatusCompleted, false},
		{StatusEnRoute, StatusCompleted, false},
		// moving backward
		{StatusArrived, StatusEnRoute, false},
		{StatusEnRoute, StatusAssigned, false},
		{StatusAssigned, StatusPending, false},
		// self loops
		{StatusPending, StatusPending, false},
		{StatusAssigned, StatusAssigned, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestUrgencyRankOrdering(t *testing.T) {
	order := []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Rank(%s)=%d should exceed Rank(%s)=%d", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if Urgency("bogus").Rank() != 0 {
		t.Errorf("unknown urgency should rank 0")
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" EN_ROUTE "); !ok || s != StatusEnRoute {
		t.Errorf("ParseStatus en_route: got (%q, %v)", s, ok)
	}
	if _, ok := ParseStatus("teleported"); ok {
		t.Errorf("unknown status accepted")
	}
}

func TestIsAssignedTo(t *testing.T) {
	med := types.ID("m1")
	trans := types.ID("t1")
	r := &Request{MedicalID: &med, TransportID: &trans}

	if !r.IsAssignedTo("m1") || !r.IsAssignedTo("t1") {
		t.Errorf("assigned responders not recognised")
	}
	if r.IsAssignedTo("v1") {
		t.Errorf("unassigned actor recognised as assignee")
	}
	if got := r.Assignment(responder.CategoryVolunteer); got != nil {
		t.Errorf("empty volunteer slot returned %v", *got)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAssigned, StatusEnRoute, StatusArrived} {
		if (&Request{Status: s}).Terminal() {
			t.Errorf("%s reported terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !(&Request{Status: s}).Terminal() {
			t.Errorf("%s not reported terminal", s)
		}
	}
}
