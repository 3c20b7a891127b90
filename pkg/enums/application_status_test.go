package enums

import "testing"

func TestApplicationStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    ApplicationStatus
		to      ApplicationStatus
		allowed bool
	}{
		{"pending to approved", ApplicationStatusPending, ApplicationStatusApproved, true},
		{"pending to denied", ApplicationStatusPending, ApplicationStatusDenied, true},
		{"pending to confirmed", ApplicationStatusPending, ApplicationStatusConfirmed, false},
		{"pending to expired", ApplicationStatusPending, ApplicationStatusExpired, false},
		{"approved to confirmed", ApplicationStatusApproved, ApplicationStatusConfirmed, true},
		{"approved to expired", ApplicationStatusApproved, ApplicationStatusExpired, true},
		{"approved to denied", ApplicationStatusApproved, ApplicationStatusDenied, false},
		{"denied to expired", ApplicationStatusDenied, ApplicationStatusExpired, false},
		{"confirmed to expired", ApplicationStatusConfirmed, ApplicationStatusExpired, false},
		{"expired to confirmed", ApplicationStatusExpired, ApplicationStatusConfirmed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestApplicationStatusTerminal(t *testing.T) {
	terminal := []ApplicationStatus{
		ApplicationStatusDenied,
		ApplicationStatusConfirmed,
		ApplicationStatusExpired,
	}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}

	for _, status := range []ApplicationStatus{ApplicationStatusPending, ApplicationStatusApproved} {
		if status.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}
