package enums

import "fmt"

// TicketPurchaseStatus tracks a ticket checkout. Entry validation stamps
// used_at separately and does not move this status.
type TicketPurchaseStatus string

const (
	TicketPurchaseStatusPending   TicketPurchaseStatus = "pending"
	TicketPurchaseStatusCompleted TicketPurchaseStatus = "completed"
	TicketPurchaseStatusCancelled TicketPurchaseStatus = "cancelled"
)

var validTicketPurchaseStatuses = []TicketPurchaseStatus{
	TicketPurchaseStatusPending,
	TicketPurchaseStatusCompleted,
	TicketPurchaseStatusCancelled,
}

// String implements fmt.Stringer.
func (s TicketPurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TicketPurchaseStatus.
func (s TicketPurchaseStatus) IsValid() bool {
	for _, candidate := range validTicketPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminalSuccess reports whether the purchase already completed.
func (s TicketPurchaseStatus) IsTerminalSuccess() bool {
	return s == TicketPurchaseStatusCompleted
}

// ParseTicketPurchaseStatus converts raw input into a TicketPurchaseStatus.
func ParseTicketPurchaseStatus(value string) (TicketPurchaseStatus, error) {
	for _, candidate := range validTicketPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket purchase status %q", value)
}
