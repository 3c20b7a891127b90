package enums

import "fmt"

// PreorderStatus tracks a Connect-routed preorder, including the partial
// failure where the charge landed but the vendor transfer did not.
type PreorderStatus string

const (
	PreorderStatusPendingPayment PreorderStatus = "pending_payment"
	PreorderStatusPaid           PreorderStatus = "paid"
	PreorderStatusRefunded       PreorderStatus = "refunded"
	PreorderStatusTransferFailed PreorderStatus = "payment_succeeded_transfer_failed"
	PreorderStatusPaymentFailed  PreorderStatus = "payment_failed"
)

var validPreorderStatuses = []PreorderStatus{
	PreorderStatusPendingPayment,
	PreorderStatusPaid,
	PreorderStatusRefunded,
	PreorderStatusTransferFailed,
	PreorderStatusPaymentFailed,
}

// String implements fmt.Stringer.
func (p PreorderStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PreorderStatus.
func (p PreorderStatus) IsValid() bool {
	for _, candidate := range validPreorderStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminalSuccess reports whether the preorder already settled.
func (p PreorderStatus) IsTerminalSuccess() bool {
	return p == PreorderStatusPaid
}

// ParsePreorderStatus converts raw input into a PreorderStatus.
func ParsePreorderStatus(value string) (PreorderStatus, error) {
	for _, candidate := range validPreorderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid preorder status %q", value)
}
