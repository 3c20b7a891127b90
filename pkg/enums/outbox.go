package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder             OutboxAggregateType = "order"
	AggregatePreorder          OutboxAggregateType = "preorder"
	AggregateTicketPurchase    OutboxAggregateType = "ticket_purchase"
	AggregateVendorApplication OutboxAggregateType = "vendor_application"
	AggregateVendorSale        OutboxAggregateType = "vendor_sale"
	AggregatePayoutAccount     OutboxAggregateType = "payout_account"
	AggregateNotification      OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePreorder,
	AggregateTicketPurchase,
	AggregateVendorApplication,
	AggregateVendorSale,
	AggregatePayoutAccount,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPaid              OutboxEventType = "order_paid"
	EventOrderRefunded          OutboxEventType = "order_refunded"
	EventOrderPaymentFailed     OutboxEventType = "order_payment_failed"
	EventPreorderPaid           OutboxEventType = "preorder_paid"
	EventPreorderRefunded       OutboxEventType = "preorder_refunded"
	EventPreorderTransferFailed OutboxEventType = "preorder_transfer_failed"
	EventTicketPurchaseComplete OutboxEventType = "ticket_purchase_completed"
	EventTicketValidated        OutboxEventType = "ticket_validated"
	EventApplicationApproved    OutboxEventType = "application_approved"
	EventApplicationDenied      OutboxEventType = "application_denied"
	EventApplicationConfirmed   OutboxEventType = "application_confirmed"
	EventApplicationExpired     OutboxEventType = "application_expired"
	EventVendorSaleRecorded     OutboxEventType = "vendor_sale_recorded"
	EventPayoutAccountUpdated   OutboxEventType = "payout_account_updated"
	EventNotificationRequested  OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderRefunded,
	EventOrderPaymentFailed,
	EventPreorderPaid,
	EventPreorderRefunded,
	EventPreorderTransferFailed,
	EventTicketPurchaseComplete,
	EventTicketValidated,
	EventApplicationApproved,
	EventApplicationDenied,
	EventApplicationConfirmed,
	EventApplicationExpired,
	EventVendorSaleRecorded,
	EventPayoutAccountUpdated,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
