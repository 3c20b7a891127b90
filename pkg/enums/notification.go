package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderPaid            NotificationType = "order_paid"
	NotificationTypePreorderPaid         NotificationType = "preorder_paid"
	NotificationTypeTicketConfirmed      NotificationType = "ticket_confirmed"
	NotificationTypeApplicationDecision  NotificationType = "application_decision"
	NotificationTypeApplicationConfirmed NotificationType = "application_confirmed"
	NotificationTypePaymentFailed        NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPaid,
	NotificationTypePreorderPaid,
	NotificationTypeTicketConfirmed,
	NotificationTypeApplicationDecision,
	NotificationTypeApplicationConfirmed,
	NotificationTypePaymentFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
