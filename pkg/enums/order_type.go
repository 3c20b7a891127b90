package enums

import "fmt"

// OrderType classifies a payment by the kind of purchase that created it.
// The value is stamped into provider metadata at intent creation and read
// back during webhook dispatch.
type OrderType string

const (
	OrderTypeProductPurchase   OrderType = "product_purchase"
	OrderTypeTicketPurchase    OrderType = "ticket_purchase"
	OrderTypeVendorApplication OrderType = "vendor_application"
	OrderTypePreorder          OrderType = "preorder"
	OrderTypeSubscription      OrderType = "subscription"
)

var validOrderTypes = []OrderType{
	OrderTypeProductPurchase,
	OrderTypeTicketPurchase,
	OrderTypeVendorApplication,
	OrderTypePreorder,
	OrderTypeSubscription,
}

// String implements fmt.Stringer.
func (o OrderType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderType.
func (o OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
