package types

// Metadata keys stamped onto provider objects at intent creation and read
// back during webhook dispatch. The value of MetadataKeyOrderType is always
// a member of enums.OrderType.
const (
	MetadataKeyOrderType   = "order_type"
	MetadataKeyReferenceID = "reference_id"
	MetadataKeyCustomerID  = "customer_id"
	MetadataKeyVendorID    = "vendor_id"
)
