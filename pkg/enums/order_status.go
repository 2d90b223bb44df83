package enums

// OrderStatus mirrors the order ledger status column. Only completed orders are billed.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCanceled   OrderStatus = "canceled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCanceled,
}

func (s OrderStatus) IsValid() bool { return known(s, orderStatuses) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(value, orderStatuses, "order status")
}
