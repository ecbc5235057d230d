package orders

const (
	TopicOrderPlaced = "store.order.placed"
	TopicOrderStatus = "store.order.status"
)

// Partition key = order_id so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
