package orders

import "strconv"

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentConfirmed   = "order.payment.confirmed"
	TopicOrderCancelled     = "order.cancelled"
)

// AllTopics is what the status projector subscribes to.
var AllTopics = []string{
	TopicOrderCreated,
	TopicOrderStatusChanged,
	TopicPaymentConfirmed,
	TopicOrderCancelled,
}

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
