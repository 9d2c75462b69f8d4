package redisx

import "time"

const (
	// Status projection: order_status:{order_id} -> orders.Snapshot JSON
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// First successful webhook response: webhook:sepay:{transaction_code}
	KeyWebhookReplay = "webhook:sepay:%s"
)

var (
	TTLStatusCache = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLReplay      = 48 * time.Hour
)
