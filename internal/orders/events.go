package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentConfirmed   = "PaymentConfirmed"
	EventOrderCancelled     = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "bookstore-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// EventPublisher delivers order events. Publishing is best effort: the order
// store is the source of truth and a lost event only delays projections.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType string, orderID int64, payload any) error
}

// Snapshot is carried by every order event so consumers can order updates by
// UpdatedAt without re-reading the store.
type Snapshot struct {
	OrderID         int64         `json:"order_id"`
	UserID          int64         `json:"user_id"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TransactionCode string        `json:"transaction_code,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func SnapshotOf(o *Order) Snapshot {
	return Snapshot{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		TransactionCode: o.TransactionCode,
		UpdatedAt:       o.UpdatedAt,
	}
}

type OrderCreatedPayload struct {
	Snapshot
	UserID     int64  `json:"user_id"`
	Items      []Item `json:"items"`
	TotalPrice int64  `json:"total_price"`
}

type StatusChangedPayload struct {
	Snapshot
	From Status `json:"from"`
}

type PaymentConfirmedPayload struct {
	Snapshot
	Amount  int64          `json:"amount"`
	Channel PaymentChannel `json:"channel"`
	PaidAt  time.Time      `json:"paid_at"`
}

type OrderCancelledPayload struct {
	Snapshot
	Reason string `json:"reason"` // CANCELLED_BY_USER | PAYMENT_ABANDONED | STATUS_UPDATE
}
