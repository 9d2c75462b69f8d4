package orders

import (
	"fmt"
	"math"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

// Order is created once at checkout. Items and TotalPrice never change after
// creation; TransactionCode and PaidAt are set together, exactly once.
type Order struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	Items           []Item        `json:"items"`
	TotalPrice      int64         `json:"total_price"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TransactionCode string        `json:"transaction_code,omitempty"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	Shipping        ShippingInfo  `json:"shipping"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Item struct {
	BookID    int64 `json:"book_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"` // price at purchase
}

// ShippingInfo is a snapshot taken at checkout.
type ShippingInfo struct {
	ReceiverName  string `json:"receiver_name"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	Note          string `json:"note,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Cart is the caller's item list. UnitPrice is the price the buyer was shown;
// zero means "whatever the catalog says". Checkout reprices every line.
type Cart struct {
	Items []CartItem `json:"items"`
}

type CartItem struct {
	BookID    int64 `json:"book_id"`
	UnitPrice int64 `json:"unit_price,omitempty"`
	Quantity  int   `json:"quantity"`
}

// Total sums quantity x unit price. It fails instead of wrapping when a line
// or the running sum leaves the int64 range.
func (c Cart) Total() (int64, error) {
	var total int64
	for i, it := range c.Items {
		if it.UnitPrice < 0 || it.Quantity < 0 {
			return 0, apperr.Invalid(fmt.Sprintf("items[%d]", i), "price and quantity must not be negative")
		}
		if it.UnitPrice > 0 && int64(it.Quantity) > math.MaxInt64/it.UnitPrice {
			return 0, apperr.Invalid(fmt.Sprintf("items[%d]", i), "line total out of range")
		}
		line := it.UnitPrice * int64(it.Quantity)
		if total > math.MaxInt64-line {
			return 0, apperr.Invalid("items", "order total out of range")
		}
		total += line
	}
	return total, nil
}

// Principal is the authenticated caller, whatever login flow produced it.
type Principal interface {
	UserID() int64
	Email() string
	Roles() []string
}

// PaymentChannel names the path a payment confirmation arrived through.
type PaymentChannel string

const (
	ChannelWebhook PaymentChannel = "webhook"
	ChannelPoll    PaymentChannel = "poll"
	ChannelManual  PaymentChannel = "manual"
)

// IsPaid reports the payment invariant: PAID implies a code and a timestamp.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid && o.TransactionCode != "" && o.PaidAt != nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}
