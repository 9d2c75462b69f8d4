package orders

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

// Status is the fulfillment state of an order. The zero value is not a valid
// status.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusProcessing
	StatusCompleted
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:    "PENDING",
	StatusProcessing: "PROCESSING",
	StatusCompleted:  "COMPLETED",
	StatusCancelled:  "CANCELLED",
}

// validNext is exhaustive: a status missing from the inner map is unreachable.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from -> to is allowed. Staying in the same
// valid state is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal is true for COMPLETED and CANCELLED.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func ParseStatus(v string) (Status, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for s, n := range statusNames {
		if n == v {
			return s, nil
		}
	}
	return 0, apperr.Invalid("status", fmt.Sprintf("unknown status %q", v))
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PaymentStatus is only ever changed by the reconciliation path.
type PaymentStatus uint8

const (
	PaymentPending PaymentStatus = iota + 1
	PaymentPaid
	PaymentFailed
)

var paymentNames = map[PaymentStatus]string{
	PaymentPending: "PENDING",
	PaymentPaid:    "PAID",
	PaymentFailed:  "FAILED",
}

func (p PaymentStatus) Valid() bool {
	_, ok := paymentNames[p]
	return ok
}

func (p PaymentStatus) String() string {
	if n, ok := paymentNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PaymentStatus(%d)", uint8(p))
}

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for p, n := range paymentNames {
		if n == v {
			return p, nil
		}
	}
	return 0, apperr.Invalid("payment_status", fmt.Sprintf("unknown payment status %q", v))
}

func (p PaymentStatus) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("marshal invalid payment status %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *PaymentStatus) UnmarshalText(b []byte) error {
	v, err := ParsePaymentStatus(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
