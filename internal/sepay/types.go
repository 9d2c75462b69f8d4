// Package sepay talks to the SePay bank-transfer notifier: it decodes webhook
// deliveries and queries the recent transaction list.
package sepay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Amount decodes the provider's money fields, which arrive either as JSON
// numbers or as decimal strings like "50000.00". VND has no minor unit, so a
// fractional or out-of-range value is a decode error rather than rounded.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*a = Amount(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("sepay amount %q: %w", s, err)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("sepay amount %q: not a whole number", s)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("sepay amount %q: out of range", s)
	}
	*a = Amount(f)
	return nil
}

// Text decodes ids and codes that may be numbers, strings or null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(b)
	}
	return nil
}

const dateLayout = "2006-01-02 15:04:05"

// ParseDate reads the provider's local timestamp format. Unparseable input
// yields the zero time.
func ParseDate(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// WebhookPayload is one webhook delivery. The provider has shipped both
// camelCase and snake_case field names; both are accepted.
type WebhookPayload struct {
	ID                   Text   `json:"id"`
	Gateway              string `json:"gateway"`
	TransactionDate      string `json:"transactionDate"`
	TransactionDateSnake string `json:"transaction_date"`
	AccountNumber        string `json:"accountNumber"`
	AccountNumberSnake   string `json:"account_number"`
	Code                 Text   `json:"code"`
	Content              string `json:"content"`
	TransactionContent   string `json:"transactionContent"`
	TransactionSnake     string `json:"transaction_content"`
	Body                 string `json:"body"`
	TransferType         string `json:"transferType"`
	TransferAmount       Amount `json:"transferAmount"`
	AmountIn             Amount `json:"amountIn"`
	AmountInSnake        Amount `json:"amount_in"`
	AmountOut            Amount `json:"amountOut"`
	AmountOutSnake       Amount `json:"amount_out"`
	ReferenceCode        string `json:"referenceCode"`
	ReferenceNumber      string `json:"reference_number"`
}

// Amount is the first positive of the incoming and outgoing amounts.
func (p WebhookPayload) Amount() int64 {
	for _, a := range []Amount{p.AmountIn, p.AmountInSnake, p.TransferAmount, p.AmountOut, p.AmountOutSnake} {
		if a > 0 {
			return int64(a)
		}
	}
	return 0
}

// Memo is the transfer content, falling back to the raw SMS body.
func (p WebhookPayload) Memo() string {
	return firstNonEmpty(p.Content, p.TransactionContent, p.TransactionSnake, p.Body)
}

func (p WebhookPayload) Account() string {
	return firstNonEmpty(p.AccountNumber, p.AccountNumberSnake)
}

func (p WebhookPayload) Reference() string {
	return firstNonEmpty(p.ReferenceCode, p.ReferenceNumber)
}

func (p WebhookPayload) Date() string {
	return firstNonEmpty(p.TransactionDate, p.TransactionDateSnake)
}

// apiTransaction is one row of the transaction list API.
type apiTransaction struct {
	ID                 Text   `json:"id"`
	TransactionDate    string `json:"transaction_date"`
	AccountNumber      string `json:"account_number"`
	AmountIn           Amount `json:"amount_in"`
	AmountOut          Amount `json:"amount_out"`
	Code               Text   `json:"code"`
	TransactionContent string `json:"transaction_content"`
	ReferenceNumber    string `json:"reference_number"`
	Body               string `json:"body"`
}

type listResponse struct {
	Status       int              `json:"status"`
	Transactions []apiTransaction `json:"transactions"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
