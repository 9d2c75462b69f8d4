// Package payment correlates external bank transfers with orders. Everything
// here is pure: no I/O, no clocks, no shared state.
package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Transaction is one transfer reported by the payment provider.
type Transaction struct {
	Code      string    `json:"code"`
	Content   string    `json:"content"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Strategy recognises an order id inside a transfer memo.
type Strategy struct {
	Name string
	re   *regexp.Regexp
	// max bounds accepted ids, zero means unbounded.
	max int64
}

// Digits are captured greedily, so "ORDER_421" yields 421 and never 42.
var (
	PrimaryMarker   = Strategy{Name: "primary", re: regexp.MustCompile(`(?i)ORDER[_\s]*(\d+)`)}
	LegacyShopCode  = Strategy{Name: "legacy_qlsach", re: regexp.MustCompile(`(?i)QLSACH[_\s]*(\d+)`)}
	LegacyDonHang   = Strategy{Name: "legacy_dh", re: regexp.MustCompile(`(?i)DH[_\s]*(\d+)`)}
	NumericFallback = Strategy{Name: "numeric_fallback", re: regexp.MustCompile(`\b(\d+)\b`), max: 999999999}
)

// IDs returns every order id the strategy finds in content, in order of
// appearance.
func (s Strategy) IDs(content string) []int64 {
	var out []int64
	for _, m := range s.re.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if s.max > 0 && id >= s.max {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Matches reports whether content refers to orderID under this strategy.
func (s Strategy) Matches(content string, orderID int64) bool {
	for _, id := range s.IDs(content) {
		if id == orderID {
			return true
		}
	}
	return false
}

// CanonicalMarker is the token a customer is asked to put in the transfer memo.
func CanonicalMarker(orderID int64) string {
	return "ORDER_" + strconv.FormatInt(orderID, 10)
}

// Matcher applies strategies in a fixed order. The numeric fallback is
// optional: any bare number equal to the id counts, which can confuse an
// order id with an amount or a phone number in the memo.
type Matcher struct {
	strategies []Strategy
}

func NewMatcher(numericFallback bool) *Matcher {
	s := []Strategy{PrimaryMarker, LegacyShopCode, LegacyDonHang}
	if numericFallback {
		s = append(s, NumericFallback)
	}
	return &Matcher{strategies: s}
}

func (m *Matcher) Strategies() []Strategy {
	return append([]Strategy(nil), m.strategies...)
}

// Hit is a matched transaction and the strategy that recognised it.
type Hit struct {
	Transaction
	Strategy string
}

// Match returns the first transaction, in the order given, whose memo refers
// to the order and whose amount covers the total. There is no tie-break on
// amount between several matching transactions.
func (m *Matcher) Match(o *orders.Order, txs []Transaction) (Hit, bool) {
	for _, tx := range txs {
		if tx.Amount < o.TotalPrice {
			continue
		}
		content := normalize(tx.Content)
		for _, s := range m.strategies {
			if s.Matches(content, o.ID) {
				return Hit{Transaction: tx, Strategy: s.Name}, true
			}
		}
	}
	return Hit{}, false
}

// ExtractOrderID finds the order a webhook memo refers to: the first id of the
// first strategy that yields one.
func (m *Matcher) ExtractOrderID(content string) (int64, string, bool) {
	content = normalize(content)
	if content == "" {
		return 0, "", false
	}
	for _, s := range m.strategies {
		if ids := s.IDs(content); len(ids) > 0 {
			return ids[0], s.Name, true
		}
	}
	return 0, "", false
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
