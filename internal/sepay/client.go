package sepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/payment"
)

// ErrProviderUnavailable is returned when no transaction API is configured;
// some SePay plans only offer webhooks.
var ErrProviderUnavailable = fmt.Errorf("sepay transaction api not configured: %w", apperr.ErrExternal)

type Client struct {
	baseURL string
	token   string
	account string
	loc     *time.Location
	client  *http.Client
}

// NewClient builds a transaction source. A nil http.Client gets a 10s default.
func NewClient(baseURL, token, account string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		loc = time.FixedZone("ICT", 7*3600)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		account: account,
		loc:     loc,
		client:  hc,
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != ""
}

// Recent lists the newest transactions on the shop account, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]payment.Transaction, error) {
	if !c.Configured() {
		return nil, ErrProviderUnavailable
	}

	q := url.Values{}
	q.Set("account_number", c.account)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/list?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build sepay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sepay request: %v: %w", err, apperr.ErrExternal)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read sepay response: %v: %w", err, apperr.ErrExternal)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sepay api status %d: %s: %w", resp.StatusCode, truncate(body, 200), apperr.ErrExternal)
	}

	rows, err := decodeList(body)
	if err != nil {
		return nil, fmt.Errorf("decode sepay response: %v: %w", err, apperr.ErrExternal)
	}

	out := make([]payment.Transaction, 0, len(rows))
	for _, r := range rows {
		amount := int64(r.AmountIn)
		if amount <= 0 {
			amount = int64(r.AmountOut)
		}
		code := string(r.Code)
		if code == "" {
			code = firstNonEmpty(r.ReferenceNumber, string(r.ID))
		}
		out = append(out, payment.Transaction{
			Code:      code,
			Content:   firstNonEmpty(r.TransactionContent, r.Body),
			Amount:    amount,
			Timestamp: ParseDate(r.TransactionDate, c.loc),
		})
	}
	return out, nil
}

// decodeList accepts the documented {"transactions": [...]} envelope and a
// bare array.
func decodeList(body []byte) ([]apiTransaction, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var rows []apiTransaction
		err := json.Unmarshal(body, &rows)
		return rows, err
	}
	var lr listResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, err
	}
	return lr.Transactions, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
