package sepay

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

func TestClient_Recent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/list", r.URL.Path)
		assert.Equal(t, "0123456789", r.URL.Query().Get("account_number"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":200,"transactions":[
			{"id":"101","transaction_date":"2026-03-01 10:15:00","account_number":"0123456789",
			 "amount_in":"50000.00","amount_out":"0.00","code":"FT26060","transaction_content":"ORDER_7 chuyen tien"},
			{"id":102,"transaction_date":"bad","amount_in":"0.00","amount_out":"1200.00",
			 "code":null,"reference_number":"REF9","body":"DH 3"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", "0123456789", srv.Client())
	txs, err := c.Recent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "FT26060", txs[0].Code)
	assert.Equal(t, "ORDER_7 chuyen tien", txs[0].Content)
	assert.Equal(t, int64(50000), txs[0].Amount)
	assert.Equal(t, 2026, txs[0].Timestamp.Year())

	assert.Equal(t, "REF9", txs[1].Code)
	assert.Equal(t, "DH 3", txs[1].Content)
	assert.Equal(t, int64(1200), txs[1].Amount)
	assert.True(t, txs[1].Timestamp.IsZero())
}

func TestClient_RecentBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"amount_in":300,"code":"C1","transaction_content":"ORDER_1"}]`))
	}))
	defer srv.Close()

	txs, err := NewClient(srv.URL, "t", "acc", nil).Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(300), txs[0].Amount)
}

func TestClient_Failures(t *testing.T) {
	_, err := NewClient("", "", "acc", nil).Recent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err = NewClient(srv.URL, "t", "acc", nil).Recent(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer garbage.Close()

	_, err = NewClient(garbage.URL, "t", "acc", nil).Recent(context.Background(), 10)
	assert.True(t, apperr.IsExternal(err))
}

func TestWebhookPayload_Decode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		amount  int64
		memo    string
		account string
		code    string
	}{
		{
			name:    "camel case",
			body:    `{"id":92704,"gateway":"TPBank","transactionDate":"2026-03-01 10:00:00","accountNumber":"0123","code":"FT1","content":"ORDER_7","transferType":"in","amountIn":50000,"referenceCode":"R1"}`,
			amount:  50000,
			memo:    "ORDER_7",
			account: "0123",
			code:    "FT1",
		},
		{
			name:    "snake case with string amounts",
			body:    `{"id":"5","account_number":"0456","amount_in":"0.00","amount_out":"75000.00","transaction_content":"QLSACH 9","code":null}`,
			amount:  75000,
			memo:    "QLSACH 9",
			account: "0456",
		},
		{
			name:   "body fallback",
			body:   `{"transferAmount":1000,"body":"DH 4"}`,
			amount: 1000,
			memo:   "DH 4",
		},
		{
			name: "nothing useful",
			body: `{}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p WebhookPayload
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.amount, p.Amount())
			assert.Equal(t, tt.memo, p.Memo())
			assert.Equal(t, tt.account, p.Account())
			assert.Equal(t, tt.code, string(p.Code))
		})
	}
}

func TestAmount_Invalid(t *testing.T) {
	for _, in := range []string{
		`"abc"`,
		`true`,
		`240000.5`,
		`"50000.01"`,
		`1e19`,
		`"-1e19"`,
		`9223372036854775808`,
		`"NaN"`,
		`"Inf"`,
	} {
		var a Amount
		assert.Error(t, json.Unmarshal([]byte(in), &a), in)
	}
}

func TestAmount_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{`50000`, 50000},
		{`"50000.00"`, 50000},
		{`5e4`, 50000},
		{`9223372036854775807`, math.MaxInt64},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tt := range tests {
		var a Amount
		require.NoError(t, json.Unmarshal([]byte(tt.in), &a), tt.in)
		assert.Equal(t, tt.want, a, tt.in)
	}
}
