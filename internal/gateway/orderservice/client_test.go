package orderservice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokrith/pos-settlement/internal/domain/order"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithHTTPClient(srv.Client()))
}

func TestFetch_DecodesOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/o1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "o1",
			"subtotal": 29.00,
			"tax": 2.90,
			"discount": "0",
			"total": 31.90,
			"currency": "USD",
			"paid": false
		}`))
	})

	o, err := c.Fetch(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, "o1", o.ID)
	assert.True(t, decimal.RequireFromString("31.90").Equal(o.Total))
	assert.True(t, decimal.RequireFromString("2.90").Equal(o.Tax))
	assert.False(t, o.Paid)
}

func TestFetch_PaidOrderWithSplits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "o1",
			"subtotal": 29.00,
			"tax": 2.90,
			"discount": 0,
			"total": 31.90,
			"paid": true,
			"paidAt": "2026-03-01T10:30:00Z",
			"splitPayments": [
				{"currency": "USD", "method": "card", "amount": "15.95"},
				{"currency": "USD", "method": "cash", "amount": "15.95"}
			]
		}`))
	})

	o, err := c.Fetch(context.Background(), "o1")
	require.NoError(t, err)

	assert.True(t, o.Paid)
	require.Len(t, o.Splits, 2)
	assert.Equal(t, "card", o.Splits[0].Method)
	assert.True(t, decimal.RequireFromString("15.95").Equal(o.Splits[0].Amount))
}

func TestFetch_MissingTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "o1", "subtotal": 29.00}`))
	})

	_, err := c.Fetch(context.Background(), "o1")
	require.ErrorIs(t, err, order.ErrIncomplete)
}

func TestFetch_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Fetch(context.Background(), "gone")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestSettle_EncodesPayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders/o1/settle", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"receiptId": "r1", "paidAt": "2026-03-01T10:30:00Z"}`))
	})

	riel := "48790"
	res, err := c.Settle(context.Background(), "o1", order.SettleRequest{
		Currency:   "USD",
		RielAmount: &riel,
		SplitBill:  false,
		PaymentMethods: []order.SettlePanel{
			{Currency: "USD", Method: "card", Amount: "20.00"},
			{Currency: "Riel", Method: "cash", Amount: "48790"},
		},
		MixedPayments: true,
		MixedCurrency: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "r1", res.ReceiptID)
	assert.Equal(t, "USD", got["currency"])
	assert.Equal(t, "48790", got["rielAmount"])
	assert.Equal(t, false, got["splitBill"])
	assert.Equal(t, true, got["mixedPayments"])
	assert.Equal(t, true, got["mixedCurrency"])

	methods, ok := got["paymentMethods"].([]any)
	require.True(t, ok)
	require.Len(t, methods, 2)
	first, ok := methods[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "20.00", first["amount"])

	split, ok := got["splitAmounts"].([]any)
	require.True(t, ok)
	assert.Empty(t, split)
}

func TestSettle_NullRielAmount(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"receiptId": "r1"}`))
	})

	_, err := c.Settle(context.Background(), "o1", order.SettleRequest{
		Currency:       "USD",
		PaymentMethods: []order.SettlePanel{{Currency: "USD", Method: "cash", Amount: "31.90"}},
	})
	require.NoError(t, err)

	v, present := got["rielAmount"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestSettle_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation failure",
			status: http.StatusBadRequest,
			body:   `{"errors": ["amount mismatch", "unknown method"]}`,
			check: func(t *testing.T, err error) {
				var ve *order.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, []string{"amount mismatch", "unknown method"}, ve.Messages)
			},
		},
		{
			name:   "already paid",
			status: http.StatusConflict,
			body:   `{"message": "order already paid"}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, order.ErrAlreadyPaid)
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   ``,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, order.ErrNotFound)
			},
		},
		{
			name:   "server failure is transient",
			status: http.StatusInternalServerError,
			body:   ``,
			check: func(t *testing.T, err error) {
				var te *order.TransientError
				require.ErrorAs(t, err, &te)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Settle(context.Background(), "o1", order.SettleRequest{Currency: "USD"})
			tt.check(t, err)
		})
	}
}
