// Package order defines the order record the settlement engine reads and the
// gateway contract it uses to settle an order. The order service owns the
// record; everything here is read-only from the engine's point of view.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors reported by the gateway.
var (
	// ErrNotFound means the order no longer exists. Terminal.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyPaid means the backend already settled this order. Terminal,
	// not retryable.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrIncomplete means the order record is missing fields the engine
	// cannot work without (no total). The payment flow halts entirely.
	ErrIncomplete = errors.New("order record missing required fields")
)

// ValidationError carries backend-reported validation messages for a
// rejected settle call.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settle rejected: %s", strings.Join(e.Messages, "; "))
}

// TransientError wraps a 5xx or transport failure. The session is preserved
// and the same commit may be retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("settle failed: %s", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Order is the aggregate record read from the order service.
// Invariant (established upstream, trusted here): Total = Subtotal + Tax - Discount.
type Order struct {
	ID       string
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Currency string
	Paid     bool
	PaidAt   time.Time

	// Splits holds the persisted split record on an already-paid order.
	// Empty for unpaid orders and non-split settlements.
	Splits []SplitPayment
}

// SplitPayment is one settled part of a split bill as recorded by the backend.
type SplitPayment struct {
	Currency string
	Method   string
	Amount   decimal.Decimal
}

// SettlePanel is one tender line item in a settle request, amount as a raw
// decimal string in the tendered currency.
type SettlePanel struct {
	Currency string
	Method   string
	Amount   string
}

// SettleRequest is the single source of truth for what currency, method and
// split configuration was used to pay an order.
type SettleRequest struct {
	Currency       string
	RielAmount     *string
	SplitBill      bool
	SplitAmounts   []SettlePanel
	PaymentMethods []SettlePanel
	MixedPayments  bool
	MixedCurrency  bool
}

// SettleResult identifies the committed payment for final receipt rendering.
type SettleResult struct {
	ReceiptID string
	PaidAt    time.Time
}

// Gateway is the engine's only wire interface to the order service.
type Gateway interface {
	Fetch(ctx context.Context, id string) (*Order, error)
	Settle(ctx context.Context, id string, req SettleRequest) (*SettleResult, error)
}
