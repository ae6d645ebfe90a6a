// Package payment implements the reconciliation and split-settlement engine:
// the tender panels a cashier builds, the session that survives reloads, the
// reconciliation of tendered amounts against the order total, and the
// proportional allocation of tax and discount across split parts.
package payment

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sokrith/pos-settlement/internal/domain/currency"
)

// Currency and Method identify what kind of tender a panel holds.
type (
	Currency string
	Method   string
	Mode     string
)

const (
	CurrencyUSD  Currency = "USD"
	CurrencyRiel Currency = "Riel"

	MethodCash Method = "cash"
	MethodCard Method = "card"
	MethodQR   Method = "qr"

	ModeFull  Mode = "full"
	ModeSplit Mode = "split"
)

// Valid reports whether c is a known tender currency.
func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyRiel
}

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	return m == MethodCash || m == MethodCard || m == MethodQR
}

// Valid reports whether m is a known settlement mode.
func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeSplit
}

// Panel is one tender line item within a payment attempt. Amount is kept as a
// sanitized decimal string so partial cashier input survives without
// premature rounding; arithmetic converts it to decimal on demand.
type Panel struct {
	ID       int      `json:"id"`
	Currency Currency `json:"currency"`
	Method   Method   `json:"method"`
	Amount   string   `json:"amount"`
}

// SanitizeAmount strips everything except digits and keeps only the first
// decimal point. Applied before storage so persisted state is always
// well-formed.
func SanitizeAmount(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AmountDecimal parses the panel amount in its own currency.
// Empty or unparsable input counts as zero.
func (p Panel) AmountDecimal() decimal.Decimal {
	if p.Amount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(p.Amount)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// AmountUSD returns the panel amount converted to USD at the given rate.
func (p Panel) AmountUSD(rate decimal.Decimal) decimal.Decimal {
	amt := p.AmountDecimal()
	if p.Currency == CurrencyRiel {
		return currency.RielToUSD(amt, rate)
	}
	return amt
}
