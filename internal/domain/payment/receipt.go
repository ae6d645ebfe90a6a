package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sokrith/pos-settlement/internal/domain/currency"
	"github.com/sokrith/pos-settlement/internal/domain/order"
)

// Receipt is a rendered settlement view of an order. Draft receipts are
// computed from the uncommitted session; final receipts from the backend's
// authoritative post-payment record.
type Receipt struct {
	OrderID  string
	Draft    bool
	IssuedAt time.Time

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	// TotalRiel is the due amount expressed in riel for counter signage,
	// rounded up so the display never understates the debt.
	TotalRiel decimal.Decimal

	TenderedUSD  decimal.Decimal
	RemainingUSD decimal.Decimal

	Panels []Panel
	// Splits is populated in split mode only.
	Splits []Allocation
}

// draftReceipt renders the pre-commit simulation of the current session.
func draftReceipt(o *order.Order, s *Session, rec Reconciliation, rate decimal.Decimal) *Receipt {
	r := &Receipt{
		OrderID:      o.ID,
		Draft:        true,
		IssuedAt:     time.Now().UTC(),
		Subtotal:     o.Subtotal,
		Tax:          o.Tax,
		Discount:     o.Discount,
		Total:        o.Total,
		TotalRiel:    currency.USDToRielDisplay(o.Total, rate),
		TenderedUSD:  rec.TotalTenderedUSD,
		RemainingUSD: rec.RemainingUSD,
		Panels:       s.ActivePanels(),
	}
	if s.Mode == ModeSplit {
		r.Splits = Allocate(o.Subtotal, o.Tax, o.Discount, PartsFromPanels(s.ActivePanels(), rate))
	}
	return r
}

// FinalReceipt renders the authoritative receipt for a paid order from its
// persisted record.
func FinalReceipt(o *order.Order, rate decimal.Decimal) *Receipt {
	r := &Receipt{
		OrderID:     o.ID,
		IssuedAt:    time.Now().UTC(),
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Discount:    o.Discount,
		Total:       o.Total,
		TotalRiel:   currency.USDToRielDisplay(o.Total, rate),
		TenderedUSD: o.Total,
	}
	if len(o.Splits) > 0 {
		r.Splits = Allocate(o.Subtotal, o.Tax, o.Discount, PartsFromRecord(o.Splits, rate))
	}
	return r
}
