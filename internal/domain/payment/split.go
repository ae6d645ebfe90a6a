package payment

import (
	"github.com/shopspring/decimal"

	"github.com/sokrith/pos-settlement/internal/domain/order"
)

// SplitPart is one part of a split bill: the USD amount the cashier assigned
// to it and the payment methods that cover it.
type SplitPart struct {
	AmountUSD decimal.Decimal
	Methods   []Method
}

// Allocation is the derived receipt view of one split part. Tax and Discount
// are informational line items, each the part's proportional share of the
// order aggregate; the part's authoritative due amount is AmountUSD itself,
// not a recomputation from subtotal and tax.
type Allocation struct {
	AmountUSD decimal.Decimal
	Tax       decimal.Decimal
	Discount  decimal.Decimal
	Methods   []Method
}

// PartsFromPanels builds split parts from live session panels, converting
// riel tenders at the given rate. This is the draft-receipt source.
func PartsFromPanels(panels []Panel, rate decimal.Decimal) []SplitPart {
	parts := make([]SplitPart, len(panels))
	for i, p := range panels {
		parts[i] = SplitPart{
			AmountUSD: p.AmountUSD(rate),
			Methods:   []Method{p.Method},
		}
	}
	return parts
}

// PartsFromRecord builds split parts from the backend's persisted split
// record on a paid order. This is the final-receipt source.
func PartsFromRecord(splits []order.SplitPayment, rate decimal.Decimal) []SplitPart {
	parts := make([]SplitPart, len(splits))
	for i, sp := range splits {
		amount := sp.Amount
		if Currency(sp.Currency) == CurrencyRiel {
			amount = Panel{Currency: CurrencyRiel, Amount: sp.Amount.String()}.AmountUSD(rate)
		}
		parts[i] = SplitPart{
			AmountUSD: amount,
			Methods:   []Method{Method(sp.Method)},
		}
	}
	return parts
}

// Allocate apportions the order's tax and discount across split parts by
// each part's share of the subtotal, rounding every share to cents
// independently.
//
// Because each part rounds on its own, the allocated taxes are not guaranteed
// to sum back to the order tax when the split is uneven. That remainder is
// intentionally left unreconciled; fixing it would change visible receipt
// totals.
func Allocate(subtotal, tax, discount decimal.Decimal, parts []SplitPart) []Allocation {
	allocs := make([]Allocation, len(parts))
	for i, part := range parts {
		ratio := decimal.Zero
		if !subtotal.IsZero() {
			ratio = part.AmountUSD.Div(subtotal)
		}
		allocs[i] = Allocation{
			AmountUSD: part.AmountUSD,
			Tax:       tax.Mul(ratio).Round(2),
			Discount:  discount.Mul(ratio).Round(2),
			Methods:   part.Methods,
		}
	}
	return allocs
}
