package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance constants. The asymmetry between the 10% overpayment allowance
// (cash rounding in riel) and the one-cent underpayment allowance is a given
// business constant, not something to even out.
var (
	// remainingZeroBand absorbs rounding drift across multiple converted
	// panels; anything under 5 cents of residual counts as settled exactly.
	remainingZeroBand = decimal.RequireFromString("0.05")
	// underTolerance is the most an order may be short by.
	underTolerance = decimal.RequireFromString("0.01")
	// overLimit caps tendered amounts at 110% of the total.
	overLimit = decimal.RequireFromString("1.10")
)

// Reconciliation is the derived state of a panel set against the order's due
// amount. Errors collects every applicable validation failure, not just the
// first.
type Reconciliation struct {
	TotalTenderedUSD decimal.Decimal
	RemainingUSD     decimal.Decimal
	Errors           []string
}

// CanCommit reports whether a final payment may be attempted: no validation
// errors and nothing outstanding within tolerance.
func (r Reconciliation) CanCommit() bool {
	return len(r.Errors) == 0 && r.RemainingUSD.IsZero()
}

// Reconcile derives the tendered total, remaining balance and validation
// errors from the current panels and the order total. It is a pure function
// of its inputs: identical inputs always produce identical results.
func Reconcile(panels []Panel, total, rate decimal.Decimal) Reconciliation {
	total = total.Round(2)

	tendered := decimal.Zero
	var errs []string
	for i, p := range panels {
		if !p.AmountDecimal().IsPositive() {
			errs = append(errs, fmt.Sprintf(
				"Payment %d: Amount is required and must be greater than 0", i+1))
		}
		tendered = tendered.Add(p.AmountUSD(rate))
	}
	tendered = tendered.Round(2)

	remaining := total.Sub(tendered)
	if remaining.Abs().LessThan(remainingZeroBand) {
		remaining = decimal.Zero
	}

	// Unreachable while panel amounts parse as non-negative, kept as a guard.
	if tendered.IsNegative() {
		errs = append(errs, "Total payment cannot be negative")
	}
	if tendered.GreaterThan(total.Mul(overLimit)) {
		errs = append(errs, fmt.Sprintf(
			"Total payment $%s exceeds the amount due $%s by more than 10%%",
			tendered.StringFixed(2), total.StringFixed(2)))
	}
	if tendered.LessThan(total.Sub(underTolerance)) {
		errs = append(errs, fmt.Sprintf(
			"Total payment $%s is less than the amount due $%s",
			tendered.StringFixed(2), total.StringFixed(2)))
	}

	return Reconciliation{
		TotalTenderedUSD: tendered,
		RemainingUSD:     remaining,
		Errors:           errs,
	}
}
