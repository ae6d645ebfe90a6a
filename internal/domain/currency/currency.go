// Package currency converts between the primary settlement currency (USD)
// and the secondary tender currency (Khmer riel).
//
// USD is the authoritative ledger unit: riel tenders are converted to USD
// eagerly so every downstream sum operates in USD only. The exchange rate is
// business configuration and may change between sessions, so every function
// takes the rate as an argument and keeps no state.
package currency

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RielToUSD converts a riel amount received as tender into USD, rounding
// half-up on the cent.
func RielToUSD(amount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(rate, 2)
}

// USDToRielDisplay converts a USD amount owed into riel for display, rounding
// up to the nearest 100 riel.
//
// The rounding direction is deliberate and has no mirror image: a debt shown
// in riel must never be lower than what is actually owed. Riel amounts
// received go through RielToUSD with ordinary rounding instead.
func USDToRielDisplay(amount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(rate).Div(hundred).Ceil().Mul(hundred)
}

// ValidRate reports whether rate is usable for conversion.
func ValidRate(rate decimal.Decimal) bool {
	return rate.IsPositive()
}
