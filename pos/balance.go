/*
balance.go - Real amount and account balance derivation

INVARIANTS:
  realAmount = amount * (1 - discountPercent/100)
  balance    = sum(sign(type) * realAmount) over the account's movements
               with sign(charge) = +1, sign(payment) = -1

  Both values are always derived, never accepted from a caller. A balance
  is recomputed from the full movement set on every change; there is no
  incremental delta path that could drift from the movements.
*/
package pos

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RealAmount applies a percentage discount to a nominal amount.
func RealAmount(amount, discountPercent decimal.Decimal) decimal.Decimal {
	if discountPercent.IsZero() {
		return amount
	}
	return amount.Sub(amount.Mul(discountPercent).Div(hundred))
}

// ComputeBalance re-sums every movement. Order does not matter.
func ComputeBalance(movements []Movement) decimal.Decimal {
	balance := decimal.Zero
	for _, m := range movements {
		balance = balance.Add(m.SignedAmount())
	}
	return balance
}

// ValidateAmounts checks the nominal amount and discount of a movement.
func ValidateAmounts(amount, discountPercent decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid("amount", "must be greater than 0, got %s", amount)
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return Invalid("discount_percent", "must be within [0, 100], got %s", discountPercent)
	}
	return nil
}
