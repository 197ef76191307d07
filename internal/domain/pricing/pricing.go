// Package pricing turns catalog prices into the amounts customers pay.
//
// Every amount is rounded half-to-even to two decimal places and never drops
// below zero. Cart totals and order snapshots both go through EffectivePrice,
// so a product in a given state always costs the same in either place.
package pricing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// EffectivePrice applies a percentage discount to a base price. Discounts
// outside [0, 100] are clamped.
func EffectivePrice(price, discountPercent decimal.Decimal) decimal.Decimal {
	d := decimal.Min(decimal.Max(discountPercent, zero), hundred)
	p := price.Sub(price.Mul(d).Div(hundred)).RoundBank(2)
	return floorAtZero(p)
}

// LineTotal is the price of qty units.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return zero
	}
	return unit.Mul(decimal.NewFromInt(int64(qty))).RoundBank(2)
}

// Line is one priced entry of a cart or order.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total sums the line totals.
func Total(lines []Line) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l.UnitPrice, l.Quantity))
	}
	return sum
}

// ToMinorUnits converts an amount to the integer minor-unit representation
// payment gateways expect (paise, cents).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).RoundBank(0).IntPart()
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
