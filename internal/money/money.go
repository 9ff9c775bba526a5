// Package money holds the monetary conversions and the direction rules shared
// by the export bridge and the budgeting backend. All amounts persisted by the
// backend are integer cents; dollars only exist at the edges (user input, wire
// payloads, Plaid responses).
package money

import "github.com/shopspring/decimal"

// Direction classifies money flow relative to an account. Exactly two values
// exist; nothing else is ever produced or accepted on the wire.
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Valid reports whether d is one of the two permitted values.
func (d Direction) Valid() bool {
	return d == In || d == Out
}

var hundred = decimal.NewFromInt(100)

// DollarsToCents converts a dollar amount to integer cents, rounding half up.
func DollarsToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// ParseDollarsToCents converts a decimal dollar string ("5.50") to cents.
func ParseDollarsToCents(amount string) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	return DollarsToCents(d), nil
}

// CentsToDollars converts integer cents back to a two-place decimal.
func CentsToDollars(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// DeriveDirection classifies a signed cent amount. Credit-card feeds report
// charges as positive amounts; depository feeds report them as negative, so
// the sign test flips with the account type. Zero is IN either way.
func DeriveDirection(amountCents int64, isCreditCard bool) Direction {
	if isCreditCard {
		if amountCents > 0 {
			return Out
		}
		return In
	}
	if amountCents < 0 {
		return Out
	}
	return In
}
