// Package commission computes the platform's cut of store revenue.
package commission

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

var one = decimal.NewFromInt(1)

// MaxRatePlaces matches the scale of invoices.commission_rate (numeric(6,4)).
const MaxRatePlaces = 4

// Rate is a commission fraction in [0,1], e.g. 0.05 for five percent.
type Rate struct {
	value decimal.Decimal
}

// ParseRate parses a configured rate string.
func ParseRate(raw string) (Rate, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Rate{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid commission rate %q", raw))
	}
	return NewRate(value)
}

// NewRate validates a decimal rate.
func NewRate(value decimal.Decimal) (Rate, error) {
	if value.IsNegative() || value.GreaterThan(one) {
		return Rate{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("commission rate %s must be within [0,1]", value.String()))
	}
	if !value.Equal(value.Truncate(MaxRatePlaces)) {
		return Rate{}, pkgerrors.Newf(pkgerrors.CodeValidation, "commission rate %s has more than %d decimal places", value.String(), MaxRatePlaces)
	}
	return Rate{value: value}, nil
}

// MustRate is NewRate for constants; it panics on an invalid value.
func MustRate(raw string) Rate {
	rate, err := ParseRate(raw)
	if err != nil {
		panic(err)
	}
	return rate
}

// Decimal exposes the underlying value for persistence.
func (r Rate) Decimal() decimal.Decimal {
	return r.value
}

func (r Rate) String() string {
	return r.value.String()
}

// Fee returns round(totalRevenueCents * rate) in minor units, rounding half away from zero.
func Fee(totalRevenueCents int64, rate Rate) (int64, error) {
	if totalRevenueCents < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "total revenue must not be negative").
			WithDetails(map[string]any{"total_revenue": totalRevenueCents})
	}
	fee := decimal.NewFromInt(totalRevenueCents).Mul(rate.value).Round(0)
	return fee.IntPart(), nil
}
