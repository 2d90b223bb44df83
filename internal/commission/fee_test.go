package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

func TestFee(t *testing.T) {
	fivePct := MustRate("0.05")

	cases := []struct {
		name  string
		total int64
		rate  Rate
		want  int64
	}{
		{name: "zero revenue", total: 0, rate: fivePct, want: 0},
		{name: "three orders", total: 300_000, rate: fivePct, want: 15_000},
		{name: "rounds half away from zero", total: 10, rate: fivePct, want: 1},
		{name: "rounds down below half", total: 9, rate: fivePct, want: 0},
		{name: "odd rate", total: 123_457, rate: MustRate("0.0725"), want: 8_951},
		{name: "full rate", total: 42, rate: MustRate("1"), want: 42},
		{name: "zero rate", total: 42, rate: MustRate("0"), want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Fee(tc.total, tc.rate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFeeRejectsNegativeRevenue(t *testing.T) {
	_, err := Fee(-1, MustRate("0.05"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFeeIsDeterministicAcrossSplits(t *testing.T) {
	rate := MustRate("0.05")
	total := int64(0)
	for i := 0; i < 1000; i++ {
		total += 333
	}
	first, err := Fee(total, rate)
	require.NoError(t, err)
	second, err := Fee(total, rate)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(16_650), first)
}

func TestParseRate(t *testing.T) {
	rate, err := ParseRate(" 0.05 ")
	require.NoError(t, err)
	assert.True(t, rate.Decimal().Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, "0.05", rate.String())

	for _, raw := range []string{"abc", "-0.01", "1.5", "0.12345"} {
		_, err := ParseRate(raw)
		require.Error(t, err, raw)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestNewRateKeepsStoredScale(t *testing.T) {
	rate, err := NewRate(decimal.RequireFromString("0.12340"))
	require.NoError(t, err)
	assert.True(t, rate.Decimal().Equal(decimal.RequireFromString("0.1234")))

	_, err = NewRate(decimal.RequireFromString("0.00005"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "more than 4 decimal places")
}
