package currency

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestParse(t *testing.T) {
	c, err := Parse(" eur ")
	require.NoError(t, err)
	assert.Equal(t, Currency("EUR"), c)

	for _, bad := range []string{"", "EU", "EURO", "E1R", "€€€"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		cur  Currency
		in   string
		want string
	}{
		{"EUR", "1.005", "1.01"},
		{"EUR", "-1.005", "-1.01"},
		{"EUR", "2.344", "2.34"},
		{"JPY", "150.5", "151"},
		{"KWD", "1.23456", "1.235"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cur)+" "+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cur.Format(tt.cur.Round(d(tt.in))))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "10.00", Currency("EUR").Format(d("10")))
	assert.Equal(t, "0.500", Currency("BHD").Format(d("0.5")))
	assert.Equal(t, "7", Currency("JPY").Format(d("7")))
	assert.Equal(t, int32(2), Currency("USD").MinorUnits())
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()
	rates := Table{"USD/EUR": d("0.92")}

	price, rate, err := Normalize(ctx, rates, d("2.999"), "EUR", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "3.00", Currency("EUR").Format(price))
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	price, rate, err = Normalize(ctx, rates, d("49.00"), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "45.08", Currency("EUR").Format(price))
	assert.True(t, rate.Equal(d("0.92")))

	// Inverse of a known pair.
	price, _, err = Normalize(ctx, rates, d("9.20"), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, "10.00", Currency("USD").Format(price))

	_, _, err = Normalize(ctx, rates, d("1"), "GBP", "EUR")
	require.ErrorIs(t, err, ErrUnknownRate)

	_, _, err = Normalize(ctx, nil, d("1"), "GBP", "EUR")
	require.ErrorIs(t, err, ErrUnknownRate)

	_, _, err = Normalize(ctx, Table{"GBP/EUR": d("0")}, d("1"), "GBP", "EUR")
	require.Error(t, err)
}
