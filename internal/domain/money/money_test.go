package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{"25.50", 2550},
		{"0.005", 1},
		{"0.004", 0},
		{"6.435", 644},
		{"10", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FromDecimal(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("34.44")
	require.NoError(t, err)
	assert.Equal(t, Amount(3444), a)
	assert.Equal(t, "34.44", a.String())

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestApplyBPS(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
		bps    int64
		want   Amount
	}{
		{"23% of 28.00", 2800, 2300, 644},
		{"half rounds up", 50, 1000, 5},
		{"23% of 25.50", 2550, 2300, 587},
		{"zero amount", 0, 2300, 0},
		{"zero rate", 1000, 0, 0},
		{"12.5% of 9.99", 999, 1250, 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.amount.ApplyBPS(tt.bps))
		})
	}
}

func TestUnits(t *testing.T) {
	assert.Equal(t, int64(34), Amount(3444).Units())
	assert.Equal(t, int64(0), Amount(99).Units())
	assert.Equal(t, int64(0), Amount(-500).Units())
}

func TestPercentToBPS(t *testing.T) {
	assert.Equal(t, int64(1250), PercentToBPS(decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(10000), PercentToBPS(decimal.NewFromInt(100)))
}
