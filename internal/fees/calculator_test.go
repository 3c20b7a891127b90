package fees

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloop/marketloop-backend/pkg/config"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(config.FeesConfig{PlatformRateBps: 600, ApplicationRateBps: 600})
	require.NoError(t, err)
	return calc
}

func TestPurchaseFeeOnTop(t *testing.T) {
	calc := newTestCalculator(t)

	cases := []struct {
		name     string
		subtotal int64
		fee      int64
	}{
		{"even dollars", 10000, 600},
		{"rounds half up", 1075, 65}, // 64.5 -> 65
		{"rounds down", 1050, 63},    // 63.0 exact
		{"single cent", 1, 0},        // 0.06 -> 0
		{"eight cents", 8, 0},        // 0.48 -> 0
		{"nine cents", 9, 1},         // 0.54 -> 1
		{"large amount", 99999999, 6000000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.Purchase(tc.subtotal)
			require.NoError(t, err)
			assert.Equal(t, tc.fee, got.PlatformFeeCents)
			assert.Equal(t, tc.subtotal+tc.fee, got.TotalCents)
			assert.Equal(t, tc.subtotal, got.PayoutCents)
		})
	}
}

func TestPurchaseBreakdownHoldsAcrossRange(t *testing.T) {
	calc := newTestCalculator(t)
	rng := rand.New(rand.NewSource(600))

	subtotals := []int64{0, 1, 2, 99, 100, 9999, 1000000, 99999999}
	for i := 0; i < 500; i++ {
		subtotals = append(subtotals, rng.Int63n(100_000_000))
	}

	for _, subtotal := range subtotals {
		got, err := calc.Purchase(subtotal)
		require.NoError(t, err)
		assert.Equal(t, subtotal+got.PlatformFeeCents, got.TotalCents, "subtotal %d", subtotal)
		assert.Equal(t, subtotal, got.PayoutCents, "subtotal %d", subtotal)
		assert.GreaterOrEqual(t, got.PlatformFeeCents, int64(0), "subtotal %d", subtotal)
	}
}

func TestPurchaseZeroSubtotal(t *testing.T) {
	calc := newTestCalculator(t)

	got, err := calc.Purchase(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PlatformFeeCents)
	assert.Equal(t, int64(0), got.TotalCents)
	assert.Equal(t, int64(0), got.PayoutCents)
}

func TestPurchaseRejectsNegative(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.Purchase(-1)
	require.Error(t, err)
}

func TestApplicationFeeInclusive(t *testing.T) {
	calc := newTestCalculator(t)

	got, err := calc.Application(25000)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.PlatformFeeCents)
	assert.Equal(t, int64(25000), got.TotalCents)
	assert.Equal(t, int64(23500), got.PayoutCents)

	// fee + payout always reassembles the total
	assert.Equal(t, got.TotalCents, got.PlatformFeeCents+got.PayoutCents)
}

func TestApplicationConservation(t *testing.T) {
	calc := newTestCalculator(t)

	for _, total := range []int64{1, 7, 99, 1234, 56789, 1000001} {
		got, err := calc.Application(total)
		require.NoError(t, err)
		assert.Equal(t, total, got.PlatformFeeCents+got.PayoutCents, "total %d", total)
	}
}

func TestApplicationRejectsNegative(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.Application(-500)
	require.Error(t, err)
}

func TestNewCalculatorRejectsOutOfRangeRates(t *testing.T) {
	_, err := NewCalculator(config.FeesConfig{PlatformRateBps: -1, ApplicationRateBps: 600})
	require.Error(t, err)

	_, err = NewCalculator(config.FeesConfig{PlatformRateBps: 600, ApplicationRateBps: 10001})
	require.Error(t, err)
}

func TestZeroRateChargesNoFee(t *testing.T) {
	calc, err := NewCalculator(config.FeesConfig{PlatformRateBps: 0, ApplicationRateBps: 0})
	require.NoError(t, err)

	purchase, err := calc.Purchase(5000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purchase.PlatformFeeCents)
	assert.Equal(t, int64(5000), purchase.TotalCents)

	application, err := calc.Application(5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), application.PayoutCents)
}
