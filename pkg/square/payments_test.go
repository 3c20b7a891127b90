package square

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sq "github.com/square/square-go-sdk"
)

func TestMapPaymentCopiesSDKFields(t *testing.T) {
	currency := sq.Currency("USD")
	raw := &sq.Payment{
		ID:         sq.String("sqpay_abc"),
		Status:     sq.String("COMPLETED"),
		OrderID:    sq.String("order_123"),
		LocationID: sq.String("LQ7MAIN"),
		CreatedAt:  sq.String("2026-03-14T12:30:00Z"),
		Note:       sq.String("market day"),
		AmountMoney: &sq.Money{
			Amount:   sq.Int64(1250),
			Currency: &currency,
		},
	}

	payment := mapPayment(raw)

	assert.Equal(t, "sqpay_abc", payment.ID)
	assert.Equal(t, "COMPLETED", payment.Status)
	assert.Equal(t, "order_123", payment.OrderID)
	assert.Equal(t, "LQ7MAIN", payment.LocationID)
	assert.Equal(t, "market day", payment.Note)
	assert.Equal(t, int64(1250), payment.AmountMoney.Amount)
	assert.Equal(t, "USD", payment.AmountMoney.Currency)

	want := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
	require.True(t, payment.CreatedAt.Equal(want))
}

func TestMapPaymentToleratesSparsePayloads(t *testing.T) {
	payment := mapPayment(&sq.Payment{ID: sq.String("sqpay_bare")})

	assert.Equal(t, "sqpay_bare", payment.ID)
	assert.True(t, payment.CreatedAt.IsZero())
	assert.Zero(t, payment.AmountMoney.Amount)
	assert.Empty(t, payment.AmountMoney.Currency)

	assert.Equal(t, Payment{}, mapPayment(nil))
}
