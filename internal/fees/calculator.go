package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketloop/marketloop-backend/pkg/config"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
)

// Breakdown is the cent-exact split of a payment.
//
// For purchases the platform fee is charged on top of the subtotal, so
// TotalCents is what the shopper pays and PayoutCents equals the subtotal.
// For applications the fee comes out of the posted booth total, so
// TotalCents is what the vendor pays and PayoutCents is total minus fee.
type Breakdown struct {
	SubtotalCents    int64
	PlatformFeeCents int64
	TotalCents       int64
	PayoutCents      int64
}

// Calculator derives fee breakdowns from configured basis-point rates.
// All arithmetic happens in decimal and rounds half up once, at the fee.
type Calculator struct {
	purchaseRateBps    int64
	applicationRateBps int64
}

// NewCalculator validates the configured rates and returns a calculator.
func NewCalculator(cfg config.FeesConfig) (*Calculator, error) {
	if cfg.PlatformRateBps < 0 || cfg.PlatformRateBps > 10000 {
		return nil, fmt.Errorf("platform rate %d bps out of range", cfg.PlatformRateBps)
	}
	if cfg.ApplicationRateBps < 0 || cfg.ApplicationRateBps > 10000 {
		return nil, fmt.Errorf("application rate %d bps out of range", cfg.ApplicationRateBps)
	}
	return &Calculator{
		purchaseRateBps:    int64(cfg.PlatformRateBps),
		applicationRateBps: int64(cfg.ApplicationRateBps),
	}, nil
}

// Purchase computes the fee-on-top breakdown for orders, preorders and
// ticket purchases. A zero subtotal is valid (fully discounted checkout)
// and yields a zero fee.
func (c *Calculator) Purchase(subtotalCents int64) (Breakdown, error) {
	if subtotalCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	fee := roundHalfUpBps(subtotalCents, c.purchaseRateBps)
	return Breakdown{
		SubtotalCents:    subtotalCents,
		PlatformFeeCents: fee,
		TotalCents:       subtotalCents + fee,
		PayoutCents:      subtotalCents,
	}, nil
}

// Application computes the fee-inclusive breakdown for vendor application
// payments. The vendor pays the posted total; the platform keeps the fee and
// the organizer receives the remainder.
func (c *Calculator) Application(totalCents int64) (Breakdown, error) {
	if totalCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	fee := roundHalfUpBps(totalCents, c.applicationRateBps)
	return Breakdown{
		SubtotalCents:    totalCents,
		PlatformFeeCents: fee,
		TotalCents:       totalCents,
		PayoutCents:      totalCents - fee,
	}, nil
}

func roundHalfUpBps(amountCents int64, rateBps int64) int64 {
	if amountCents == 0 || rateBps == 0 {
		return 0
	}
	fee := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(rateBps)).
		Div(decimal.NewFromInt(10000)).
		Round(0)
	return fee.IntPart()
}
