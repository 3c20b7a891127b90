package fees

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
)

// PromoKind distinguishes the two discount shapes promo codes support.
type PromoKind string

const (
	PromoPercent PromoKind = "percent"
	PromoFixed   PromoKind = "fixed"
)

// Promo is a resolved discount. Value is a whole percentage for percent
// promos and cents for fixed promos.
type Promo struct {
	Kind  PromoKind
	Value int64
}

// ApplyPromo discounts a subtotal. The result is never clamped: a discount
// that would push the subtotal negative is rejected so fee math downstream
// only ever sees amounts the calculator accepts. A 100 percent promo
// legitimately produces zero, which callers must treat as a skip-payment
// checkout.
func ApplyPromo(subtotalCents int64, promo Promo) (int64, error) {
	if subtotalCents < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	switch promo.Kind {
	case PromoPercent:
		if promo.Value < 0 || promo.Value > 100 {
			return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "promo percentage out of range")
		}
		discount := decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(promo.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		return subtotalCents - discount, nil
	case PromoFixed:
		if promo.Value < 0 {
			return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "promo amount must not be negative")
		}
		if promo.Value > subtotalCents {
			return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "promo exceeds order subtotal")
		}
		return subtotalCents - promo.Value, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown promo kind")
	}
}
