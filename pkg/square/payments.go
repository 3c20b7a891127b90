package square

import (
	"context"
	"errors"
	"time"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
)

// Payment is the subset of the Square payment payload the sync consumes.
type Payment struct {
	ID          string
	Status      string
	OrderID     string
	LocationID  string
	CreatedAt   time.Time
	AmountMoney Money
	Note        string
}

// Money mirrors Square's money object with amounts in cents.
type Money struct {
	Amount   int64
	Currency string
}

// ListPaymentsParams scopes a payments pull.
type ListPaymentsParams struct {
	BeginTime  time.Time
	LocationID string
	Limit      int
}

// ListPayments pulls payments created at or after BeginTime, oldest first,
// draining the SDK's cursor pager so callers see the whole window at once.
// The sync persists a begin-time watermark between runs, not a page cursor.
func (c *Client) ListPayments(ctx context.Context, params ListPaymentsParams) ([]Payment, error) {
	if c == nil || c.accessToken == "" {
		return nil, errAccessTokenRequired
	}

	req := &sq.ListPaymentsRequest{
		SortOrder: sq.String("ASC"),
	}
	if !params.BeginTime.IsZero() {
		req.BeginTime = sq.String(params.BeginTime.UTC().Format(time.RFC3339))
	}
	if params.LocationID != "" {
		req.LocationID = sq.String(params.LocationID)
	}
	if params.Limit > 0 {
		req.Limit = sq.Int(params.Limit)
	}

	c.log(ctx, "request", "list_payments", map[string]any{
		"begin_time":  params.BeginTime,
		"location_id": params.LocationID,
	})

	page, err := c.sdk.Payments.List(ctx, req)
	if err != nil {
		c.log(ctx, "error", "list_payments", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "list payments")
	}

	var payments []Payment
	for page != nil {
		for _, raw := range page.Results {
			payments = append(payments, mapPayment(raw))
		}
		next, err := page.GetNextPage(ctx)
		if errors.Is(err, sqcore.ErrNoPages) {
			break
		}
		if err != nil {
			c.log(ctx, "error", "list_payments", map[string]any{"error": err.Error()})
			return nil, c.mapSquareError(err, "list payments")
		}
		page = next
	}

	c.log(ctx, "response", "list_payments", map[string]any{"count": len(payments)})
	return payments, nil
}

func mapPayment(raw *sq.Payment) Payment {
	if raw == nil {
		return Payment{}
	}
	payment := Payment{
		ID:         stringValue(raw.GetID()),
		Status:     stringValue(raw.GetStatus()),
		OrderID:    stringValue(raw.GetOrderID()),
		LocationID: stringValue(raw.GetLocationID()),
		Note:       stringValue(raw.GetNote()),
	}
	if created := raw.GetCreatedAt(); created != nil {
		if at, err := time.Parse(time.RFC3339, *created); err == nil {
			payment.CreatedAt = at
		}
	}
	if money := raw.GetAmountMoney(); money != nil {
		if money.Amount != nil {
			payment.AmountMoney.Amount = *money.Amount
		}
		if money.Currency != nil {
			payment.AmountMoney.Currency = string(*money.Currency)
		}
	}
	return payment
}
