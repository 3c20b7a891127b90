package squaresync

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"go.uber.org/multierr"

	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/square"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// completedStatus is the only Square payment status the ledger records.
const completedStatus = "COMPLETED"

// popupTimeLayout matches the HH:MM strings stored on vendor popups.
const popupTimeLayout = "15:04"

// SquarePayments is the token-scoped slice of the Square client the sync
// consumes.
type SquarePayments interface {
	ListPayments(ctx context.Context, params square.ListPaymentsParams) ([]square.Payment, error)
	GetOrder(ctx context.Context, orderID string) (*sq.Order, error)
}

// ClientFactory builds a Square client scoped to one vendor's token.
type ClientFactory interface {
	WithToken(accessToken string) (SquarePayments, error)
}

type clientFactory struct {
	base *square.Client
}

// NewClientFactory wraps the shared Square client for per-vendor use.
func NewClientFactory(base *square.Client) ClientFactory {
	if base == nil {
		return nil
	}
	return &clientFactory{base: base}
}

func (f *clientFactory) WithToken(accessToken string) (SquarePayments, error) {
	return f.base.WithToken(accessToken)
}

// ServiceParams groups dependencies for the Square sync service.
type ServiceParams struct {
	Repo    Repository
	Sales   sales.Service
	Clients ClientFactory
	Logger  *logger.Logger
}

// Service pulls completed Square payments into the unified sales ledger.
// Each vendor syncs from their stored cursor; the deterministic sale key
// makes re-pulling an overlap safe, and popup schedule windows attribute
// in-person payments to a market.
type Service struct {
	repo    Repository
	sales   sales.Service
	clients ClientFactory
	logg    *logger.Logger
}

// NewService builds a Square sync service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "squaresync repo required")
	}
	if params.Sales == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sales service required")
	}
	if params.Clients == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client factory required")
	}
	return &Service{
		repo:    params.Repo,
		sales:   params.Sales,
		clients: params.Clients,
		logg:    params.Logger,
	}, nil
}

// SyncAll pulls every active Square integration. One vendor's failure does
// not stop the rest; the errors are collected and returned together.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	integrations, err := s.repo.ListActiveIntegrations(ctx, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list square integrations")
	}

	total := 0
	var errs error
	for i := range integrations {
		synced, err := s.syncIntegration(ctx, &integrations[i])
		total += synced
		if err != nil {
			if s.logg != nil {
				ctx := s.logg.WithVendorID(ctx, integrations[i].VendorID.String())
				s.logg.Error(ctx, "square sync failed for vendor", err)
			}
			errs = multierr.Append(errs, err)
		}
	}
	return total, errs
}

// SyncVendor runs one vendor's pull on demand.
func (s *Service) SyncVendor(ctx context.Context, vendorID uuid.UUID) (int, error) {
	if vendorID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	integration, err := s.repo.FindIntegrationByVendorID(ctx, vendorID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load square integration")
	}
	if integration == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "square integration not found")
	}
	if !integration.Active {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "square integration is disabled")
	}
	return s.syncIntegration(ctx, integration)
}

func (s *Service) syncIntegration(ctx context.Context, integration *models.VendorIntegration) (int, error) {
	if integration.AccessToken == nil || *integration.AccessToken == "" {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "square access token missing")
	}
	client, err := s.clients.WithToken(*integration.AccessToken)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scope square client")
	}

	var begin time.Time
	if integration.SyncCursor != nil {
		begin = *integration.SyncCursor
	}
	locationID := ""
	if integration.SquareLocationID != nil {
		locationID = *integration.SquareLocationID
	}

	payments, err := client.ListPayments(ctx, square.ListPaymentsParams{
		BeginTime:  begin,
		LocationID: locationID,
	})
	if err != nil {
		return 0, err
	}

	synced := 0
	newest := begin
	for i := range payments {
		payment := &payments[i]
		if payment.Status != completedStatus {
			continue
		}
		if err := s.recordPayment(ctx, client, integration.VendorID, payment); err != nil {
			return synced, err
		}
		synced++
		if payment.CreatedAt.After(newest) {
			newest = payment.CreatedAt
		}
	}

	if newest.After(begin) {
		if err := s.repo.UpdateSyncCursor(ctx, integration.ID, newest); err != nil {
			return synced, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update sync cursor")
		}
	}
	return synced, nil
}

func (s *Service) recordPayment(ctx context.Context, client SquarePayments, vendorID uuid.UUID, payment *square.Payment) error {
	marketID, marketName, err := s.attributeMarket(ctx, vendorID, payment.CreatedAt)
	if err != nil {
		return err
	}

	items := s.expandLineItems(ctx, client, payment.OrderID)

	_, err = s.sales.RecordSale(ctx, sales.RecordSaleInput{
		VendorID:    vendorID,
		PaymentID:   payment.ID,
		Source:      enums.PaymentSourceSquare,
		AmountCents: payment.AmountMoney.Amount,
		Currency:    enums.Currency(normalizeCurrency(payment.AmountMoney.Currency)),
		Status:      "completed",
		OccurredAt:  payment.CreatedAt,
		MarketID:    marketID,
		MarketName:  marketName,
		LineItems:   items,
	})
	return err
}

// attributeMarket matches a payment timestamp against the vendor's popup
// schedule for that day. No popup window containing the timestamp leaves
// the sale unassigned for later manual review.
func (s *Service) attributeMarket(ctx context.Context, vendorID uuid.UUID, at time.Time) (*uuid.UUID, *string, error) {
	popups, err := s.repo.ListPopupsOn(ctx, vendorID, at.UTC())
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vendor popups")
	}
	for i := range popups {
		if popupCovers(&popups[i], at.UTC()) {
			return popups[i].MarketID, popups[i].MarketName, nil
		}
	}
	return nil, nil, nil
}

// expandLineItems pulls the Square order for catalog names and per-line
// amounts. Enrichment is best effort: a missing or unreadable order leaves
// the sale with its total only.
func (s *Service) expandLineItems(ctx context.Context, client SquarePayments, orderID string) types.LineItems {
	if orderID == "" {
		return types.LineItems{}
	}
	order, err := client.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		if err != nil && s.logg != nil {
			ctx := s.logg.WithField(ctx, "order_id", orderID)
			s.logg.Warn(ctx, "square order lookup failed; recording sale without line items")
		}
		return types.LineItems{}
	}

	items := types.LineItems{}
	for _, line := range order.GetLineItems() {
		if line == nil {
			continue
		}
		quantity := parseQuantity(line.GetQuantity())
		item := types.LineItem{
			Name:     stringValue(line.GetName()),
			Quantity: quantity,
		}
		if money := line.GetBasePriceMoney(); money != nil && money.GetAmount() != nil {
			item.UnitPriceCents = *money.GetAmount()
		}
		if money := line.GetTotalMoney(); money != nil && money.GetAmount() != nil {
			item.TotalCents = *money.GetAmount()
		} else {
			item.TotalCents = item.UnitPriceCents * quantity
		}
		items = append(items, item)
	}
	return items
}

func popupCovers(popup *models.VendorPopup, at time.Time) bool {
	start, err := time.Parse(popupTimeLayout, popup.StartTime)
	if err != nil {
		return false
	}
	end, err := time.Parse(popupTimeLayout, popup.EndTime)
	if err != nil {
		return false
	}
	day := popup.Date.UTC()
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, time.UTC)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, time.UTC)
	return !at.Before(windowStart) && at.Before(windowEnd)
}

func parseQuantity(raw string) int64 {
	quantity, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || quantity <= 0 {
		return 1
	}
	return quantity
}

func normalizeCurrency(raw string) string {
	if raw == "" {
		return enums.CurrencyUSD.String()
	}
	return strings.ToLower(raw)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
