package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/api/responses"
	"github.com/marketloop/marketloop-backend/api/validators"
	internalsales "github.com/marketloop/marketloop-backend/internal/sales"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// VendorSalesSummary totals the unified sales ledger over a date range.
// Omitted bounds mean unbounded.
func VendorSalesSummary(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		vendorID, from, to, err := salesWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), vendorID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// VendorSalesList returns ledger rows across both payment sources.
func VendorSalesList(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		vendorID, from, to, err := salesWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sales, err := svc.ListByVendor(r.Context(), vendorID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales)
	}
}

// VendorUnassignedSales lists Square pulls that matched no popup window and
// wait for manual market assignment.
func VendorUnassignedSales(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		vendorID, err := actorVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sales, err := svc.ListUnassigned(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales)
	}
}

type assignSaleRequest struct {
	MarketID   string `json:"market_id" validate:"required,uuid"`
	MarketName string `json:"market_name" validate:"required,max=256"`
}

// AssignSaleMarket pins an unassigned sale to a market.
func AssignSaleMarket(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID := strings.TrimSpace(chi.URLParam(r, "saleId"))
		if saleID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required"))
			return
		}

		var req assignSaleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		marketID, err := uuid.Parse(req.MarketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid market id"))
			return
		}

		if err := svc.AssignMarket(r.Context(), saleID, marketID, req.MarketName); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "assigned"})
	}
}

func salesWindow(r *http.Request) (uuid.UUID, time.Time, time.Time, error) {
	vendorID, err := actorVendorID(r)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, err
	}
	from, err := validators.ParseQueryTime(r, "from", time.Time{})
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, err
	}
	to, err := validators.ParseQueryTime(r, "to", time.Time{})
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, err
	}
	return vendorID, from, to, nil
}
