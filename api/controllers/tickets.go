package controllers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/api/middleware"
	"github.com/marketloop/marketloop-backend/api/responses"
	"github.com/marketloop/marketloop-backend/api/validators"
	internaltickets "github.com/marketloop/marketloop-backend/internal/tickets"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

type ticketCheckoutRequest struct {
	TicketID   string `json:"ticket_id" validate:"required,uuid"`
	Quantity   int64  `json:"quantity" validate:"required,min=1,max=50"`
	Currency   string `json:"currency" validate:"omitempty,oneof=usd cad"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

// TicketCheckout opens a hosted checkout session for event tickets. Redirect
// URLs default to the configured storefront pages.
func TicketCheckout(svc *internaltickets.Service, cfg config.TicketsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req ticketCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket id"))
			return
		}

		successURL := req.SuccessURL
		if successURL == "" {
			successURL = cfg.CheckoutSuccessURL
		}
		cancelURL := req.CancelURL
		if cancelURL == "" {
			cancelURL = cfg.CheckoutCancelURL
		}

		result, err := svc.CreateCheckout(r.Context(), internaltickets.CreateCheckoutInput{
			CustomerID: customerID,
			TicketID:   ticketID,
			Quantity:   req.Quantity,
			Currency:   enums.Currency(req.Currency),
			SuccessURL: successURL,
			CancelURL:  cancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"purchase":     result.Purchase,
			"checkout_url": result.CheckoutURL,
		})
	}
}

// TicketDetail returns one purchase after an ownership check.
func TicketDetail(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		purchaseID, err := pathUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.Get(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeTicketAccess(r, purchase); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}

func authorizeTicketAccess(r *http.Request, purchase *models.TicketPurchase) error {
	role := middleware.RoleFromContext(r.Context())
	switch enums.ActorRole(role) {
	case enums.RoleAdmin:
		return nil
	case enums.RoleCustomer:
		userID, err := actorUserID(r)
		if err != nil {
			return err
		}
		if purchase.CustomerID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "ticket does not belong to caller")
		}
		return nil
	case enums.RoleOrganizer:
		organizerID, err := actorVendorID(r)
		if err != nil {
			return err
		}
		if purchase.OrganizerID != organizerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "ticket does not belong to organizer")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role")
	}
}

// ListMyTickets returns the caller's ticket purchases, newest first.
func ListMyTickets(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchases, err := svc.ListByCustomer(r.Context(), customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchases)
	}
}

// ValidateTicket stamps a completed ticket as used at the door. One-way; a
// second scan conflicts.
func ValidateTicket(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		purchaseID, err := pathUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.Get(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeTicketAccess(r, purchase); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Validate(r.Context(), purchaseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "validated"})
	}
}

// CancelTicket refunds a completed, unused purchase and releases capacity.
func CancelTicket(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		purchaseID, err := pathUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.Get(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeTicketAccess(r, purchase); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelled)
	}
}

// OrganizerTicketSummary aggregates completed sales for the caller's events.
func OrganizerTicketSummary(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		organizerID, err := actorVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.SummaryForOrganizer(r.Context(), organizerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

const pngDataPrefix = "data:image/png;base64,"

// TicketQR renders the stored pickup code as a PNG for scanner apps that
// want the raw image instead of the data URI.
func TicketQR(svc *internaltickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		purchaseID, err := pathUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.Get(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeTicketAccess(r, purchase); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if purchase.QRCode == nil || !strings.HasPrefix(*purchase.QRCode, pngDataPrefix) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "ticket has no pickup code"))
			return
		}

		png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(*purchase.QRCode, pngDataPrefix))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode pickup code"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
