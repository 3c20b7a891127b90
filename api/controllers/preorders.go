package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/api/middleware"
	"github.com/marketloop/marketloop-backend/api/responses"
	"github.com/marketloop/marketloop-backend/api/validators"
	internalpreorders "github.com/marketloop/marketloop-backend/internal/preorders"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

type createPreorderRequest struct {
	VendorID string            `json:"vendor_id" validate:"required,uuid"`
	MarketID *string           `json:"market_id,omitempty" validate:"omitempty,uuid"`
	Items    []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Currency string            `json:"currency" validate:"omitempty,oneof=usd cad"`
}

// ConnectAccountSource resolves a vendor's Stripe Connect account id.
// Satisfied by the preorders repository.
type ConnectAccountSource interface {
	FindConnectAccountID(ctx context.Context, vendorID uuid.UUID) (string, error)
}

// CreatePreorder opens a pending preorder. The fee is charged on top and
// the vendor payout moves over Connect once the intent succeeds.
func CreatePreorder(svc *internalpreorders.Service, accounts ConnectAccountSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preorders service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPreorderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorID, err := uuid.Parse(req.VendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id"))
			return
		}
		marketID, err := parseOptionalUUID(req.MarketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := buildLineItems(req.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var stripeAccountID string
		if accounts != nil {
			stripeAccountID, err = accounts.FindConnectAccountID(r.Context(), vendorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve vendor payout account"))
				return
			}
		}

		result, err := svc.Create(r.Context(), internalpreorders.CreatePreorderInput{
			CustomerID:      customerID,
			VendorID:        vendorID,
			MarketID:        marketID,
			Items:           items,
			Currency:        enums.Currency(req.Currency),
			StripeAccountID: stripeAccountID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"preorder":      result.Preorder,
			"client_secret": result.ClientSecret,
		})
	}
}

// PreorderDetail returns one preorder after an ownership check.
func PreorderDetail(svc *internalpreorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preorders service unavailable"))
			return
		}

		preorderID, err := pathUUID(r, "preorderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preorder, err := svc.Get(r.Context(), preorderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizePreorderAccess(r, preorder); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preorder)
	}
}

func authorizePreorderAccess(r *http.Request, preorder *models.Preorder) error {
	role := middleware.RoleFromContext(r.Context())
	switch enums.ActorRole(role) {
	case enums.RoleAdmin:
		return nil
	case enums.RoleCustomer:
		userID, err := actorUserID(r)
		if err != nil {
			return err
		}
		if preorder.CustomerID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "preorder does not belong to caller")
		}
		return nil
	case enums.RoleVendor:
		vendorID, err := actorVendorID(r)
		if err != nil {
			return err
		}
		if preorder.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "preorder does not belong to vendor")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role")
	}
}

// ListMyPreorders returns the caller's preorders, newest first.
func ListMyPreorders(svc *internalpreorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preorders service unavailable"))
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

		preorders, err := svc.ListByCustomer(r.Context(), customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preorders)
	}
}

// ListVendorPreorders returns preorders routed to the caller's vendor account.
func ListVendorPreorders(svc *internalpreorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preorders service unavailable"))
			return
		}

		vendorID, err := actorVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preorders, err := svc.ListByVendor(r.Context(), vendorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preorders)
	}
}

// RefundPreorder reverses a paid preorder. Blocked once the vendor transfer
// settled; the conflict from the service surfaces as-is.
func RefundPreorder(svc *internalpreorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preorders service unavailable"))
			return
		}

		preorderID, err := pathUUID(r, "preorderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preorder, err := svc.Get(r.Context(), preorderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizePreorderAccess(r, preorder); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refunded, err := svc.Refund(r.Context(), preorderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refunded)
	}
}
