package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/api/middleware"
	"github.com/marketloop/marketloop-backend/api/responses"
	"github.com/marketloop/marketloop-backend/api/validators"
	"github.com/marketloop/marketloop-backend/internal/fees"
	internalorders "github.com/marketloop/marketloop-backend/internal/orders"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type lineItemRequest struct {
	ProductID      *string `json:"product_id,omitempty" validate:"omitempty,uuid"`
	Name           string  `json:"name" validate:"required,max=256"`
	Quantity       int64   `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64   `json:"unit_price_cents" validate:"min=0"`
}

type createOrderRequest struct {
	VendorID   string            `json:"vendor_id" validate:"required,uuid"`
	MarketID   *string           `json:"market_id,omitempty" validate:"omitempty,uuid"`
	Items      []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Currency   string            `json:"currency" validate:"omitempty,oneof=usd cad"`
	PromoCode  *string           `json:"promo_code,omitempty"`
	PromoKind  string            `json:"promo_kind,omitempty" validate:"omitempty,oneof=percent fixed"`
	PromoValue int64             `json:"promo_value,omitempty" validate:"min=0"`
}

func buildLineItems(items []lineItemRequest) (types.LineItems, error) {
	out := make(types.LineItems, 0, len(items))
	for _, item := range items {
		var productID *uuid.UUID
		if item.ProductID != nil {
			id, err := uuid.Parse(*item.ProductID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
			}
			productID = &id
		}
		out = append(out, types.LineItem{
			ProductID:      productID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.Quantity * item.UnitPriceCents,
		})
	}
	return out, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return &id, nil
}

func promoFromRequest(kind string, value int64) *fees.Promo {
	if kind == "" {
		return nil
	}
	return &fees.Promo{Kind: fees.PromoKind(kind), Value: value}
}

// CreateOrder opens a pending product order and returns the payment intent
// client secret. Zero-total orders come back already paid.
func CreateOrder(svc *internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
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

		result, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			CustomerID: customerID,
			VendorID:   vendorID,
			MarketID:   marketID,
			Items:      items,
			Promo:      promoFromRequest(req.PromoKind, req.PromoValue),
			PromoCode:  req.PromoCode,
			Currency:   enums.Currency(req.Currency),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"order":         result.Order,
			"client_secret": result.ClientSecret,
		})
	}
}

// OrderDetail returns one order after an ownership check against the caller.
func OrderDetail(svc *internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrderAccess(r, order); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func authorizeOrderAccess(r *http.Request, order *models.Order) error {
	role := middleware.RoleFromContext(r.Context())
	switch enums.ActorRole(role) {
	case enums.RoleAdmin:
		return nil
	case enums.RoleCustomer:
		userID, err := actorUserID(r)
		if err != nil {
			return err
		}
		if order.CustomerID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
		}
		return nil
	case enums.RoleVendor:
		vendorID, err := actorVendorID(r)
		if err != nil {
			return err
		}
		if order.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to vendor")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role")
	}
}

// ListMyOrders returns the caller's orders, newest first.
func ListMyOrders(svc *internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		orders, err := svc.ListByCustomer(r.Context(), customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders)
	}
}

// ListVendorOrders returns orders routed to the caller's vendor account.
func ListVendorOrders(svc *internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		orders, err := svc.ListByVendor(r.Context(), vendorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders)
	}
}

// RefundOrder reverses a paid order: provider refund, restock, ledger flip.
func RefundOrder(svc *internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeOrderAccess(r, order); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refunded, err := svc.Refund(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refunded)
	}
}

func actorRef(r *http.Request) (*outbox.ActorRef, error) {
	userID, err := actorUserID(r)
	if err != nil {
		return nil, err
	}
	ref := &outbox.ActorRef{
		UserID: userID,
		Role:   middleware.RoleFromContext(r.Context()),
	}
	if raw := middleware.VendorIDFromContext(r.Context()); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err == nil {
			ref.VendorID = &vendorID
		}
	}
	return ref, nil
}
