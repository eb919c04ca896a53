package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/api/middleware"
	"github.com/luisorozco/mercaflow-backend/api/responses"
	"github.com/luisorozco/mercaflow-backend/api/validators"
	"github.com/luisorozco/mercaflow-backend/internal/gateway"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

type createPaymentSessionRequest struct {
	Provider string `json:"provider" validate:"required"`
}

// CreatePaymentSession reserves the order's stock and opens a hosted
// checkout session with the requested provider.
func CreatePaymentSession(svc *gateway.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		var req createPaymentSessionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParsePaymentProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment provider"))
			return
		}

		session, err := svc.CreateSession(r.Context(), orderID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// ClaimOrder attaches the authenticated user to a guest order.
func ClaimOrder(svc *orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		order, err := svc.ClaimOrder(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order_id": order.ID,
			"status":   order.Status,
			"user_id":  order.UserID,
		})
	}
}
