package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/api/responses"
	"github.com/luisorozco/mercaflow-backend/api/validators"
	"github.com/luisorozco/mercaflow-backend/internal/escrow"
	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

type releaseEscrowRequest struct {
	Trigger string `json:"trigger" validate:"omitempty,oneof=manual admin"`
}

// AdminReleaseEscrow releases an order's escrowed funds on operator
// request. The admin trigger may release before delivery confirmation;
// the default manual trigger may not.
func AdminReleaseEscrow(svc *escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		trigger := enums.ReleaseTriggerManual
		if r.ContentLength > 0 {
			var req releaseEscrowRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if req.Trigger != "" {
				parsed, err := enums.ParseReleaseTrigger(req.Trigger)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown release trigger"))
					return
				}
				trigger = parsed
			}
		}

		outcome, err := svc.Release(r.Context(), orderID, trigger)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if outcome.AlreadyReleased {
			responses.WriteSuccess(w, outcome)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, outcome)
	}
}

// AdminProcessPayout manually triggers a pending payout, typically after
// an operator resolves whatever parked it.
func AdminProcessPayout(svc *payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout id"))
			return
		}

		outcome, err := svc.Process(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
