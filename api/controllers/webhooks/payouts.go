package webhooks

import (
	"io"
	"net/http"

	"github.com/luisorozco/mercaflow-backend/api/responses"
	"github.com/luisorozco/mercaflow-backend/internal/webhooks"
	payoutwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payout"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

// PayoutWebhook ingests transfer status callbacks from the escrow rail.
func PayoutWebhook(svc *payoutwebhook.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		if !webhooks.VerifySignature(body, secret, r.Header.Get("X-Escrow-Signature")) {
			ctx := logg.WithProvider(r.Context(), enums.ProviderEscrow.String())
			logg.Warn(ctx, "webhook signature rejected")
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature"))
			return
		}

		event, err := payoutwebhook.ParseEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.HandleEvent(r.Context(), event, body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "ok")
	}
}
