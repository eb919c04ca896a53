package webhooks

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luisorozco/mercaflow-backend/api/responses"
	"github.com/luisorozco/mercaflow-backend/internal/webhooks"
	paymentwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payment"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// PaymentWebhook ingests provider callbacks. The signature is checked
// against the raw body before anything is parsed or persisted, so a
// forged request never touches the ledger.
func PaymentWebhook(svc *paymentwebhook.Service, secrets map[enums.PaymentProvider]string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := enums.ParsePaymentProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment provider"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		header := r.Header.Get(fmt.Sprintf("X-%s-Signature", provider))
		if !webhooks.VerifySignature(body, secrets[provider], header) {
			ctx := logg.WithProvider(r.Context(), provider.String())
			logg.Warn(ctx, "webhook signature rejected")
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature"))
			return
		}

		event, err := paymentwebhook.ParseEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.HandleEvent(r.Context(), provider, event, body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "ok")
	}
}
