package escrow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luisorozco/mercaflow-backend/pkg/config"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

func newEscrowServer(t *testing.T, handle http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok_escrow",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/releases", handle)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newEscrowClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(config.EscrowConfig{
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/oauth/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClientRelease(t *testing.T) {
	var captured releaseAPIRequest
	var idempotencyKey string
	server := newEscrowServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok_escrow" {
			t.Fatalf("unexpected authorization %q", got)
		}
		idempotencyKey = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(releaseAPIResponse{ReleaseID: "rel_42", Status: "completed"})
	})
	client := newEscrowClient(t, server)

	result, err := client.Release(context.Background(), ReleaseRequest{
		IdempotencyKey:    "escrow-key-1",
		ProviderPaymentID: "pay_777",
		OrderReference:    "MF-5001",
		TotalCents:        10000,
		VendorCents:       9000,
		PlatformCents:     1000,
		Currency:          "USD",
		RecipientID:       "acct_1",
	})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if result.ProviderReleaseID != "rel_42" {
		t.Fatalf("unexpected release id %q", result.ProviderReleaseID)
	}
	if idempotencyKey != "escrow-key-1" {
		t.Fatalf("unexpected idempotency key %q", idempotencyKey)
	}
	if captured.TransactionID != "pay_777" {
		t.Fatalf("transaction id not sent: %+v", captured)
	}
	if captured.VendorCents != 9000 || captured.PlatformCents != 1000 {
		t.Fatalf("unexpected split %+v", captured)
	}
}

func TestClientReleaseRejection(t *testing.T) {
	server := newEscrowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"recipient suspended"}`))
	})
	client := newEscrowClient(t, server)

	_, err := client.Release(context.Background(), ReleaseRequest{IdempotencyKey: "k", ProviderPaymentID: "pay_1", OrderReference: "MF-1", Currency: "USD"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestClientReleaseMissingReleaseID(t *testing.T) {
	server := newEscrowServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(releaseAPIResponse{Status: "completed"})
	})
	client := newEscrowClient(t, server)

	_, err := client.Release(context.Background(), ReleaseRequest{IdempotencyKey: "k", ProviderPaymentID: "pay_1", OrderReference: "MF-1", Currency: "USD"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnknownOutcome {
		t.Fatalf("expected unknown outcome, got %v", err)
	}
}

func TestClientRequiresIdempotencyKey(t *testing.T) {
	server := newEscrowServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the provider")
	})
	client := newEscrowClient(t, server)

	_, err := client.Release(context.Background(), ReleaseRequest{OrderReference: "MF-1"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
