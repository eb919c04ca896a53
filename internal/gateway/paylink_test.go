package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

func TestPaylinkCreateSession(t *testing.T) {
	var captured paylinkSessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_links" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "pk_test_123" {
			t.Fatalf("unexpected api key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(paylinkSessionResponse{ID: "pl_sess_1", URL: "https://pay.example/pl_sess_1"})
	}))
	defer server.Close()

	client, err := NewPaylinkClient(config.PaylinkConfig{BaseURL: server.URL, APIKey: "pk_test_123"})
	if err != nil {
		t.Fatalf("NewPaylinkClient: %v", err)
	}

	session, err := client.CreateSession(context.Background(), SessionRequest{
		OrderReference:    "MF-2001",
		MerchantReference: "MF-2001-1700000000",
		AmountCents:       12345,
		Currency:          enums.CurrencyUSD,
		CustomerEmail:     "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ProviderSessionID != "pl_sess_1" {
		t.Fatalf("unexpected session id %q", session.ProviderSessionID)
	}
	if len(session.RawResponse) == 0 {
		t.Fatal("raw response not captured")
	}
	if captured.AmountCents != 12345 {
		t.Fatalf("amount sent in wrong units: %d", captured.AmountCents)
	}
	if captured.MerchantReference != "MF-2001-1700000000" {
		t.Fatalf("merchant reference not sent: %+v", captured)
	}
	if captured.Currency != "USD" {
		t.Fatalf("unexpected currency %q", captured.Currency)
	}
}

func TestPaylinkCreateSessionProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"amount too large"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client, err := NewPaylinkClient(config.PaylinkConfig{BaseURL: server.URL, APIKey: "pk_test_123"})
	if err != nil {
		t.Fatalf("NewPaylinkClient: %v", err)
	}

	_, err = client.CreateSession(context.Background(), SessionRequest{
		OrderReference:    "MF-2002",
		MerchantReference: "MF-2002-1700000000",
		AmountCents:       100,
		Currency:          enums.CurrencyUSD,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestPaylinkRequiresConfig(t *testing.T) {
	if _, err := NewPaylinkClient(config.PaylinkConfig{APIKey: "x"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewPaylinkClient(config.PaylinkConfig{BaseURL: "https://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
