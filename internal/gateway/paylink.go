package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

const paylinkErrorBodyLimit int64 = 1024

// PaylinkClient talks to the API-key hosted-payment-page provider.
// Amounts go over the wire in minor units.
type PaylinkClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewPaylinkClient builds a paylink client from configuration.
func NewPaylinkClient(cfg config.PaylinkConfig) (*PaylinkClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("paylink base url is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("paylink api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaylinkClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}, nil
}

func (c *PaylinkClient) Name() enums.PaymentProvider {
	return enums.ProviderPaylink
}

type paylinkSessionRequest struct {
	Reference         string `json:"reference"`
	MerchantReference string `json:"merchant_reference"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	RedirectURL       string `json:"redirect_url,omitempty"`
}

type paylinkSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession opens a hosted payment page for the order.
func (c *PaylinkClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := validateSessionRequest(req); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session request")
	}

	payload, err := json.Marshal(paylinkSessionRequest{
		Reference:         req.OrderReference,
		MerchantReference: req.MerchantReference,
		AmountCents:       req.AmountCents,
		Currency:          req.Currency.String(),
		CustomerEmail:     req.CustomerEmail,
		RedirectURL:       req.RedirectURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal paylink request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_links", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paylink request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paylink request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, paylinkErrorBodyLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"paylink session creation failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read paylink response")
	}
	var apiResp paylinkSessionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paylink response")
	}
	if apiResp.ID == "" || apiResp.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paylink response missing session id or url")
	}

	return &Session{ProviderSessionID: apiResp.ID, CheckoutURL: apiResp.URL, RawResponse: body}, nil
}
