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

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

const orbitpayErrorBodyLimit int64 = 1024

// OrbitpayClient talks to the OAuth2 client-credentials provider.
// Amounts go over the wire in major units as decimal strings.
type OrbitpayClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewOrbitpayClient builds an orbitpay client from configuration. The
// returned client refreshes its bearer token automatically.
func NewOrbitpayClient(cfg config.OrbitpayConfig) (*OrbitpayClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("orbitpay base url is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("orbitpay token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("orbitpay client credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := oauthCfg.Client(context.Background())
	httpClient.Timeout = timeout

	return &OrbitpayClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

func (c *OrbitpayClient) Name() enums.PaymentProvider {
	return enums.ProviderOrbitpay
}

type orbitpaySessionRequest struct {
	OrderReference    string `json:"order_reference"`
	MerchantReference string `json:"merchant_reference"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	ReturnURL         string `json:"return_url,omitempty"`
}

type orbitpaySessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateSession opens a hosted checkout session for the order.
func (c *OrbitpayClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := validateSessionRequest(req); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session request")
	}

	amount := decimal.NewFromInt(req.AmountCents).Shift(-2)
	payload, err := json.Marshal(orbitpaySessionRequest{
		OrderReference:    req.OrderReference,
		MerchantReference: req.MerchantReference,
		Amount:            amount.StringFixed(2),
		Currency:          req.Currency.String(),
		CustomerEmail:     req.CustomerEmail,
		ReturnURL:         req.RedirectURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal orbitpay request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build orbitpay request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute orbitpay request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, orbitpayErrorBodyLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"orbitpay session creation failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read orbitpay response")
	}
	var apiResp orbitpaySessionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode orbitpay response")
	}
	if apiResp.SessionID == "" || apiResp.CheckoutURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orbitpay response missing session id or url")
	}

	return &Session{ProviderSessionID: apiResp.SessionID, CheckoutURL: apiResp.CheckoutURL, RawResponse: body}, nil
}
