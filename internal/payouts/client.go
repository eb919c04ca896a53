package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/luisorozco/mercaflow-backend/pkg/config"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

const payoutErrorBodyLimit int64 = 1024

// InitiateRequest asks the payout rail to transfer a vendor's share.
type InitiateRequest struct {
	IdempotencyKey string
	RecipientID    string
	AmountCents    int64
	Currency       string
	OrderReference string
}

// InitiateResult is the rail's acknowledgment of an accepted payout.
type InitiateResult struct {
	ProviderPayoutID string
}

// Client is the HTTP client for the payout rail. It shares the escrow
// provider's credentials and token endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds the payout client.
func NewClient(cfg config.EscrowConfig) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("payout base url is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("payout token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("payout client credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := oauthCfg.Client(context.Background())
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

type payoutAPIRequest struct {
	RecipientID    string `json:"recipient_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	OrderReference string `json:"order_reference"`
}

type payoutAPIResponse struct {
	PayoutID string `json:"payout_id"`
	Status   string `json:"status"`
}

// InitiatePayout submits the transfer. A timeout is an unknown outcome:
// the transfer may have been accepted, so the caller must park the
// payout instead of retrying.
func (c *Client) InitiatePayout(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if req.RecipientID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id is required")
	}

	payload, err := json.Marshal(payoutAPIRequest{
		RecipientID:    req.RecipientID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		OrderReference: req.OrderReference,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal payout request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payouts", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payout request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownOutcome, err, "payout request timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payout request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, payoutErrorBodyLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"payout rejected by provider")
	}

	var apiResp payoutAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownOutcome, err, "undecodable payout response")
	}
	if apiResp.PayoutID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownOutcome, "payout response missing payout id")
	}

	return &InitiateResult{ProviderPayoutID: apiResp.PayoutID}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
