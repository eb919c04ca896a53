package escrow

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

const releaseErrorBodyLimit int64 = 1024

// ReleaseRequest instructs the escrow provider to split held funds. The
// provider keys the release on the confirmed payment's transaction id.
type ReleaseRequest struct {
	IdempotencyKey    string
	ProviderPaymentID string
	OrderReference    string
	TotalCents        int64
	VendorCents       int64
	PlatformCents     int64
	Currency          string
	RecipientID       string
}

// ReleaseResult is the provider's acknowledgment of a release.
type ReleaseResult struct {
	ProviderReleaseID string
}

// Client is the HTTP client for the external escrow service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds the escrow client. Requests authenticate with an
// OAuth2 client-credentials bearer token.
func NewClient(cfg config.EscrowConfig) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("escrow base url is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("escrow token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("escrow client credentials are required")
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

type releaseAPIRequest struct {
	TransactionID  string `json:"transaction_id"`
	OrderReference string `json:"order_reference"`
	TotalCents     int64  `json:"total_cents"`
	VendorCents    int64  `json:"vendor_cents"`
	PlatformCents  int64  `json:"platform_cents"`
	Currency       string `json:"currency"`
	RecipientID    string `json:"recipient_id,omitempty"`
}

type releaseAPIResponse struct {
	ReleaseID string `json:"release_id"`
	Status    string `json:"status"`
}

// Release asks the provider to pay out the split. A timeout is reported
// as an unknown outcome: money may have moved, so the caller must not
// retry blindly.
func (c *Client) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if req.ProviderPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider payment id is required")
	}

	payload, err := json.Marshal(releaseAPIRequest{
		TransactionID:  req.ProviderPaymentID,
		OrderReference: req.OrderReference,
		TotalCents:     req.TotalCents,
		VendorCents:    req.VendorCents,
		PlatformCents:  req.PlatformCents,
		Currency:       req.Currency,
		RecipientID:    req.RecipientID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal release request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/releases", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build release request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownOutcome, err, "escrow release timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute release request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, releaseErrorBodyLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"escrow release rejected")
	}

	var apiResp releaseAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownOutcome, err, "undecodable release response")
	}
	if apiResp.ReleaseID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownOutcome, "release response missing release id")
	}

	return &ReleaseResult{ProviderReleaseID: apiResp.ReleaseID}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
