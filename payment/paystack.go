package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const paystackBaseURL = "https://api.paystack.co"

// Paystack implements Provider against the Paystack transaction API. All
// amounts are in the currency's minor unit, which is also what Paystack
// speaks on the wire.
type Paystack struct {
	httpClient  *http.Client
	secretKey   string
	callbackURL string
	baseURL     string
}

func NewPaystack(httpClient *http.Client, secretKey, callbackURL string) *Paystack {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Paystack{
		httpClient:  httpClient,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		baseURL:     paystackBaseURL,
	}
}

func (p *Paystack) Name() string { return "paystack" }

// InitializeCharge creates a Paystack transaction and returns the redirect
// handle for the customer.
func (p *Paystack) InitializeCharge(ctx context.Context, params InitializeChargeParams) (ChargeHandle, error) {
	callback := params.CallbackURL
	if callback == "" {
		callback = p.callbackURL
	}

	payload := map[string]any{
		"email":        params.CustomerEmail,
		"amount":       params.AmountMinor,
		"currency":     params.Currency,
		"reference":    params.Reference,
		"callback_url": callback,
	}
	if len(params.Metadata) > 0 {
		payload["metadata"] = params.Metadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChargeHandle{}, fmt.Errorf("paystack: marshal initialize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return ChargeHandle{}, fmt.Errorf("paystack: build initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ChargeHandle{}, fmt.Errorf("%w: initialize: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ChargeHandle{}, fmt.Errorf("%w: initialize status %s", ErrProviderUnavailable, resp.Status)
	}

	var apiResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return ChargeHandle{}, fmt.Errorf("paystack: decode initialize response: %w", err)
	}
	if !apiResp.Status {
		return ChargeHandle{}, fmt.Errorf("paystack: initialize rejected: %s", apiResp.Message)
	}

	return ChargeHandle{
		Reference:        apiResp.Data.Reference,
		AuthorizationURL: apiResp.Data.AuthorizationURL,
		AccessCode:       apiResp.Data.AccessCode,
	}, nil
}

// VerifyCharge fetches the charge outcome for a reference. Network failures
// map to ErrProviderUnavailable so callers can retry with the same reference;
// provider-reported declines do not.
func (p *Paystack) VerifyCharge(ctx context.Context, reference string) (ChargeStatus, error) {
	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ChargeStatus{}, fmt.Errorf("paystack: build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ChargeStatus{}, fmt.Errorf("%w: verify timeout: %v", ErrProviderUnavailable, err)
		}
		return ChargeStatus{}, fmt.Errorf("%w: verify: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ChargeStatus{}, fmt.Errorf("%w: verify status %s", ErrProviderUnavailable, resp.Status)
	}

	var apiResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Reference string  `json:"reference"`
			Status    string  `json:"status"`
			Amount    int64   `json:"amount"`
			Currency  string  `json:"currency"`
			PaidAt    *string `json:"paid_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return ChargeStatus{}, fmt.Errorf("paystack: decode verify response: %w", err)
	}
	if !apiResp.Status {
		return ChargeStatus{}, fmt.Errorf("paystack: verify rejected: %s", apiResp.Message)
	}

	status := ChargeStatus{
		Reference:   apiResp.Data.Reference,
		Success:     apiResp.Data.Status == "success",
		Status:      apiResp.Data.Status,
		AmountMinor: apiResp.Data.Amount,
		Currency:    apiResp.Data.Currency,
	}
	if apiResp.Data.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *apiResp.Data.PaidAt); err == nil {
			status.PaidAt = t
		}
	}

	return status, nil
}

// VerifyWebhookSignature checks the X-Paystack-Signature header, an
// HMAC-SHA512 of the raw body keyed by the secret.
func (p *Paystack) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
