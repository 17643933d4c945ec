package payos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-service/config"
	"checkout-service/internal/domain"
	"checkout-service/internal/provider"
)

// Provider talks to the PayOS-style hosted checkout API: create a
// payment link, redirect the shopper, receive a signed webhook when the
// payment settles. Network failures and provider 5xx responses map to
// ErrGatewayUnavailable so callers can treat them as retryable.
type Provider struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
}

func New(cfg config.GatewayConfig) *Provider {
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createLinkRequest struct {
	OrderCode   string `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type createLinkResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		CheckoutURL   string `json:"checkoutUrl"`
		PaymentLinkID string `json:"paymentLinkId"`
	} `json:"data"`
}

func (p *Provider) CreatePaymentLink(ctx context.Context, req *provider.CreateLinkRequest) (*provider.PaymentLink, error) {
	body := createLinkRequest{
		OrderCode:   req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	}
	body.Signature = p.signRequest(body)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment link request: %w", err)
	}

	url := p.cfg.BaseURL + "/v2/payment-requests"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", p.cfg.ClientID)
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", domain.ErrGatewayUnavailable)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway rejected payment link request: %d %s", resp.StatusCode, respBody)
	}

	var linkResp createLinkResponse
	if err := json.Unmarshal(respBody, &linkResp); err != nil {
		return nil, fmt.Errorf("failed to parse payment link response: %w", err)
	}
	if linkResp.Code != "00" {
		return nil, fmt.Errorf("gateway error %s: %s", linkResp.Code, linkResp.Desc)
	}
	if linkResp.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("gateway response missing checkout url")
	}

	return &provider.PaymentLink{
		CheckoutURL: linkResp.Data.CheckoutURL,
		LinkID:      linkResp.Data.PaymentLinkID,
	}, nil
}

// signRequest signs the canonical field string the way the provider
// expects: amount, cancelUrl, description, orderCode, returnUrl in
// alphabetical order, HMAC-SHA256 with the checksum key.
func (p *Provider) signRequest(r createLinkRequest) string {
	canonical := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%s&returnUrl=%s",
		r.Amount, r.CancelURL, r.Description, r.OrderCode, r.ReturnURL)
	return p.hmacHex([]byte(canonical))
}

type webhookEnvelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type webhookData struct {
	OrderCode  string `json:"orderCode"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference"`
	Code       string `json:"code"`
	Desc       string `json:"desc"`
}

var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifyWebhook authenticates and decodes a confirmation payload.
// The signature covers the raw data object, HMAC-SHA256 hex with the
// checksum key; anything that does not verify is rejected before any
// state is touched.
func (p *Provider) VerifyWebhook(payload []byte) (*provider.WebhookResult, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("webhook payload missing data")
	}

	expected := p.hmacHex(env.Data)
	if !hmac.Equal([]byte(expected), []byte(env.Signature)) {
		return nil, ErrBadSignature
	}

	var data webhookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse webhook data: %w", err)
	}
	if data.OrderCode == "" {
		return nil, fmt.Errorf("webhook data missing order code")
	}

	return &provider.WebhookResult{
		Reference:  data.OrderCode,
		Success:    env.Success,
		Code:       data.Code,
		Desc:       data.Desc,
		Amount:     data.Amount,
		GatewayRef: data.Reference,
	}, nil
}

func (p *Provider) hmacHex(msg []byte) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.ChecksumKey))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
