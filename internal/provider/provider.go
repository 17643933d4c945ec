package provider

import (
	"context"
)

// Gateway is the hosted-checkout contract the orchestrator depends on:
// create a checkout session for a reference, get a redirect URL, and
// later verify the asynchronous confirmation the provider posts back.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req *CreateLinkRequest) (*PaymentLink, error)
	VerifyWebhook(payload []byte) (*WebhookResult, error)
}

type CreateLinkRequest struct {
	// Reference is our unique external code for the session
	// (PAY-... for order payments, TOP-... for wallet top-ups).
	Reference   string
	Amount      int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

type PaymentLink struct {
	CheckoutURL string
	LinkID      string
}

type WebhookResult struct {
	Reference  string
	Success    bool
	Code       string
	Desc       string
	Amount     int64
	GatewayRef string
}
