package payos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/config"
	"checkout-service/internal/domain"
	"checkout-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChecksumKey = "test-checksum-key"

func testProvider(baseURL string) *Provider {
	return New(config.GatewayConfig{
		BaseURL:     baseURL,
		ClientID:    "client-1",
		APIKey:      "api-key-1",
		ChecksumKey: testChecksumKey,
	})
}

func signHex(t *testing.T, msg []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testChecksumKey))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreatePaymentLink(t *testing.T) {
	var received createLinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-1", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key-1", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"00","desc":"success","data":{"checkoutUrl":"https://pay.example.com/abc","paymentLinkId":"pl-1"}}`))
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	link, err := p.CreatePaymentLink(context.Background(), &provider.CreateLinkRequest{
		Reference:   "PAY-01ABC",
		Amount:      60_000,
		Currency:    "VND",
		Description: "Order ORD-01ABC",
		ReturnURL:   "https://shop.example.com/result",
		CancelURL:   "https://shop.example.com/cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/abc", link.CheckoutURL)
	assert.Equal(t, "pl-1", link.LinkID)

	// The request carries the HMAC over the canonical field string.
	canonical := "amount=60000&cancelUrl=https://shop.example.com/cancelled&description=Order ORD-01ABC&orderCode=PAY-01ABC&returnUrl=https://shop.example.com/result"
	assert.Equal(t, signHex(t, []byte(canonical)), received.Signature)
	assert.Equal(t, "PAY-01ABC", received.OrderCode)
}

func TestCreatePaymentLink_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	_, err := p.CreatePaymentLink(context.Background(), &provider.CreateLinkRequest{
		Reference: "PAY-01ABC",
		Amount:    60_000,
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestCreatePaymentLink_UnreachableIsRetryable(t *testing.T) {
	p := testProvider("http://127.0.0.1:1")
	_, err := p.CreatePaymentLink(context.Background(), &provider.CreateLinkRequest{
		Reference: "PAY-01ABC",
		Amount:    60_000,
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestCreatePaymentLink_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"231","desc":"duplicate order code"}`))
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	_, err := p.CreatePaymentLink(context.Background(), &provider.CreateLinkRequest{
		Reference: "PAY-01ABC",
		Amount:    60_000,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestVerifyWebhook(t *testing.T) {
	p := testProvider("")

	data := []byte(`{"orderCode":"PAY-01ABC","amount":60000,"reference":"FT123","code":"00","desc":"success"}`)
	payload, err := json.Marshal(map[string]interface{}{
		"code":      "00",
		"desc":      "success",
		"success":   true,
		"data":      json.RawMessage(data),
		"signature": signHex(t, data),
	})
	require.NoError(t, err)

	result, err := p.VerifyWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, "PAY-01ABC", result.Reference)
	assert.True(t, result.Success)
	assert.Equal(t, int64(60_000), result.Amount)
	assert.Equal(t, "FT123", result.GatewayRef)
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	p := testProvider("")

	data := []byte(`{"orderCode":"PAY-01ABC","amount":60000}`)
	payload, err := json.Marshal(map[string]interface{}{
		"success":   true,
		"data":      json.RawMessage(data),
		"signature": "deadbeef",
	})
	require.NoError(t, err)

	_, err = p.VerifyWebhook(payload)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWebhook_TamperedData(t *testing.T) {
	p := testProvider("")

	data := []byte(`{"orderCode":"PAY-01ABC","amount":60000}`)
	tampered := []byte(`{"orderCode":"PAY-01ABC","amount":1}`)
	payload, err := json.Marshal(map[string]interface{}{
		"success":   true,
		"data":      json.RawMessage(tampered),
		"signature": signHex(t, data),
	})
	require.NoError(t, err)

	_, err = p.VerifyWebhook(payload)
	require.ErrorIs(t, err, ErrBadSignature)
}
