package handler

import (
	"io"
	"net/http"

	"checkout-service/internal/provider"
	"checkout-service/internal/usecase/payment"
	"checkout-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CallbackHandler receives the gateway's asynchronous payment
// notifications. These endpoints are unauthenticated; trust comes from
// the HMAC signature on the payload.
type CallbackHandler struct {
	paymentUC *payment.Service
	gateway   provider.Gateway
	logger    *zap.Logger
}

func NewCallbackHandler(paymentUC *payment.Service, gateway provider.Gateway, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		paymentUC: paymentUC,
		gateway:   gateway,
		logger:    logger,
	}
}

func (h *CallbackHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	result, ok := h.verify(w, r)
	if !ok {
		return
	}

	if err := h.paymentUC.ConfirmGatewayPayment(r.Context(), result); err != nil {
		h.logger.Error("payment callback rejected",
			zap.String("reference", result.Reference),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"reference": result.Reference})
}

func (h *CallbackHandler) HandleTopupCallback(w http.ResponseWriter, r *http.Request) {
	result, ok := h.verify(w, r)
	if !ok {
		return
	}

	if err := h.paymentUC.ConfirmTopup(r.Context(), result); err != nil {
		h.logger.Error("top-up callback rejected",
			zap.String("reference", result.Reference),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"reference": result.Reference})
}

// verify reads and authenticates the payload, then cross-checks the
// reference inside it against the one in the URL so a signed payload
// cannot be replayed against a different resource.
func (h *CallbackHandler) verify(w http.ResponseWriter, r *http.Request) (*provider.WebhookResult, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	result, err := h.gateway.VerifyWebhook(body)
	if err != nil {
		h.logger.Warn("callback signature verification failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		response.Error(w, http.StatusUnauthorized, "invalid signature")
		return nil, false
	}

	if ref := chi.URLParam(r, "reference"); ref != "" && ref != result.Reference {
		h.logger.Warn("callback reference mismatch",
			zap.String("url_reference", ref),
			zap.String("payload_reference", result.Reference))
		response.Error(w, http.StatusBadRequest, "reference mismatch")
		return nil, false
	}

	return result, true
}
