package handler

import (
	"encoding/json"
	"net/http"

	"checkout-service/internal/auth"
	"checkout-service/internal/domain"
	"checkout-service/internal/usecase/payment"
	"checkout-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentUC *payment.Service
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewPaymentHandler(paymentUC *payment.Service, validate *validator.Validate, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentUC: paymentUC,
		validate:  validate,
		logger:    logger,
	}
}

func (h *PaymentHandler) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	paid, err := h.paymentUC.PayWithWallet(r.Context(), userID, orderID)
	if err != nil {
		h.logger.Warn("wallet payment rejected",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, paid)
}

func (h *PaymentHandler) PayWithGateway(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	link, err := h.paymentUC.InitiateGatewayPayment(r.Context(), userID, orderID)
	if err != nil {
		h.logger.Warn("gateway payment initiation rejected",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, link)
}

func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	cancelled, err := h.paymentUC.CancelOrder(r.Context(), userID, orderID, false)
	if err != nil {
		h.logger.Warn("order cancellation rejected",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, cancelled)
}

func (h *PaymentHandler) Topup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.TopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := h.paymentUC.InitiateTopup(r.Context(), userID, &req)
	if err != nil {
		h.logger.Warn("top-up initiation rejected",
			zap.String("user_id", userID),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, link)
}
