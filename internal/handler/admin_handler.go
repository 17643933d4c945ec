package handler

import (
	"encoding/json"
	"net/http"

	"checkout-service/internal/domain"
	"checkout-service/internal/usecase/order"
	"checkout-service/internal/usecase/payment"
	"checkout-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AdminHandler exposes the back-office surface: browsing all orders,
// moving fulfilment forward and cancelling on a customer's behalf.
type AdminHandler struct {
	orderUC   *order.Service
	paymentUC *payment.Service
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewAdminHandler(orderUC *order.Service, paymentUC *payment.Service, validate *validator.Validate, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		orderUC:   orderUC,
		paymentUC: paymentUC,
		validate:  validate,
		logger:    logger,
	}
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	orders, err := h.orderUC.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("admin order listing failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, orders)
}

func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req domain.UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.orderUC.AdvanceFulfilment(r.Context(), orderID, req.Status)
	if err != nil {
		h.logger.Warn("fulfilment update rejected",
			zap.String("order_id", orderID),
			zap.String("status", string(req.Status)),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	cancelled, err := h.paymentUC.CancelOrder(r.Context(), "", orderID, true)
	if err != nil {
		h.logger.Warn("admin cancellation rejected",
			zap.String("order_id", orderID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, cancelled)
}
