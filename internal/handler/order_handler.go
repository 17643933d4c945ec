package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"checkout-service/internal/auth"
	"checkout-service/internal/domain"
	"checkout-service/internal/usecase/order"
	"checkout-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderUC  *order.Service
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orderUC *order.Service, validate *validator.Validate, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderUC:  orderUC,
		validate: validate,
		logger:   logger,
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.orderUC.Create(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("order creation failed",
			zap.String("user_id", userID),
			zap.String("cart_id", req.CartID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	found, err := h.orderUC.GetForUser(r.Context(), userID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, found)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 20)
	orders, err := h.orderUC.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("order listing failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, orders)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
