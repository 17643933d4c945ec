package handler

import (
	"errors"
	"net/http"

	"checkout-service/internal/domain"
	"checkout-service/pkg/response"
)

// writeDomainError maps the domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so storage details never
// leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		response.Error(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrWalletInactive):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrEmptyCart):
		// Permanently invalid input: a 4xx stops gateway retries.
		response.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		response.Error(w, http.StatusBadGateway, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
