package domain

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Business outcomes are typed sentinels so the orchestrator and
// handlers can branch on them. Anything else bubbling out of the
// storage layer is treated as a storage fault.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("wallet transaction not found")

	ErrInsufficientBalance    = errors.New("insufficient wallet balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")

	ErrWalletInactive = errors.New("wallet is inactive")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrAmountMismatch = errors.New("callback amount does not match order total")
	ErrEmptyCart      = errors.New("cart has no items")
	ErrForbidden      = errors.New("forbidden")
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, used to resolve create races (one wallet per user).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
