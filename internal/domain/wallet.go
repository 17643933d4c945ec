package domain

import (
	"time"
)

type TransactionType string
type TransactionStatus string

const (
	TxTypeTopup   TransactionType = "topup"
	TxTypePayment TransactionType = "payment"
	TxTypeRefund  TransactionType = "refund"
)

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

// Wallet is the stored-value account, one per user. The balance is only
// ever written inside a ledger-guarded transaction; nothing else in the
// codebase updates it directly.
type Wallet struct {
	ID                string     `json:"id" db:"id"`
	UserID            string     `json:"user_id" db:"user_id"`
	Balance           int64      `json:"balance" db:"balance"`
	Currency          string     `json:"currency" db:"currency"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty" db:"last_transaction_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// WalletTransaction is one immutable ledger entry. Amount is signed:
// credits are positive, debits negative. For completed entries
// BalanceAfter == BalanceBefore + Amount always holds, and consecutive
// completed entries chain (next BalanceBefore == previous BalanceAfter).
// Pending entries carry no balance snapshot and do not move the balance.
// A retried attempt is a new entry; completed and failed entries are
// never mutated.
type WalletTransaction struct {
	ID            string            `json:"id" db:"id"`
	WalletID      string            `json:"wallet_id" db:"wallet_id"`
	OrderID       *string           `json:"order_id,omitempty" db:"order_id"`
	TxType        TransactionType   `json:"tx_type" db:"tx_type"`
	Amount        int64             `json:"amount" db:"amount"`
	BalanceBefore int64             `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64             `json:"balance_after" db:"balance_after"`
	Status        TransactionStatus `json:"status" db:"status"`
	ExternalRef   *string           `json:"external_ref,omitempty" db:"external_ref"`
	Description   string            `json:"description" db:"description"`
	FailureReason *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

type TopupRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type TopupLinkResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	ExternalRef   string `json:"external_ref"`
}

type WalletBalanceResponse struct {
	WalletID string `json:"wallet_id"`
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}
