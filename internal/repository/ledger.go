package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Helpers shared by every balance-affecting transaction. All of them
// run inside a caller-owned pgx.Tx: the wallet row lock plus the ledger
// insert plus the balance update are one atomic unit, never split
// across transactions.

// lockWallet serializes concurrent debits/credits per wallet. Every
// balance mutation goes through this lock, so balance_before snapshots
// always reflect the true prior state.
func lockWallet(ctx context.Context, tx pgx.Tx, walletID string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, is_active, last_transaction_at, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`

	var w domain.Wallet
	err := tx.QueryRow(ctx, query, walletID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive,
		&w.LastTransactionAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &w, nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (
			id, wallet_id, order_id, tx_type, amount,
			balance_before, balance_after, status, external_ref,
			description, failure_reason, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	err := tx.QueryRow(ctx, query,
		e.ID, e.WalletID, e.OrderID, e.TxType, e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.Status, e.ExternalRef,
		e.Description, e.FailureReason, e.CompletedAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func updateWalletBalance(ctx context.Context, tx pgx.Tx, walletID string, balance int64) error {
	query := `
		UPDATE wallets
		SET balance = $1, last_transaction_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// applyLedger moves money on a locked wallet: it appends a completed
// ledger entry with before/after snapshots and writes the new balance,
// all on the caller's transaction. amount is signed (credit > 0,
// debit < 0). A debit past the balance rejects with
// ErrInsufficientBalance and writes nothing.
func applyLedger(
	ctx context.Context,
	tx pgx.Tx,
	walletID string,
	orderID *string,
	txType domain.TransactionType,
	amount int64,
	description string,
	externalRef *string,
) (*domain.WalletTransaction, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}

	wallet, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive {
		return nil, domain.ErrWalletInactive
	}
	if amount < 0 && wallet.Balance+amount < 0 {
		return nil, domain.ErrInsufficientBalance
	}

	now := time.Now()
	entry := &domain.WalletTransaction{
		ID:            uuid.New().String(),
		WalletID:      walletID,
		OrderID:       orderID,
		TxType:        txType,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance + amount,
		Status:        domain.TxStatusCompleted,
		ExternalRef:   externalRef,
		Description:   description,
		CompletedAt:   &now,
	}

	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := updateWalletBalance(ctx, tx, walletID, entry.BalanceAfter); err != nil {
		return nil, err
	}

	return entry, nil
}
