package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepository interface {
	Create(ctx context.Context, userID, currency string) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByID(ctx context.Context, walletID string) (*domain.Wallet, error)

	// Debit and Credit are the only entry points that move a balance.
	// Each call is one storage transaction: ledger insert and balance
	// update commit together or not at all.
	Debit(ctx context.Context, walletID string, orderID *string, amount int64, description string) (*domain.WalletTransaction, error)
	Credit(ctx context.Context, walletID string, orderID *string, txType domain.TransactionType, amount int64, description string) (*domain.WalletTransaction, error)

	// Pending top-ups: the entry exists before the money does, and the
	// balance only moves when the gateway confirms. CompleteTopup
	// reports whether this call moved the balance; false means the
	// entry was already completed and nothing changed.
	CreatePendingTopup(ctx context.Context, walletID string, amount int64, externalRef, description string) (*domain.WalletTransaction, error)
	CompleteTopup(ctx context.Context, externalRef string) (*domain.WalletTransaction, bool, error)
	FailTopup(ctx context.Context, externalRef, reason string) (*domain.WalletTransaction, error)

	GetTransactionByExternalRef(ctx context.Context, externalRef string) (*domain.WalletTransaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]*domain.WalletTransaction, error)
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) WalletRepository {
	return &walletRepo{db: db}
}

const walletColumns = `id, user_id, balance, currency, is_active, last_transaction_at, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive,
		&w.LastTransactionAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}

func (r *walletRepo) Create(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (user_id, balance, currency, is_active, created_at, updated_at)
		VALUES ($1, 0, $2, TRUE, NOW(), NOW())
		RETURNING ` + walletColumns

	return scanWallet(r.db.QueryRow(ctx, query, userID, currency))
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, userID))
}

func (r *walletRepo) GetByID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, walletID))
}

func (r *walletRepo) Debit(ctx context.Context, walletID string, orderID *string, amount int64, description string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	return r.apply(ctx, walletID, orderID, domain.TxTypePayment, -amount, description)
}

func (r *walletRepo) Credit(ctx context.Context, walletID string, orderID *string, txType domain.TransactionType, amount int64, description string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	return r.apply(ctx, walletID, orderID, txType, amount, description)
}

func (r *walletRepo) apply(ctx context.Context, walletID string, orderID *string, txType domain.TransactionType, amount int64, description string) (*domain.WalletTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := applyLedger(ctx, tx, walletID, orderID, txType, amount, description, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return entry, nil
}

func (r *walletRepo) CreatePendingTopup(ctx context.Context, walletID string, amount int64, externalRef, description string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	entry := &domain.WalletTransaction{
		ID:          uuid.New().String(),
		WalletID:    walletID,
		TxType:      domain.TxTypeTopup,
		Amount:      amount,
		Status:      domain.TxStatusPending,
		ExternalRef: &externalRef,
		Description: description,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pending topup: %w", err)
	}
	return entry, nil
}

// CompleteTopup settles a pending top-up entry: it locks the entry and
// the wallet, snapshots before/after, and moves the balance. Calling it
// again for an already-completed entry returns the entry unchanged with
// applied=false, so duplicate gateway confirmations are harmless.
func (r *walletRepo) CompleteTopup(ctx context.Context, externalRef string) (*domain.WalletTransaction, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := lockTransactionByRef(ctx, tx, externalRef)
	if err != nil {
		return nil, false, err
	}

	switch entry.Status {
	case domain.TxStatusCompleted:
		return entry, false, tx.Commit(ctx)
	case domain.TxStatusFailed, domain.TxStatusCancelled:
		return nil, false, domain.ErrInvalidStateTransition
	}

	wallet, err := lockWallet(ctx, tx, entry.WalletID)
	if err != nil {
		return nil, false, err
	}
	if !wallet.IsActive {
		return nil, false, domain.ErrWalletInactive
	}

	now := time.Now()
	entry.BalanceBefore = wallet.Balance
	entry.BalanceAfter = wallet.Balance + entry.Amount
	entry.Status = domain.TxStatusCompleted
	entry.CompletedAt = &now

	query := `
		UPDATE wallet_transactions
		SET status = $1, balance_before = $2, balance_after = $3, completed_at = $4
		WHERE id = $5 AND status = 'pending'
	`
	tag, err := tx.Exec(ctx, query, entry.Status, entry.BalanceBefore, entry.BalanceAfter, entry.CompletedAt, entry.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to complete topup entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, domain.ErrInvalidStateTransition
	}

	if err := updateWalletBalance(ctx, tx, wallet.ID, entry.BalanceAfter); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit topup settlement: %w", err)
	}
	return entry, true, nil
}

func (r *walletRepo) FailTopup(ctx context.Context, externalRef, reason string) (*domain.WalletTransaction, error) {
	query := `
		UPDATE wallet_transactions
		SET status = 'failed', failure_reason = $1, completed_at = NOW()
		WHERE external_ref = $2 AND status = 'pending'
		RETURNING ` + transactionColumns

	entry, err := scanTransaction(r.db.QueryRow(ctx, query, reason, externalRef))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			// Already settled one way or the other; report the conflict.
			return nil, domain.ErrInvalidStateTransition
		}
		return nil, err
	}
	return entry, nil
}

const transactionColumns = `id, wallet_id, order_id, tx_type, amount, balance_before, balance_after,
		status, external_ref, description, failure_reason, completed_at, created_at`

func scanTransaction(row pgx.Row) (*domain.WalletTransaction, error) {
	var t domain.WalletTransaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.OrderID, &t.TxType, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status, &t.ExternalRef,
		&t.Description, &t.FailureReason, &t.CompletedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
	}
	return &t, nil
}

func lockTransactionByRef(ctx context.Context, tx pgx.Tx, externalRef string) (*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE external_ref = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, externalRef))
}

func (r *walletRepo) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE external_ref = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, externalRef))
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID string, limit int) ([]*domain.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var entries []*domain.WalletTransaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
