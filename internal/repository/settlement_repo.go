package repository

import (
	"context"
	"fmt"

	"checkout-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SettlementRepository couples an order payment-state transition with
// the matching wallet ledger movement in a single storage transaction.
// The conditional order update is the serialization point: of two
// concurrent settlements for the same order, exactly one flips
// payment_status and debits; the other affects zero rows, rolls back,
// and reports a state conflict. No partial state survives a failure on
// either side.
type SettlementRepository interface {
	SettleWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error)
	RefundWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error)
}

type settlementRepo struct {
	db *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) SettlementRepository {
	return &settlementRepo{db: db}
}

func (r *settlementRepo) SettleWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	markPaid := `
		UPDATE orders
		SET payment_status = 'paid', status = 'confirmed', payment_method = 'wallet',
		    failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending' AND status = 'pending'
	`
	tag, err := tx.Exec(ctx, markPaid, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	entry, err := applyLedger(ctx, tx, walletID, &orderID, domain.TxTypePayment, -amount, description, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit wallet settlement: %w", err)
	}
	return entry, nil
}

func (r *settlementRepo) RefundWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	markRefunded := `
		UPDATE orders
		SET payment_status = 'refunded', status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'paid' AND status IN ('pending', 'confirmed')
	`
	tag, err := tx.Exec(ctx, markRefunded, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	entry, err := applyLedger(ctx, tx, walletID, &orderID, domain.TxTypeRefund, amount, description, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit wallet refund: %w", err)
	}
	return entry, nil
}
