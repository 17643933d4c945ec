package repository

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository persists the order aggregate. Payment-state writes
// are conditional on the current payment_status, so concurrent
// transitions race safely: the loser affects zero rows and backs off.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	GetByExternalCode(ctx context.Context, code string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error)

	SetExternalCode(ctx context.Context, orderID, code string) (bool, error)
	MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, orderID string) (bool, error)
	CancelUnpaid(ctx context.Context, orderID string) (bool, error)
	AdvanceFulfilment(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error)
}

type orderRepo struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `id, user_id, order_number, total_amount, currency, status, payment_method,
		payment_status, external_order_code, failure_reason, note, completed_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.TotalAmount, &o.Currency,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.ExternalOrderCode,
		&o.FailureReason, &o.Note, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// Create inserts the order and its line items in one transaction.
func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (
			user_id, order_number, total_amount, currency, status,
			payment_method, payment_status, note, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		order.UserID, order.OrderNumber, order.TotalAmount, order.Currency,
		order.Status, order.PaymentMethod, order.PaymentStatus, order.Note,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, design_id, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.QueryRow(ctx, itemQuery,
			item.OrderID, item.ProductID, item.DesignID, item.UnitPrice, item.Quantity,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) GetByExternalCode(ctx context.Context, code string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE external_order_code = $1`
	return scanOrder(r.db.QueryRow(ctx, query, code))
}

func (r *orderRepo) loadItems(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT id, order_id, product_id, design_id, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.DesignID, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *orderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryOrders(ctx, query, userID, limit)
}

func (r *orderRepo) List(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if status == "" {
		query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		return r.queryOrders(ctx, query, limit, offset)
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.queryOrders(ctx, query, status, limit, offset)
}

func (r *orderRepo) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// SetExternalCode stores the gateway reference while the order is still
// awaiting payment. A retried initiation overwrites the previous code;
// the newest session is the one the gateway will confirm against.
func (r *orderRepo) SetExternalCode(ctx context.Context, orderID, code string) (bool, error) {
	query := `
		UPDATE orders
		SET external_order_code = $1, payment_method = 'gateway', updated_at = NOW()
		WHERE id = $2 AND payment_status = 'pending' AND status = 'pending'
	`
	return r.guardedExec(ctx, query, code, orderID)
}

func (r *orderRepo) MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid', status = 'confirmed', payment_method = $1,
		    failure_reason = NULL, updated_at = NOW()
		WHERE id = $2 AND payment_status = 'pending' AND status = 'pending'
	`
	return r.guardedExec(ctx, query, method, orderID)
}

func (r *orderRepo) MarkPaymentFailed(ctx context.Context, orderID, reason string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'failed', failure_reason = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = 'pending'
	`
	return r.guardedExec(ctx, query, reason, orderID)
}

func (r *orderRepo) MarkRefunded(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'refunded', status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'paid' AND status IN ('pending', 'confirmed')
	`
	return r.guardedExec(ctx, query, orderID)
}

// CancelUnpaid cancels an order that has not been paid. Failed payment
// attempts do not block cancellation; a paid order must go through the
// refund path instead.
func (r *orderRepo) CancelUnpaid(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
		  AND status IN ('pending', 'confirmed')
	`
	return r.guardedExec(ctx, query, orderID)
}

func (r *orderRepo) AdvanceFulfilment(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1,
		    completed_at = CASE WHEN $1::text = 'completed' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND payment_status = 'paid'
	`
	return r.guardedExec(ctx, query, to, orderID, from)
}

func (r *orderRepo) guardedExec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
