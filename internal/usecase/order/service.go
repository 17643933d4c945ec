package order

import (
	"context"

	"checkout-service/internal/client"
	"checkout-service/internal/domain"
	"checkout-service/internal/repository"
	"checkout-service/pkg/ids"

	"go.uber.org/zap"
)

type Service struct {
	repo     repository.OrderRepository
	carts    client.CartMaterializer
	currency string
	logger   *zap.Logger
}

func New(repo repository.OrderRepository, carts client.CartMaterializer, currency string, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		currency: currency,
		logger:   logger,
	}
}

// Create materializes the cart through the catalog service and persists
// the order with its priced line items. Unit prices are fixed here; later
// catalog price changes do not touch existing orders.
func (s *Service) Create(ctx context.Context, userID string, req *domain.CreateOrderRequest) (*domain.Order, error) {
	items, err := s.carts.MaterializeCart(ctx, userID, req.CartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	order := &domain.Order{
		OrderNumber:   ids.New(ids.PrefixOrder),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Currency:      s.currency,
		Note:          req.Note,
	}

	for _, item := range items {
		line := domain.OrderItem{
			ProductID: item.ProductID,
			DesignID:  item.DesignID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
		order.TotalAmount += line.Subtotal()
		order.Items = append(order.Items, line)
	}

	if order.TotalAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount))
	return order, nil
}

// GetForUser loads an order and enforces ownership.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Order, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *Service) ListAll(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// AdvanceFulfilment moves a paid order one step along the fulfilment
// chain. The repository re-checks the current status inside the UPDATE,
// so a stale read here cannot skip a step.
func (s *Service) AdvanceFulfilment(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanAdvanceFulfilment(next) {
		return nil, domain.ErrInvalidStateTransition
	}

	ok, err := s.repo.AdvanceFulfilment(ctx, orderID, order.Status, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidStateTransition
	}

	s.logger.Info("order fulfilment advanced",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)))
	return s.repo.GetByID(ctx, orderID)
}
