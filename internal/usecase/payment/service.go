package payment

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/config"
	"checkout-service/internal/domain"
	"checkout-service/internal/events"
	"checkout-service/internal/provider"
	"checkout-service/internal/repository"
	"checkout-service/pkg/ids"

	"go.uber.org/zap"
)

// WalletAccounts is the slice of the wallet usecase the payment
// orchestrator needs: provisioning and post-settlement fan-out.
type WalletAccounts interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error)
	SyncBalance(ctx context.Context, userID, walletID string, balance int64)
}

// Service orchestrates order payment: the wallet path settles inside a
// single storage transaction, the gateway path hands the shopper to a
// hosted checkout page and settles on the signed callback.
type Service struct {
	orders     repository.OrderRepository
	wallets    repository.WalletRepository
	settlement repository.SettlementRepository
	gateway    provider.Gateway
	accounts   WalletAccounts
	events     *events.Publisher
	cfg        *config.Config
	logger     *zap.Logger
}

func New(
	orders repository.OrderRepository,
	wallets repository.WalletRepository,
	settlement repository.SettlementRepository,
	gateway provider.Gateway,
	accounts WalletAccounts,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		orders:     orders,
		wallets:    wallets,
		settlement: settlement,
		gateway:    gateway,
		accounts:   accounts,
		events:     publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// PayWithWallet debits the user's wallet for the full order amount and
// marks the order paid, both inside one storage transaction. A second
// concurrent attempt loses the conditional status update and gets
// ErrInvalidStateTransition; an insufficient balance aborts before any
// ledger entry is written.
func (s *Service) PayWithWallet(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if !order.Payable() {
		return nil, domain.ErrInvalidStateTransition
	}

	wallet, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry, err := s.settlement.SettleWalletPayment(ctx, order.ID, wallet.ID, order.TotalAmount,
		fmt.Sprintf("Payment for order %s", order.OrderNumber))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.logger.Info("wallet payment declined, insufficient balance",
				zap.String("order_id", order.ID),
				zap.String("wallet_id", wallet.ID),
				zap.Int64("amount", order.TotalAmount),
				zap.Int64("balance", wallet.Balance))
		}
		return nil, err
	}

	s.accounts.SyncBalance(ctx, userID, wallet.ID, entry.BalanceAfter)
	s.events.Publish(ctx, events.PaymentEvent{
		Type:     events.TypePaymentSettled,
		OrderID:  order.ID,
		UserID:   userID,
		WalletID: wallet.ID,
		Method:   string(domain.PaymentMethodWallet),
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	})

	s.logger.Info("order paid from wallet",
		zap.String("order_id", order.ID),
		zap.String("wallet_id", wallet.ID),
		zap.Int64("amount", order.TotalAmount),
		zap.Int64("balance_after", entry.BalanceAfter))

	return s.orders.GetByID(ctx, order.ID)
}

// InitiateGatewayPayment reserves a payment reference on the order and
// creates a hosted checkout session for it. The reference is written
// first so the later callback can always locate the order; a gateway
// failure leaves the order pending and retryable.
func (s *Service) InitiateGatewayPayment(ctx context.Context, userID, orderID string) (*domain.CheckoutLinkResponse, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if !order.Payable() {
		return nil, domain.ErrInvalidStateTransition
	}

	ref := ids.New(ids.PrefixPayment)
	ok, err := s.orders.SetExternalCode(ctx, order.ID, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidStateTransition
	}

	link, err := s.gateway.CreatePaymentLink(ctx, &provider.CreateLinkRequest{
		Reference:   ref,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Order %s", order.OrderNumber),
		ReturnURL:   s.cfg.ReturnURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		s.logger.Error("gateway session creation failed",
			zap.String("order_id", order.ID),
			zap.String("reference", ref),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("gateway checkout session created",
		zap.String("order_id", order.ID),
		zap.String("reference", ref),
		zap.Int64("amount", order.TotalAmount))

	return &domain.CheckoutLinkResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CheckoutURL: link.CheckoutURL,
		ExternalRef: ref,
	}, nil
}

// ConfirmGatewayPayment applies a verified gateway callback to the
// order it references. Replays of an already-applied outcome are
// no-ops; a callback that conflicts with the order's settled state
// returns ErrInvalidStateTransition.
func (s *Service) ConfirmGatewayPayment(ctx context.Context, result *provider.WebhookResult) error {
	order, err := s.orders.GetByExternalCode(ctx, result.Reference)
	if err != nil {
		return err
	}

	if !result.Success {
		return s.failGatewayPayment(ctx, order, result)
	}

	if result.Amount > 0 && result.Amount != order.TotalAmount {
		s.logger.Error("gateway callback amount mismatch",
			zap.String("order_id", order.ID),
			zap.String("reference", result.Reference),
			zap.Int64("expected", order.TotalAmount),
			zap.Int64("got", result.Amount))
		return fmt.Errorf("%w: got %d, want %d", domain.ErrAmountMismatch, result.Amount, order.TotalAmount)
	}

	ok, err := s.orders.MarkPaid(ctx, order.ID, domain.PaymentMethodGateway)
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.PaymentStatus == domain.PaymentStatusPaid {
			// Duplicate delivery of a confirmation already applied.
			return nil
		}
		return domain.ErrInvalidStateTransition
	}

	s.events.Publish(ctx, events.PaymentEvent{
		Type:     events.TypePaymentSettled,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Method:   string(domain.PaymentMethodGateway),
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	})

	s.logger.Info("gateway payment confirmed",
		zap.String("order_id", order.ID),
		zap.String("reference", result.Reference),
		zap.String("gateway_ref", result.GatewayRef))
	return nil
}

func (s *Service) failGatewayPayment(ctx context.Context, order *domain.Order, result *provider.WebhookResult) error {
	reason := result.Desc
	if reason == "" {
		reason = fmt.Sprintf("gateway declined with code %s", result.Code)
	}

	ok, err := s.orders.MarkPaymentFailed(ctx, order.ID, reason)
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.PaymentStatus == domain.PaymentStatusFailed {
			return nil
		}
		return domain.ErrInvalidStateTransition
	}

	s.events.Publish(ctx, events.PaymentEvent{
		Type:     events.TypePaymentFailed,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Method:   string(domain.PaymentMethodGateway),
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	})

	s.logger.Info("gateway payment failed",
		zap.String("order_id", order.ID),
		zap.String("reference", result.Reference),
		zap.String("reason", reason))
	return nil
}

// CancelOrder cancels an order that has not shipped. A paid wallet
// order is refunded to the wallet in the same transaction that flips
// the order to refunded; a paid gateway order is marked refunded and
// the money movement is left to gateway reconciliation.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string, asAdmin bool) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if !order.Cancellable() {
		return nil, domain.ErrInvalidStateTransition
	}

	switch {
	case order.PaymentStatus == domain.PaymentStatusPaid && order.PaymentMethod == domain.PaymentMethodWallet:
		if err := s.refundWalletOrder(ctx, order); err != nil {
			return nil, err
		}
	case order.PaymentStatus == domain.PaymentStatusPaid:
		ok, err := s.orders.MarkRefunded(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrInvalidStateTransition
		}
		s.logger.Info("gateway order cancelled, refund deferred to reconciliation",
			zap.String("order_id", order.ID))
		s.publishRefunded(ctx, order, "")
	default:
		ok, err := s.orders.CancelUnpaid(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrInvalidStateTransition
		}
		s.logger.Info("unpaid order cancelled", zap.String("order_id", order.ID))
	}

	return s.orders.GetByID(ctx, order.ID)
}

func (s *Service) refundWalletOrder(ctx context.Context, order *domain.Order) error {
	wallet, err := s.accounts.GetOrCreate(ctx, order.UserID)
	if err != nil {
		return err
	}

	entry, err := s.settlement.RefundWalletPayment(ctx, order.ID, wallet.ID, order.TotalAmount,
		fmt.Sprintf("Refund for order %s", order.OrderNumber))
	if err != nil {
		return err
	}

	s.accounts.SyncBalance(ctx, order.UserID, wallet.ID, entry.BalanceAfter)
	s.publishRefunded(ctx, order, wallet.ID)

	s.logger.Info("wallet order refunded",
		zap.String("order_id", order.ID),
		zap.String("wallet_id", wallet.ID),
		zap.Int64("amount", order.TotalAmount),
		zap.Int64("balance_after", entry.BalanceAfter))
	return nil
}

func (s *Service) publishRefunded(ctx context.Context, order *domain.Order, walletID string) {
	s.events.Publish(ctx, events.PaymentEvent{
		Type:     events.TypePaymentRefunded,
		OrderID:  order.ID,
		UserID:   order.UserID,
		WalletID: walletID,
		Method:   string(order.PaymentMethod),
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	})
}

// InitiateTopup records a pending ledger entry for the amount and opens
// a hosted checkout session for it. The balance does not move until the
// gateway confirms.
func (s *Service) InitiateTopup(ctx context.Context, userID string, req *domain.TopupRequest) (*domain.TopupLinkResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	wallet, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive {
		return nil, domain.ErrWalletInactive
	}

	ref := ids.New(ids.PrefixTopup)
	entry, err := s.wallets.CreatePendingTopup(ctx, wallet.ID, req.Amount, ref, "Wallet top-up")
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.CreatePaymentLink(ctx, &provider.CreateLinkRequest{
		Reference:   ref,
		Amount:      req.Amount,
		Currency:    wallet.Currency,
		Description: "Wallet top-up",
		ReturnURL:   s.cfg.ReturnURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		if _, failErr := s.wallets.FailTopup(ctx, ref, "gateway session creation failed"); failErr != nil {
			s.logger.Warn("could not fail orphaned top-up entry",
				zap.String("external_ref", ref),
				zap.Error(failErr))
		}
		return nil, err
	}

	s.logger.Info("top-up session created",
		zap.String("wallet_id", wallet.ID),
		zap.String("external_ref", ref),
		zap.Int64("amount", req.Amount))

	return &domain.TopupLinkResponse{
		TransactionID: entry.ID,
		CheckoutURL:   link.CheckoutURL,
		ExternalRef:   ref,
	}, nil
}

// ConfirmTopup applies a verified gateway callback to the pending
// top-up entry it references. Completion is idempotent: a replayed
// confirmation finds the entry already completed, changes nothing, and
// must not re-sync the entry's historical balance over wallet
// movements that happened since.
func (s *Service) ConfirmTopup(ctx context.Context, result *provider.WebhookResult) error {
	if !result.Success {
		return s.failTopup(ctx, result)
	}

	entry, applied, err := s.wallets.CompleteTopup(ctx, result.Reference)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("top-up confirmation replayed, no-op",
			zap.String("external_ref", result.Reference))
		return nil
	}

	wallet, err := s.wallets.GetByID(ctx, entry.WalletID)
	if err != nil {
		return err
	}

	s.accounts.SyncBalance(ctx, wallet.UserID, wallet.ID, entry.BalanceAfter)
	s.events.Publish(ctx, events.PaymentEvent{
		Type:     events.TypeTopupCompleted,
		UserID:   wallet.UserID,
		WalletID: wallet.ID,
		Amount:   entry.Amount,
		Currency: wallet.Currency,
	})

	s.logger.Info("top-up completed",
		zap.String("wallet_id", wallet.ID),
		zap.String("external_ref", result.Reference),
		zap.Int64("amount", entry.Amount),
		zap.Int64("balance_after", entry.BalanceAfter))
	return nil
}

func (s *Service) failTopup(ctx context.Context, result *provider.WebhookResult) error {
	reason := result.Desc
	if reason == "" {
		reason = fmt.Sprintf("gateway declined with code %s", result.Code)
	}

	if _, err := s.wallets.FailTopup(ctx, result.Reference, reason); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			entry, lookupErr := s.wallets.GetTransactionByExternalRef(ctx, result.Reference)
			if lookupErr != nil {
				return lookupErr
			}
			if entry.Status == domain.TxStatusFailed {
				// Duplicate delivery of a failure already applied.
				return nil
			}
		}
		return err
	}

	s.logger.Info("top-up failed",
		zap.String("external_ref", result.Reference),
		zap.String("reason", reason))
	return nil
}
