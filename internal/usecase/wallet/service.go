package wallet

import (
	"context"
	"errors"

	"checkout-service/internal/cache"
	"checkout-service/internal/domain"
	"checkout-service/internal/repository"

	"go.uber.org/zap"
)

type Service struct {
	repo     repository.WalletRepository
	cache    *cache.WalletCache
	notifier *Notifier
	currency string
	logger   *zap.Logger
}

func New(repo repository.WalletRepository, walletCache *cache.WalletCache, notifier *Notifier, currency string, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    walletCache,
		notifier: notifier,
		currency: currency,
		logger:   logger,
	}
}

// GetOrCreate returns the user's wallet, provisioning it on first need.
// The unique index on user_id resolves a create race: the loser re-reads.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	wallet, err = s.repo.Create(ctx, userID, s.currency)
	if err != nil {
		if domain.IsUniqueViolation(err) {
			return s.repo.GetByUserID(ctx, userID)
		}
		return nil, err
	}

	s.logger.Info("wallet created",
		zap.String("wallet_id", wallet.ID),
		zap.String("user_id", userID))
	return wallet, nil
}

// Balance serves from the redis cache when possible and falls back to
// Postgres, refreshing the cache on the way out.
func (s *Service) Balance(ctx context.Context, userID string) (*domain.WalletBalanceResponse, error) {
	wallet, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance, err := s.cache.GetBalance(ctx, wallet.ID)
	if err == nil {
		return &domain.WalletBalanceResponse{
			WalletID: wallet.ID,
			Balance:  balance,
			Currency: wallet.Currency,
		}, nil
	}
	if !errors.Is(err, cache.ErrBalanceNotFound) {
		s.logger.Warn("wallet cache read failed",
			zap.String("wallet_id", wallet.ID),
			zap.Error(err))
	}

	if err := s.cache.SetBalance(ctx, wallet.ID, wallet.Balance); err != nil {
		s.logger.Warn("wallet cache write failed",
			zap.String("wallet_id", wallet.ID),
			zap.Error(err))
	}

	return &domain.WalletBalanceResponse{
		WalletID: wallet.ID,
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
	}, nil
}

func (s *Service) Ledger(ctx context.Context, userID string, limit int) ([]*domain.WalletTransaction, error) {
	wallet, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, wallet.ID, limit)
}

// SyncBalance is called after every committed ledger entry: it rewrites
// the cached balance and pushes the update to connected websockets.
// Both sides are best-effort; the ledger already committed.
func (s *Service) SyncBalance(ctx context.Context, userID, walletID string, balance int64) {
	if err := s.cache.SetBalance(ctx, walletID, balance); err != nil {
		s.logger.Warn("wallet cache refresh failed",
			zap.String("wallet_id", walletID),
			zap.Error(err))
	}
	s.notifier.NotifyBalance(userID, BalanceUpdate{
		WalletID: walletID,
		Balance:  balance,
		Currency: s.currency,
	})
}

func (s *Service) Notifier() *Notifier {
	return s.notifier
}
