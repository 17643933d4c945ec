package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const balanceTTL = 5 * time.Minute

var ErrBalanceNotFound = errors.New("balance not found in cache")

// WalletCache keeps a short-lived copy of wallet balances so the
// balance endpoint does not hit Postgres on every poll. It is strictly
// a read-side cache: Postgres stays the source of truth and every
// ledger commit invalidates or rewrites the key.
type WalletCache struct {
	client *redis.Client
	prefix string
}

func NewWalletCache(client *redis.Client) *WalletCache {
	return &WalletCache{
		client: client,
		prefix: "wallet:",
	}
}

func (c *WalletCache) GetBalance(ctx context.Context, walletID string) (int64, error) {
	val, err := c.client.Get(ctx, c.balanceKey(walletID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrBalanceNotFound
		}
		return 0, fmt.Errorf("failed to get balance from redis: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cached balance: %w", err)
	}
	return balance, nil
}

func (c *WalletCache) SetBalance(ctx context.Context, walletID string, balance int64) error {
	err := c.client.Set(ctx, c.balanceKey(walletID), strconv.FormatInt(balance, 10), balanceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set balance in redis: %w", err)
	}
	return nil
}

func (c *WalletCache) InvalidateBalance(ctx context.Context, walletID string) error {
	if err := c.client.Del(ctx, c.balanceKey(walletID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balance in redis: %w", err)
	}
	return nil
}

func (c *WalletCache) balanceKey(walletID string) string {
	return c.prefix + walletID + ":balance"
}
