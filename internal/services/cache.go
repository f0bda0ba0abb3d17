package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/models"
)

// WalletCache is an optional short-TTL read cache over the hot wallet
// reads. A nil *WalletCache disables caching entirely; every method is
// nil-safe so callers never branch on availability.
type WalletCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewWalletCache returns nil when no redis client is available.
func NewWalletCache(rdb *redis.Client, ttl time.Duration) *WalletCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &WalletCache{rdb: rdb, ttl: ttl}
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("wallet:balance:%d", userID)
}

func historyKey(userID int64) string {
	return fmt.Sprintf("wallet:history:%d", userID)
}

func (c *WalletCache) Balance(ctx context.Context, userID int64) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Decimal{}, false
	}
	val, err := c.rdb.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (c *WalletCache) SetBalance(ctx context.Context, userID int64, amount decimal.Decimal) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, balanceKey(userID), amount.StringFixed(2), c.ttl).Err(); err != nil {
		log.Printf("[cache] set balance user=%d: %v", userID, err)
	}
}

// History caches only the default-limit listing; other limits go to the
// database every time.
func (c *WalletCache) History(ctx context.Context, userID int64) ([]models.HistoryItem, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, historyKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var items []models.HistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *WalletCache) SetHistory(ctx context.Context, userID int64, items []models.HistoryItem) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, historyKey(userID), raw, c.ttl).Err(); err != nil {
		log.Printf("[cache] set history user=%d: %v", userID, err)
	}
}

// Invalidate drops the cached reads for the given users. Called after
// every committed atomic unit that touches their balances.
func (c *WalletCache) Invalidate(ctx context.Context, userIDs ...int64) {
	if c == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, balanceKey(id), historyKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[cache] invalidate: %v", err)
	}
}
