package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedAccountDirectory puts a two tier cache in front of an AccountDirectory.
// L1 is local to the process, L2 is Redis and shared across replicas.
// Only existing accounts are cached; an unknown code always reaches the source.
type CachedAccountDirectory struct {
	source      ledger.AccountDirectory
	client      *redis.Client
	invalidator *AccountInvalidator
	keyPrefix   string
	ttl         time.Duration
	clock       shared.Clock
	logger      *zap.Logger

	mu    sync.RWMutex
	local map[string]localAccount

	l1Hits int64
	l2Hits int64
	misses int64
}

type localAccount struct {
	info      ledger.AccountInfo
	expiresAt time.Time
}

// cachedAccount is the L2 JSON form
type cachedAccount struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Postable bool   `json:"postable"`
}

// CacheStats counts lookups per tier
type CacheStats struct {
	L1Hits int64
	L2Hits int64
	Misses int64
}

// AccountCacheOption configures a CachedAccountDirectory
type AccountCacheOption func(*CachedAccountDirectory)

// WithRedis enables the shared L2 tier
func WithRedis(client *redis.Client) AccountCacheOption {
	return func(c *CachedAccountDirectory) {
		c.client = client
	}
}

// WithInvalidator publishes invalidations to other replicas
func WithInvalidator(inv *AccountInvalidator) AccountCacheOption {
	return func(c *CachedAccountDirectory) {
		c.invalidator = inv
	}
}

// WithCacheTTL sets the TTL of both tiers
func WithCacheTTL(ttl time.Duration) AccountCacheOption {
	return func(c *CachedAccountDirectory) {
		c.ttl = ttl
	}
}

// WithCacheClock sets the clock used for L1 expiry
func WithCacheClock(clock shared.Clock) AccountCacheOption {
	return func(c *CachedAccountDirectory) {
		c.clock = clock
	}
}

// WithCacheLogger sets the logger
func WithCacheLogger(logger *zap.Logger) AccountCacheOption {
	return func(c *CachedAccountDirectory) {
		c.logger = logger
	}
}

// NewCachedAccountDirectory wraps source
func NewCachedAccountDirectory(source ledger.AccountDirectory, opts ...AccountCacheOption) *CachedAccountDirectory {
	c := &CachedAccountDirectory{
		source:    source,
		keyPrefix: "ledger:account:",
		ttl:       5 * time.Minute,
		clock:     shared.SystemClock{},
		logger:    zap.NewNop(),
		local:     make(map[string]localAccount),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedAccountDirectory) key(scope ledger.Scope, code string) string {
	return c.keyPrefix + scope.Key() + ":" + code
}

// Resolve reads L1, then L2, then the source
func (c *CachedAccountDirectory) Resolve(ctx context.Context, scope ledger.Scope, code string) (ledger.AccountInfo, error) {
	key := c.key(scope, code)

	if info, ok := c.getLocal(key); ok {
		atomic.AddInt64(&c.l1Hits, 1)
		return info, nil
	}

	if info, ok := c.getShared(ctx, key); ok {
		atomic.AddInt64(&c.l2Hits, 1)
		c.setLocal(key, info)
		return info, nil
	}
	atomic.AddInt64(&c.misses, 1)

	info, err := c.source.Resolve(ctx, scope, code)
	if err != nil {
		return ledger.AccountInfo{}, err
	}
	if info.Exists {
		c.setLocal(key, info)
		c.setShared(ctx, key, info)
	}
	return info, nil
}

// Invalidate drops code from both tiers and tells other replicas to drop it
func (c *CachedAccountDirectory) Invalidate(ctx context.Context, scope ledger.Scope, code string) error {
	key := c.key(scope, code)
	if c.client != nil {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return err
		}
	}
	c.dropLocal(key)

	if c.invalidator != nil {
		if err := c.invalidator.Publish(ctx, NewAccountInvalidation(scope, code)); err != nil {
			c.logger.Warn("Failed to publish account invalidation",
				zap.String("scope", scope.Key()),
				zap.String("code", code),
				zap.Error(err))
		}
	}
	return nil
}

// StartInvalidationSubscription applies invalidations published by other
// replicas to L1. It blocks until ctx is done.
func (c *CachedAccountDirectory) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.HandleInvalidation)
}

// HandleInvalidation applies one invalidation message to L1
func (c *CachedAccountDirectory) HandleInvalidation(msg AccountInvalidation) {
	switch msg.Action {
	case InvalidationActionAccount:
		c.dropLocal(c.key(ledger.NewScope(msg.TenantID, msg.CompanyID), msg.Code))
	case InvalidationActionAll:
		c.mu.Lock()
		c.local = make(map[string]localAccount)
		c.mu.Unlock()
	default:
		c.logger.Warn("Unknown account invalidation action", zap.String("action", string(msg.Action)))
	}
}

// Stats returns lookup counters
func (c *CachedAccountDirectory) Stats() CacheStats {
	return CacheStats{
		L1Hits: atomic.LoadInt64(&c.l1Hits),
		L2Hits: atomic.LoadInt64(&c.l2Hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}

func (c *CachedAccountDirectory) getLocal(key string) (ledger.AccountInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.local[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return ledger.AccountInfo{}, false
	}
	return e.info, true
}

func (c *CachedAccountDirectory) setLocal(key string, info ledger.AccountInfo) {
	c.mu.Lock()
	c.local[key] = localAccount{info: info, expiresAt: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *CachedAccountDirectory) dropLocal(key string) {
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
}

// getShared treats Redis errors as misses
func (c *CachedAccountDirectory) getShared(ctx context.Context, key string) (ledger.AccountInfo, bool) {
	if c.client == nil {
		return ledger.AccountInfo{}, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("L2 account cache error", zap.String("key", key), zap.Error(err))
		}
		return ledger.AccountInfo{}, false
	}
	var ca cachedAccount
	if err := json.Unmarshal(data, &ca); err != nil {
		c.logger.Warn("Corrupt L2 account cache entry", zap.String("key", key), zap.Error(err))
		return ledger.AccountInfo{}, false
	}
	return ledger.AccountInfo{
		Code:     ca.Code,
		Name:     ca.Name,
		Exists:   true,
		Active:   ca.Active,
		Postable: ca.Postable,
	}, true
}

func (c *CachedAccountDirectory) setShared(ctx context.Context, key string, info ledger.AccountInfo) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(cachedAccount{
		Code:     info.Code,
		Name:     info.Name,
		Active:   info.Active,
		Postable: info.Postable,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to populate L2 account cache", zap.String("key", key), zap.Error(err))
	}
}

// Ensure CachedAccountDirectory implements AccountDirectory
var _ ledger.AccountDirectory = (*CachedAccountDirectory)(nil)
