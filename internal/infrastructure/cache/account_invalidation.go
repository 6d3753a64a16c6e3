package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "ledger:accounts:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationAction says what an AccountInvalidation drops
type InvalidationAction string

const (
	InvalidationActionAccount InvalidationAction = "account"
	InvalidationActionAll     InvalidationAction = "all"
)

// AccountInvalidation is the pub/sub payload
type AccountInvalidation struct {
	Action    InvalidationAction `json:"action"`
	TenantID  uuid.UUID          `json:"tenant_id"`
	CompanyID uuid.UUID          `json:"company_id"`
	Code      string             `json:"code,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// NewAccountInvalidation builds a message dropping one account
func NewAccountInvalidation(scope ledger.Scope, code string) AccountInvalidation {
	return AccountInvalidation{
		Action:    InvalidationActionAccount,
		TenantID:  scope.TenantID,
		CompanyID: scope.CompanyID,
		Code:      code,
	}
}

// AccountInvalidator fans account cache invalidations out over Redis pub/sub.
// The caller owns the client.
type AccountInvalidator struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// AccountInvalidatorOption configures an AccountInvalidator
type AccountInvalidatorOption func(*AccountInvalidator)

// WithInvalidationChannel sets the pub/sub channel
func WithInvalidationChannel(channel string) AccountInvalidatorOption {
	return func(i *AccountInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger
func WithInvalidatorLogger(logger *zap.Logger) AccountInvalidatorOption {
	return func(i *AccountInvalidator) {
		i.logger = logger
	}
}

// NewAccountInvalidator creates an invalidator over client
func NewAccountInvalidator(client *redis.Client, opts ...AccountInvalidatorOption) *AccountInvalidator {
	i := &AccountInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish sends msg to every subscriber
func (i *AccountInvalidator) Publish(ctx context.Context, msg AccountInvalidation) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	i.logger.Debug("Published account invalidation",
		zap.String("action", string(msg.Action)),
		zap.String("code", msg.Code),
		zap.String("channel", i.channel))
	return nil
}

// PublishAll asks every replica to drop its whole L1
func (i *AccountInvalidator) PublishAll(ctx context.Context) error {
	return i.Publish(ctx, AccountInvalidation{Action: InvalidationActionAll})
}

// Subscribe calls callback for every message until ctx is done or Close is
// called. It blocks.
func (i *AccountInvalidator) Subscribe(ctx context.Context, callback func(AccountInvalidation)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.channel, err)
	}
	i.logger.Info("Subscribed to account invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Account invalidation subscription stopped")
			return subCtx.Err()
		case m, ok := <-ch:
			if !ok {
				i.logger.Warn("Account invalidation channel closed")
				return nil
			}
			var msg AccountInvalidation
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				i.logger.Error("Failed to unmarshal account invalidation",
					zap.String("payload", m.Payload),
					zap.Error(err))
				continue
			}
			i.dispatch(callback, msg)
		}
	}
}

func (i *AccountInvalidator) dispatch(callback func(AccountInvalidation), msg AccountInvalidation) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in account invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(msg)
}

func (i *AccountInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription. It does not close the client.
func (i *AccountInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for invalidation subscription to stop")
		}
	}
	return nil
}
