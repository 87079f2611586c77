package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeValidation, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeValidation, "lock not held by this owner")
)

// DistributedLock coordinates work across replicas, such as the worker's
// overdue scan, through a Redis-backed lease.
type DistributedLock interface {
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	TTL(ctx context.Context) (time.Duration, error)
}

// LockFactory builds locks over one Redis client. A mutex is owned by the
// lock instance; a reentrant lock is owned by an explicit owner ID and may
// be taken again by the same owner.
type LockFactory interface {
	NewMutex(name string, opts ...LockOption) DistributedLock
	NewReentrantLock(name string, ownerID string, opts ...LockOption) DistributedLock
}

type lockConfig struct {
	ttl              time.Duration
	retryDelay       time.Duration
	retryCount       int
	watchdogEnabled  bool
	watchdogInterval time.Duration
}

func defaultLockConfig(opts []LockOption) lockConfig {
	cfg := lockConfig{
		ttl:              30 * time.Second,
		retryDelay:       100 * time.Millisecond,
		retryCount:       30,
		watchdogInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.watchdogEnabled && cfg.watchdogInterval == 0 {
		cfg.watchdogInterval = cfg.ttl / 3
	}
	return cfg
}

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

// WithWatchdog keeps the lease alive for long-running work by extending the
// TTL in the background until Unlock.
func WithWatchdog(enabled bool) LockOption {
	return func(c *lockConfig) { c.watchdogEnabled = enabled }
}

func WithWatchdogInterval(interval time.Duration) LockOption {
	return func(c *lockConfig) { c.watchdogInterval = interval }
}

type lockFactory struct {
	client *Client
	log    logging.Logger
}

func NewLockFactory(client *Client, log logging.Logger) LockFactory {
	return &lockFactory{client: client, log: log}
}

func (f *lockFactory) NewMutex(name string, opts ...LockOption) DistributedLock {
	return &mutexLock{
		client: f.client,
		key:    lockKey("mutex", name),
		value:  uuid.New().String(),
		config: defaultLockConfig(opts),
		logger: f.log,
	}
}

func (f *lockFactory) NewReentrantLock(name string, ownerID string, opts ...LockOption) DistributedLock {
	return &reentrantLock{
		client:  f.client,
		key:     lockKey("reentrant", name),
		ownerID: ownerID,
		config:  defaultLockConfig(opts),
		logger:  f.log,
	}
}

func lockKey(kind, name string) string {
	return "royalty:lock:" + kind + ":" + name
}

// watchdog renews the lease until stopped or until an extension fails,
// which means the lease was lost.
type watchdog struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watchdog) running() bool { return w.cancel != nil }

func (w *watchdog) start(extend func(context.Context, time.Duration) (bool, error), interval, ttl time.Duration, log logging.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := extend(ctx, ttl)
				if err != nil {
					log.Error("lock watchdog extension failed", logging.Err(err))
					return
				}
				if !ok {
					log.Warn("lock watchdog lost the lease")
					return
				}
			}
		}
	}()
}

func (w *watchdog) stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
		w.cancel = nil
	}
}

// mutexLock is a plain SET NX lock. The random value ties the lease to this
// instance so a stale holder cannot delete a competitor's lock.
type mutexLock struct {
	client *Client
	key    string
	value  string
	config lockConfig
	logger logging.Logger
	dog    watchdog
}

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var mutexExtendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (m *mutexLock) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (m *mutexLock) TryLock(ctx context.Context) (bool, error) {
	return m.acquire(ctx)
}

func (m *mutexLock) acquire(ctx context.Context) (bool, error) {
	ok, err := m.client.GetUnderlyingClient().SetNX(ctx, m.key, m.value, m.config.ttl).Result()
	if err != nil && err != redis.Nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if ok && m.config.watchdogEnabled {
		m.dog.start(m.Extend, m.config.watchdogInterval, m.config.ttl, m.logger)
	}
	return ok, nil
}

func (m *mutexLock) Unlock(ctx context.Context) error {
	m.dog.stop()
	res, err := mutexUnlockScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value).Result()
	if err != nil {
		return err
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (m *mutexLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := mutexExtendScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

func (m *mutexLock) TTL(ctx context.Context) (time.Duration, error) {
	return m.client.GetUnderlyingClient().PTTL(ctx, m.key).Result()
}

// reentrantLock counts holds per owner in a hash, so the same owner can
// nest Lock/Unlock pairs; the key is deleted when the count drops to zero.
type reentrantLock struct {
	client  *Client
	key     string
	ownerID string
	config  lockConfig
	logger  logging.Logger
	dog     watchdog
}

var reentrantLockScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		redis.call("HSET", KEYS[1], ARGV[1], 1)
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		return 1
	elseif redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
		redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		return 1
	else
		return 0
	end
`)

var reentrantUnlockScript = redis.NewScript(`
	if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
		return -1
	end
	local count = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
	if count <= 0 then
		redis.call("DEL", KEYS[1])
		return 0
	else
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
		return count
	end
`)

var reentrantExtendScript = redis.NewScript(`
	if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *reentrantLock) Lock(ctx context.Context) error {
	for i := 0; i < l.config.retryCount; i++ {
		ok, err := l.acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (l *reentrantLock) TryLock(ctx context.Context) (bool, error) {
	return l.acquire(ctx)
}

func (l *reentrantLock) acquire(ctx context.Context) (bool, error) {
	res, err := reentrantLockScript.Run(ctx, l.client.GetUnderlyingClient(), []string{l.key}, l.ownerID, l.config.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	ok := res.(int64) == 1
	// Re-entry keeps the existing watchdog running.
	if ok && l.config.watchdogEnabled && !l.dog.running() {
		l.dog.start(l.Extend, l.config.watchdogInterval, l.config.ttl, l.logger)
	}
	return ok, nil
}

func (l *reentrantLock) Unlock(ctx context.Context) error {
	res, err := reentrantUnlockScript.Run(ctx, l.client.GetUnderlyingClient(), []string{l.key}, l.ownerID, l.config.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	switch res.(int64) {
	case -1:
		return ErrLockNotHeld
	case 0:
		l.dog.stop()
	}
	return nil
}

func (l *reentrantLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := reentrantExtendScript.Run(ctx, l.client.GetUnderlyingClient(), []string{l.key}, l.ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

func (l *reentrantLock) TTL(ctx context.Context) (time.Duration, error) {
	return l.client.GetUnderlyingClient().PTTL(ctx, l.key).Result()
}
