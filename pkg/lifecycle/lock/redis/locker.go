package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Config tunes the lock.
type Config struct {
	KeyPrefix  string        // prepended to every lock key
	TTL        time.Duration // expiry guarding against crashed holders
	RetryDelay time.Duration // wait between acquisition attempts
}

// DefaultConfig returns the lock settings used when none are given.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "lock:",
		TTL:        30 * time.Second,
		RetryDelay: 25 * time.Millisecond,
	}
}

// Locker implements lifecycle.Locker with a Redis SET NX PX lock, so
// change tokens stay serialized across server processes.
type Locker struct {
	client redis.UniversalClient
	config Config
	logger *slog.Logger
}

// New creates a Redis locker.
func New(client redis.UniversalClient, config Config, logger *slog.Logger) *Locker {
	def := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: client, config: config, logger: logger}
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.config.KeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryDelay)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.config.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "key", redisKey, "error", err)
			}
		})
	}, nil
}

var _ lifecycle.Locker = (*Locker)(nil)
