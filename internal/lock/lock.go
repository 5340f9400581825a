package lock

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/merchline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrLockTimeout = errors.New("lock_timeout")
	ErrEmptyKey    = errors.New("lock_key_empty")
)

// Locker serializes critical sections sharing a key.
// The returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

// NewLocker returns a Redis-backed locker when Redis is configured and an
// in-process keyed mutex otherwise.
func NewLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Info("ledger guard using in-process keyed mutex")
		return NewKeyedMutex()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("ledger guard using redis lock", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client, cfg.Redis.LockTTL, cfg.Redis.LockWait, log)
}
