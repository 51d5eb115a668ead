package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// RateLimitRepository - счетчики фиксированного окна в Redis
type RateLimitRepository interface {
	// Increment учитывает запрос и возвращает число запросов в текущем окне.
	// Счетчик и срок окна меняются одной транзакцией.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

// NewRateLimitRepository без Redis разрешает все запросы
func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	if redis == nil {
		return noopRateLimit{}
	}
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	// окно отсчитывается от первого запроса, NX не продлевает его
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return 0, err
	}
	return incr.Val(), nil
}

type noopRateLimit struct{}

func (noopRateLimit) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}
