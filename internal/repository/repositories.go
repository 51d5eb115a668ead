package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type Repositories struct {
	Message     MessageRepository
	ReadReceipt ReadReceiptRepository
	Directory   DirectoryRepository
	Audit       AuditRepository
	Presence    PresenceRepository
	RateLimit   RateLimitRepository
}

// NewRepositories собирает Postgres-репозитории. redis может быть nil.
func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Message:     NewMessageRepository(db, log),
		ReadReceipt: NewReadReceiptRepository(db, log),
		Directory:   NewDirectoryRepository(db, log),
		Audit:       NewAuditRepository(db, log),
		Presence:    NewPresenceRepository(redis, log),
		RateLimit:   NewRateLimitRepository(redis, log),
	}

	if redis == nil {
		log.Warn("Redis is not configured, presence and rate limiting are disabled")
	}

	return repos
}
