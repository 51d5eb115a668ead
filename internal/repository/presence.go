package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// PresenceRepository хранит множество пользователей онлайн по группам
type PresenceRepository interface {
	SetOnline(ctx context.Context, groupID, userID uuid.UUID) error
	SetOffline(ctx context.Context, groupID, userID uuid.UUID) error
	OnlineUsers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

// NewPresenceRepository возвращает no-op реализацию, если Redis не настроен
func NewPresenceRepository(redis *redis.Client, log logger.Logger) PresenceRepository {
	if redis == nil {
		return noopPresence{}
	}
	return &presenceRepository{redis: redis, log: log}
}

func presenceKey(groupID uuid.UUID) string {
	return fmt.Sprintf("chat:group:%s:online", groupID)
}

func (r *presenceRepository) SetOnline(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := r.redis.SAdd(ctx, presenceKey(groupID), userID.String()).Err(); err != nil {
		r.log.Error("Failed to set presence", "error", err, "group_id", groupID, "user_id", userID)
		return err
	}
	return nil
}

func (r *presenceRepository) SetOffline(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := r.redis.SRem(ctx, presenceKey(groupID), userID.String()).Err(); err != nil {
		r.log.Error("Failed to clear presence", "error", err, "group_id", groupID, "user_id", userID)
		return err
	}
	return nil
}

func (r *presenceRepository) OnlineUsers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	members, err := r.redis.SMembers(ctx, presenceKey(groupID)).Result()
	if err != nil {
		r.log.Error("Failed to fetch presence", "error", err, "group_id", groupID)
		return nil, err
	}

	users := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			r.log.Warn("Skipping malformed presence entry", "value", m)
			continue
		}
		users = append(users, id)
	}
	return users, nil
}

type noopPresence struct{}

func (noopPresence) SetOnline(context.Context, uuid.UUID, uuid.UUID) error  { return nil }
func (noopPresence) SetOffline(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (noopPresence) OnlineUsers(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return []uuid.UUID{}, nil
}
