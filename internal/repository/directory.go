package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// DirectoryRepository - доступ только на чтение к группам и участникам,
// которыми владеет сервис групп
type DirectoryRepository interface {
	GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error)
	IsDefaultGroup(ctx context.Context, groupID uuid.UUID) (bool, error)
	MemberExists(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

type directoryRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewDirectoryRepository(db *pgxpool.Pool, log logger.Logger) DirectoryRepository {
	return &directoryRepository{db: db, log: log}
}

func (r *directoryRepository) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chat_groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check group", "error", err, "group_id", groupID)
		return false, storageError(err)
	}
	return exists, nil
}

func (r *directoryRepository) IsDefaultGroup(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var isDefault bool
	err := r.db.QueryRow(ctx, `SELECT is_default FROM chat_groups WHERE id = $1`, groupID).Scan(&isDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.ErrGroupNotFound
	}
	if err != nil {
		r.log.Error("Failed to check default group", "error", err, "group_id", groupID)
		return false, storageError(err)
	}
	return isDefault, nil
}

func (r *directoryRepository) MemberExists(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists); err != nil {
		r.log.Error("Failed to check membership", "error", err, "group_id", groupID)
		return false, storageError(err)
	}
	return exists, nil
}
