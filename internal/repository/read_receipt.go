package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type ReadReceiptRepository interface {
	// MarkRead возвращает только впервые созданные отметки.
	// Сообщения других групп пропускаются.
	MarkRead(ctx context.Context, groupID, userID uuid.UUID, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error)
	UnreadCount(ctx context.Context, groupID, userID uuid.UUID) (int, error)
}

type readReceiptRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewReadReceiptRepository(db *pgxpool.Pool, log logger.Logger) ReadReceiptRepository {
	return &readReceiptRepository{db: db, log: log}
}

func (r *readReceiptRepository) MarkRead(ctx context.Context, groupID, userID uuid.UUID, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	ids := uniqueIDs(messageIDs)
	if len(ids) == 0 {
		return []*domain.ReadReceipt{}, nil
	}

	// Неизвестные и чужие id отбрасываются соединением с messages
	query := `
		INSERT INTO message_read_status (message_id, user_id, read_at)
		SELECT m.id, $1, $3
		FROM messages m
		WHERE m.id = ANY($2) AND m.group_id = $4
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id, user_id, read_at
	`
	rows, err := r.db.Query(ctx, query, userID, ids, dbNow(), groupID)
	if err != nil {
		r.log.Error("Failed to mark messages as read", "error", err, "user_id", userID, "group_id", groupID)
		return nil, storageError(err)
	}
	defer rows.Close()

	receipts := []*domain.ReadReceipt{}
	for rows.Next() {
		rr := &domain.ReadReceipt{}
		if err := rows.Scan(&rr.MessageID, &rr.UserID, &rr.ReadAt); err != nil {
			r.log.Error("Failed to scan read receipt", "error", err)
			return nil, storageError(err)
		}
		receipts = append(receipts, rr)
	}
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to mark messages as read", "error", err)
		return nil, storageError(err)
	}
	return receipts, nil
}

func (r *readReceiptRepository) UnreadCount(ctx context.Context, groupID, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.group_id = $1
			AND NOT m.is_deleted
			AND NOT EXISTS (
				SELECT 1 FROM message_read_status s
				WHERE s.message_id = m.id AND s.user_id = $2
			)
	`
	var count int
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread messages", "error", err, "group_id", groupID)
		return 0, storageError(err)
	}
	return count, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
