package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) (*domain.Message, error)
	// SoftDelete возвращает changed == false, если сообщение уже было удалено
	SoftDelete(ctx context.Context, id uuid.UUID) (message *domain.Message, changed bool, err error)
	// SetPinned при pinned == nil инвертирует текущее состояние.
	// Удаленное сообщение не закрепляется: ErrMessageNotFound.
	SetPinned(ctx context.Context, id uuid.UUID, pinned *bool, by string) (*domain.Message, error)
	// ListByGroup возвращает сообщения от новых к старым
	ListByGroup(ctx context.Context, groupID uuid.UUID, before *domain.Cursor, limit int) ([]*domain.Message, error)
	ListPinned(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error)
	// WithinTx выполняет fn в одной транзакции. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(MessageRepository) error) error
}

// dbtx - общее подмножество pgxpool.Pool и pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type messageRepository struct {
	db   dbtx
	pool *pgxpool.Pool
	log  logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, pool: db, log: log}
}

const messageColumns = `
	id, group_id, sender_id, sender_username, content, message_type, reply_to_id, metadata,
	is_edited, edited_at, is_deleted, is_pinned, pinned_at, pinned_by, created_at, updated_at`

// Postgres хранит время с точностью до микросекунд
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.GroupID, &m.SenderID, &m.SenderUsername, &m.Content, &m.MessageType,
		&m.ReplyToID, &m.Metadata, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.IsPinned,
		&m.PinnedAt, &m.PinnedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return m, nil
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	if message.ReplyToID != nil {
		var parentGroup uuid.UUID
		err := r.db.QueryRow(ctx, `SELECT group_id FROM messages WHERE id = $1`, *message.ReplyToID).Scan(&parentGroup)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentGroup != message.GroupID) {
			return apperrors.ErrReplyTargetNotFound
		}
		if err != nil {
			r.log.Error("Failed to resolve reply target", "error", err)
			return storageError(err)
		}
	}

	if message.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		message.ID = id
	}
	if message.Metadata == nil {
		message.Metadata = map[string]any{}
	}
	now := dbNow()
	message.CreatedAt = now
	message.UpdatedAt = now

	query := `
		INSERT INTO messages (id, group_id, sender_id, sender_username, content, message_type,
			reply_to_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		message.ID, message.GroupID, message.SenderID, message.SenderUsername, message.Content,
		message.MessageType, message.ReplyToID, message.Metadata, message.CreatedAt, message.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "group_id", message.GroupID)
		return storageError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		r.log.Error("Failed to get message", "error", err, "message_id", id)
		return nil, storageError(err)
	}
	return m, nil
}

func (r *messageRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT` + messageColumns + ` FROM messages WHERE id = ANY($1)`
	return r.queryMessages(ctx, "Failed to get messages by ids", query, ids)
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*domain.Message, error) {
	now := dbNow()
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = $3, updated_at = $3
		WHERE id = $1 AND NOT is_deleted
		RETURNING` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id, content, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		r.log.Error("Failed to update message", "error", err, "message_id", id)
		return nil, storageError(err)
	}
	return m, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Message, bool, error) {
	// переход в удаленное состояние выполняет ровно один вызов
	query := `
		UPDATE messages
		SET content = $2, is_deleted = TRUE, updated_at = $3
		WHERE id = $1 AND NOT is_deleted
		RETURNING` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id, domain.TombstoneContent, dbNow()))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", id)
		return nil, false, storageError(err)
	}
	return m, true, nil
}

func (r *messageRepository) SetPinned(ctx context.Context, id uuid.UUID, pinned *bool, by string) (*domain.Message, error) {
	// $2 = NULL означает переключение
	query := `
		UPDATE messages
		SET is_pinned = COALESCE($2, NOT is_pinned),
			pinned_at = CASE WHEN COALESCE($2, NOT is_pinned) THEN $3::timestamptz ELSE NULL END,
			pinned_by = CASE WHEN COALESCE($2, NOT is_pinned) THEN $4::varchar ELSE NULL END,
			updated_at = $3
		WHERE id = $1 AND NOT is_deleted
		RETURNING` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id, pinned, dbNow(), by))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		r.log.Error("Failed to pin message", "error", err, "message_id", id)
		return nil, storageError(err)
	}
	return m, nil
}

func (r *messageRepository) ListByGroup(ctx context.Context, groupID uuid.UUID, before *domain.Cursor, limit int) ([]*domain.Message, error) {
	switch {
	case before == nil:
		query := `SELECT` + messageColumns + `
			FROM messages
			WHERE group_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`
		return r.queryMessages(ctx, "Failed to list messages", query, groupID, limit)
	case before.ID == nil:
		query := `SELECT` + messageColumns + `
			FROM messages
			WHERE group_id = $1 AND created_at < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3`
		return r.queryMessages(ctx, "Failed to list messages", query, groupID, before.CreatedAt, limit)
	default:
		query := `SELECT` + messageColumns + `
			FROM messages
			WHERE group_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`
		return r.queryMessages(ctx, "Failed to list messages", query, groupID, before.CreatedAt, *before.ID, limit)
	}
}

func (r *messageRepository) ListPinned(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages
		WHERE group_id = $1 AND is_pinned AND NOT is_deleted
		ORDER BY pinned_at DESC, id DESC`
	return r.queryMessages(ctx, "Failed to list pinned messages", query, groupID)
}

func (r *messageRepository) WithinTx(ctx context.Context, fn func(MessageRepository) error) error {
	if r.pool == nil {
		// уже внутри транзакции
		return fn(r)
	}
	var fnErr error
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		fnErr = fn(&messageRepository{db: tx, log: r.log})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		r.log.Error("Failed to run transaction", "error", err)
		return storageError(err)
	}
	return nil
}

func (r *messageRepository) queryMessages(ctx context.Context, failure, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error(failure, "error", err)
		return nil, storageError(err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, storageError(err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		r.log.Error(failure, "error", err)
		return nil, storageError(err)
	}
	return messages, nil
}
