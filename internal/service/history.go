package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type HistoryService interface {
	// ListMessages возвращает страницу от старых к новым. limit ограничивает вызывающий.
	ListMessages(ctx context.Context, groupID uuid.UUID, principal domain.Principal, limit int, before *domain.Cursor) (*domain.MessagePage, error)
}

type historyService struct {
	messageRepo repository.MessageRepository
	access      accessPolicy
	log         logger.Logger
}

func NewHistoryService(messageRepo repository.MessageRepository, directoryRepo repository.DirectoryRepository, log logger.Logger) HistoryService {
	return &historyService{
		messageRepo: messageRepo,
		access:      accessPolicy{directory: directoryRepo},
		log:         log,
	}
}

func (s *historyService) ListMessages(ctx context.Context, groupID uuid.UUID, principal domain.Principal, limit int, before *domain.Cursor) (*domain.MessagePage, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", apperrors.ErrInvalidInput)
	}
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByGroup(ctx, groupID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	views, err := buildViews(ctx, s.messageRepo, messages)
	if err != nil {
		return nil, err
	}

	page := &domain.MessagePage{Messages: views, HasMore: hasMore}
	if hasMore && len(messages) > 0 {
		oldest := messages[0]
		cursor := oldest.CreatedAt.UTC().Format(time.RFC3339Nano)
		id := oldest.ID
		page.NextCursor = &cursor
		page.NextID = &id
	}
	return page, nil
}
