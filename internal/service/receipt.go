package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// maxMarkReadBatch ограничивает число id в одном запросе
const maxMarkReadBatch = 500

type ReceiptService interface {
	MarkRead(ctx context.Context, groupID uuid.UUID, principal domain.Principal, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error)
	UnreadCount(ctx context.Context, groupID uuid.UUID, principal domain.Principal) (int, error)
}

type receiptService struct {
	receiptRepo repository.ReadReceiptRepository
	access      accessPolicy
	log         logger.Logger
}

func NewReceiptService(receiptRepo repository.ReadReceiptRepository, directoryRepo repository.DirectoryRepository, log logger.Logger) ReceiptService {
	return &receiptService{
		receiptRepo: receiptRepo,
		access:      accessPolicy{directory: directoryRepo},
		log:         log,
	}
}

func (s *receiptService) MarkRead(ctx context.Context, groupID uuid.UUID, principal domain.Principal, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	if len(messageIDs) > maxMarkReadBatch {
		return nil, fmt.Errorf("%w: at most %d message ids per request", apperrors.ErrInvalidInput, maxMarkReadBatch)
	}
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return []*domain.ReadReceipt{}, nil
	}
	return s.receiptRepo.MarkRead(ctx, groupID, principal.UserID, messageIDs)
}

func (s *receiptService) UnreadCount(ctx context.Context, groupID uuid.UUID, principal domain.Principal) (int, error) {
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return 0, err
	}
	return s.receiptRepo.UnreadCount(ctx, groupID, principal.UserID)
}
