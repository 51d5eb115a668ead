package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type PresenceService interface {
	// Connect проверяет право читать группу и отмечает пользователя онлайн
	Connect(ctx context.Context, groupID uuid.UUID, principal domain.Principal) error
	Disconnected(ctx context.Context, groupID, userID uuid.UUID)
	OnlineUsers(ctx context.Context, groupID uuid.UUID, principal domain.Principal) ([]uuid.UUID, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	access       accessPolicy
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, directoryRepo repository.DirectoryRepository, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		access:       accessPolicy{directory: directoryRepo},
		log:          log,
	}
}

func (s *presenceService) Connect(ctx context.Context, groupID uuid.UUID, principal domain.Principal) error {
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return err
	}
	// сбой Redis не мешает подключению
	if err := s.presenceRepo.SetOnline(ctx, groupID, principal.UserID); err != nil {
		s.log.Warn("Presence update failed", "error", err, "group_id", groupID, "user_id", principal.UserID)
	}
	return nil
}

func (s *presenceService) Disconnected(ctx context.Context, groupID, userID uuid.UUID) {
	if err := s.presenceRepo.SetOffline(ctx, groupID, userID); err != nil {
		s.log.Warn("Presence update failed", "error", err, "group_id", groupID, "user_id", userID)
	}
}

func (s *presenceService) OnlineUsers(ctx context.Context, groupID uuid.UUID, principal domain.Principal) ([]uuid.UUID, error) {
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return nil, err
	}
	return s.presenceRepo.OnlineUsers(ctx, groupID)
}
