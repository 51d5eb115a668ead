package service

import (
	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Message   MessageService
	History   HistoryService
	Receipt   ReceiptService
	Presence  PresenceService
	RateLimit RateLimitService
	Audit     AuditService
}

func NewServices(repos *repository.Repositories, publisher realtime.Publisher, cfg *config.Config, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)

	return &Services{
		Auth:      NewAuthService(cfg.JWT, cfg.Chat.AdminUsername, log),
		Message:   NewMessageService(repos.Message, repos.Directory, publisher, audit, log),
		History:   NewHistoryService(repos.Message, repos.Directory, log),
		Receipt:   NewReceiptService(repos.ReadReceipt, repos.Directory, log),
		Presence:  NewPresenceService(repos.Presence, repos.Directory, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
		Audit:     audit,
	}
}
