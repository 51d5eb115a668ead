package handler

import (
	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/service"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Message   *MessageHandler
	Internal  *InternalHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(
	services *service.Services,
	registry *realtime.Registry,
	publisher realtime.Publisher,
	checks map[string]Pinger,
	cfg *config.Config,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(registry, checks),
		Message:  NewMessageHandler(services.Message, services.History, services.Receipt, services.Presence, cfg.Chat, log),
		Internal: NewInternalHandler(services.Message, log),
		WebSocket: NewWebSocketHandler(
			services.Auth,
			services.Message,
			services.Presence,
			registry,
			publisher,
			cfg.Chat,
			log,
		),
	}
}
