package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/service"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// Коды закрытия соединения
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

const (
	ActionSendMessage   = "send_message"
	ActionTyping        = "typing"
	ActionEditMessage   = "edit_message"
	ActionDeleteMessage = "delete_message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin проверяет gateway
	},
}

type WebSocketHandler struct {
	authService     service.AuthService
	messageService  service.MessageService
	presenceService service.PresenceService
	registry        *realtime.Registry
	publisher       realtime.Publisher
	chatCfg         config.ChatConfig
	log             logger.Logger
}

func NewWebSocketHandler(
	authService service.AuthService,
	messageService service.MessageService,
	presenceService service.PresenceService,
	registry *realtime.Registry,
	publisher realtime.Publisher,
	chatCfg config.ChatConfig,
	log logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		authService:     authService,
		messageService:  messageService,
		presenceService: presenceService,
		registry:        registry,
		publisher:       publisher,
		chatCfg:         chatCfg,
		log:             log,
	}
}

type inboundAction struct {
	Action      string         `json:"action"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	ReplyToID   *uuid.UUID     `json:"reply_to_id"`
	MessageID   *uuid.UUID     `json:"message_id"`
	Metadata    map[string]any `json:"metadata"`
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// HandleChat обслуживает push-канал группы. Отказы передаются кодом закрытия
// уже после upgrade, чтобы браузерный клиент мог их различить.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}
	ctx := c.Request.Context()

	principal, err := h.authService.Authenticate(ctx, tokenFromRequest(c.Request))
	if err != nil {
		h.reject(conn, CloseUnauthorized, "Unauthorized")
		return
	}

	groupID, err := uuid.Parse(c.Param("groupId"))
	if err != nil {
		h.reject(conn, CloseForbidden, "Invalid group")
		return
	}

	if err := h.presenceService.Connect(ctx, groupID, *principal); err != nil {
		code := CloseForbidden
		if apperrors.HTTPStatusFromError(err) >= http.StatusInternalServerError {
			code = websocket.CloseInternalServerErr
			h.log.Error("WebSocket access check failed", "error", err, "group_id", groupID)
		}
		h.reject(conn, code, apperrors.PublicMessage(err))
		return
	}

	userID := principal.UserID
	client := realtime.NewClient(conn, groupID, userID, principal.Username, h.chatCfg.WSSendBuffer, h.log)
	h.registry.Register(groupID, userID, client)
	h.publisher.Publish(ctx, groupID, domain.EventUserOnline, domain.PresenceEvent{
		UserID:   userID,
		Username: principal.Username,
		GroupID:  groupID,
	}, &userID)
	h.log.Info("WebSocket connected", "group_id", groupID, "user_id", userID)

	limiter := rate.NewLimiter(rate.Limit(h.chatCfg.WSActionRate), h.chatCfg.WSActionBurst)
	client.Run(func(raw []byte) {
		if !limiter.Allow() {
			h.sendError(client, apperrors.ErrRateLimited)
			return
		}
		h.dispatch(ctx, client, *principal, raw)
	})

	h.disconnect(context.WithoutCancel(ctx), client, *principal)
}

func (h *WebSocketHandler) reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// disconnect снимает регистрацию. Если соединение уже заменено новым,
// пользователь остается онлайн и user_offline не рассылается. Запись могла
// быть снята рассылкой после сбоя доставки, тогда офлайн все равно объявляется.
func (h *WebSocketHandler) disconnect(ctx context.Context, client *realtime.Client, principal domain.Principal) {
	userID := principal.UserID
	h.registry.Remove(client.GroupID, userID, client)
	if _, replaced := h.registry.Lookup(client.GroupID, userID); replaced {
		return
	}
	h.presenceService.Disconnected(ctx, client.GroupID, userID)
	h.publisher.Publish(ctx, client.GroupID, domain.EventUserOffline, domain.PresenceEvent{
		UserID:   userID,
		Username: principal.Username,
		GroupID:  client.GroupID,
	}, &userID)
	h.log.Info("WebSocket disconnected", "group_id", client.GroupID, "user_id", userID)
}

func (h *WebSocketHandler) dispatch(ctx context.Context, client *realtime.Client, principal domain.Principal, raw []byte) {
	var in inboundAction
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, apperrors.NewAPIError("invalid message format", http.StatusBadRequest))
		return
	}

	groupID := client.GroupID
	switch in.Action {
	case ActionSendMessage:
		view, err := h.messageService.SendMessage(ctx, groupID, principal, service.SendInput{
			Content:     in.Content,
			MessageType: in.MessageType,
			ReplyToID:   in.ReplyToID,
			Metadata:    in.Metadata,
		})
		if err != nil {
			h.sendError(client, err)
			return
		}
		h.reply(client, domain.EventNewMessage, view)

	case ActionTyping:
		userID := principal.UserID
		h.publisher.Publish(ctx, groupID, domain.EventTyping, domain.PresenceEvent{
			UserID:   userID,
			Username: principal.Username,
			GroupID:  groupID,
		}, &userID)

	case ActionEditMessage:
		if in.MessageID == nil {
			h.sendError(client, apperrors.NewAPIError("message_id is required", http.StatusBadRequest))
			return
		}
		updated, err := h.messageService.EditMessage(ctx, groupID, *in.MessageID, principal, in.Content)
		if err != nil {
			h.sendError(client, err)
			return
		}
		h.reply(client, domain.EventMessageEdited, updated)

	case ActionDeleteMessage:
		if in.MessageID == nil {
			h.sendError(client, apperrors.NewAPIError("message_id is required", http.StatusBadRequest))
			return
		}
		if _, err := h.messageService.DeleteMessage(ctx, groupID, *in.MessageID, principal); err != nil {
			h.sendError(client, err)
			return
		}
		h.reply(client, domain.EventMessageDeleted, domain.MessageDeletedEvent{
			ID:        *in.MessageID,
			GroupID:   groupID,
			DeletedBy: principal.Username,
		})

	default:
		h.sendError(client, apperrors.NewAPIError("unknown action", http.StatusBadRequest))
	}
}

// reply отправляет результат действия его инициатору: fan-out его исключает
func (h *WebSocketHandler) reply(client *realtime.Client, eventType string, data any) {
	if err := realtime.SendTo(client, eventType, data); err != nil {
		h.log.Warn("Failed to deliver action result", "error", err, "user_id", client.UserID, "event", eventType)
	}
}

func (h *WebSocketHandler) sendError(client *realtime.Client, err error) {
	if apperrors.HTTPStatusFromError(err) >= http.StatusInternalServerError {
		h.log.Error("WebSocket action failed", "error", err, "user_id", client.UserID, "group_id", client.GroupID)
	}
	h.reply(client, domain.EventError, domain.ErrorEvent{Message: apperrors.PublicMessage(err)})
}
