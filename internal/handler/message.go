package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/middleware"
	"github.com/faltrading/FAL-chat-service/internal/service"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type MessageHandler struct {
	messageService  service.MessageService
	historyService  service.HistoryService
	receiptService  service.ReceiptService
	presenceService service.PresenceService
	chatCfg         config.ChatConfig
	log             logger.Logger
}

func NewMessageHandler(
	messageService service.MessageService,
	historyService service.HistoryService,
	receiptService service.ReceiptService,
	presenceService service.PresenceService,
	chatCfg config.ChatConfig,
	log logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		messageService:  messageService,
		historyService:  historyService,
		receiptService:  receiptService,
		presenceService: presenceService,
		chatCfg:         chatCfg,
		log:             log,
	}
}

type SendMessageRequest struct {
	Content     string         `json:"content" binding:"required"`
	MessageType string         `json:"message_type"`
	ReplyToID   *uuid.UUID     `json:"reply_to_id"`
	Metadata    map[string]any `json:"metadata"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type MarkReadRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids"`
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", apperrors.ErrInvalidInput, name)
	}
	return id, nil
}

func bindError(err error) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, err.Error())
}

func (h *MessageHandler) Send(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	view, err := h.messageService.SendMessage(c.Request.Context(), groupID, principal, service.SendInput{
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyToID:   req.ReplyToID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// parseHistoryQuery читает limit, before и before_id
func (h *MessageHandler) parseHistoryQuery(c *gin.Context) (int, *domain.Cursor, error) {
	limit := h.chatCfg.HistoryDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: invalid limit", apperrors.ErrInvalidInput)
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}
	if limit > h.chatCfg.HistoryMaxLimit {
		limit = h.chatCfg.HistoryMaxLimit
	}

	raw := c.Query("before")
	if raw == "" {
		return limit, nil, nil
	}
	before, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: before must be an RFC3339 timestamp", apperrors.ErrInvalidInput)
	}
	cursor := &domain.Cursor{CreatedAt: before}
	if rawID := c.Query("before_id"); rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: invalid before_id", apperrors.ErrInvalidInput)
		}
		cursor.ID = &id
	}
	return limit, cursor, nil
}

func (h *MessageHandler) List(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	limit, before, err := h.parseHistoryQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	page, err := h.historyService.ListMessages(c.Request.Context(), groupID, principal, limit, before)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	receipts, err := h.receiptService.MarkRead(c.Request.Context(), groupID, principal, req.MessageIDs)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"marked":   len(receipts),
		"receipts": receipts,
	})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	count, err := h.receiptService.UnreadCount(c.Request.Context(), groupID, principal)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *MessageHandler) Pinned(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	views, err := h.messageService.ListPinned(c.Request.Context(), groupID, principal)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

func (h *MessageHandler) Get(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	messageID, err := parseUUIDParam(c, "messageId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	view, err := h.messageService.GetMessage(c.Request.Context(), groupID, messageID, principal)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *MessageHandler) Edit(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	messageID, err := parseUUIDParam(c, "messageId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	message, err := h.messageService.EditMessage(c.Request.Context(), groupID, messageID, principal, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	messageID, err := parseUUIDParam(c, "messageId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	if _, err := h.messageService.DeleteMessage(c.Request.Context(), groupID, messageID, principal); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) TogglePin(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	messageID, err := parseUUIDParam(c, "messageId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	message, err := h.messageService.TogglePin(c.Request.Context(), groupID, messageID, principal)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) Online(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	principal, _ := middleware.PrincipalFrom(c)

	users, err := h.presenceService.OnlineUsers(c.Request.Context(), groupID, principal)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if users == nil {
		users = []uuid.UUID{}
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": groupID,
		"user_ids": users,
	})
}
