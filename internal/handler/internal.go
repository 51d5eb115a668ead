package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faltrading/FAL-chat-service/internal/service"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// InternalHandler - эндпоинты для сервиса групп (под RequireAdmin)
type InternalHandler struct {
	messageService service.MessageService
	log            logger.Logger
}

func NewInternalHandler(messageService service.MessageService, log logger.Logger) *InternalHandler {
	return &InternalHandler{
		messageService: messageService,
		log:            log,
	}
}

type SystemMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type GroupEventRequest struct {
	Type string         `json:"type" binding:"required"`
	Data map[string]any `json:"data"`
}

func (h *InternalHandler) CreateSystemMessage(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req SystemMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	message, err := h.messageService.CreateSystemMessage(c.Request.Context(), groupID, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *InternalHandler) PublishEvent(c *gin.Context) {
	groupID, err := parseUUIDParam(c, "groupId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req GroupEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	req.Data["group_id"] = groupID

	if err := h.messageService.PublishMembershipEvent(c.Request.Context(), groupID, req.Type, req.Data); err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("Membership event published", "group_id", groupID, "type", req.Type)
	c.Status(http.StatusAccepted)
}
