package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type SendInput struct {
	Content     string
	MessageType string
	ReplyToID   *uuid.UUID
	Metadata    map[string]any
}

type MessageService interface {
	SendMessage(ctx context.Context, groupID uuid.UUID, principal domain.Principal, input SendInput) (*domain.MessageView, error)
	EditMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.Message, error)
	TogglePin(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.Message, error)
	CreateSystemMessage(ctx context.Context, groupID uuid.UUID, content string) (*domain.Message, error)
	GetMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.MessageView, error)
	ListPinned(ctx context.Context, groupID uuid.UUID, principal domain.Principal) ([]*domain.MessageView, error)
	// PublishMembershipEvent рассылает user_joined / user_left от сервиса групп
	PublishMembershipEvent(ctx context.Context, groupID uuid.UUID, eventType string, data map[string]any) error
}

type messageService struct {
	messageRepo repository.MessageRepository
	access      accessPolicy
	publisher   realtime.Publisher
	audit       AuditService
	log         logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	directoryRepo repository.DirectoryRepository,
	publisher realtime.Publisher,
	audit AuditService,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		access:      accessPolicy{directory: directoryRepo},
		publisher:   publisher,
		audit:       audit,
		log:         log,
	}
}

func moderationNotice(admin string) string {
	return fmt.Sprintf("A message was removed by %s", admin)
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content must not be empty", apperrors.ErrInvalidInput)
	}
	return content, nil
}

func (s *messageService) SendMessage(ctx context.Context, groupID uuid.UUID, principal domain.Principal, input SendInput) (*domain.MessageView, error) {
	content, err := normalizeContent(input.Content)
	if err != nil {
		return nil, err
	}

	kind := input.MessageType
	if kind == "" {
		kind = domain.MessageTypeText
	}
	if !domain.IsValidMessageType(kind) {
		return nil, fmt.Errorf("%w: unknown message type %q", apperrors.ErrInvalidInput, kind)
	}
	if kind == domain.MessageTypeSystem {
		return nil, fmt.Errorf("%w: system messages cannot be sent by users", apperrors.ErrInvalidInput)
	}

	if err := s.access.requireMember(ctx, groupID, principal); err != nil {
		return nil, err
	}
	if kind == domain.MessageTypeAdminAnnouncement && !principal.IsAdmin() {
		return nil, apperrors.ErrInsufficientPermissions
	}

	senderID := principal.UserID
	senderName := principal.Username
	message := &domain.Message{
		GroupID:        groupID,
		SenderID:       &senderID,
		SenderUsername: &senderName,
		Content:        content,
		MessageType:    kind,
		ReplyToID:      input.ReplyToID,
		Metadata:       input.Metadata,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	views, err := buildViews(ctx, s.messageRepo, []*domain.Message{message})
	if err != nil {
		// сообщение уже сохранено, ответ отдаем без reply_to_*
		s.log.Warn("Failed to resolve reply target for new message", "error", err, "message_id", message.ID)
		views = []*domain.MessageView{domain.NewMessageView(message)}
	}
	view := views[0]

	s.publisher.Publish(ctx, groupID, domain.EventNewMessage, view, &senderID)

	if kind == domain.MessageTypeAdminAnnouncement {
		s.recordAudit(ctx, &senderID, domain.ActorRoleAdmin, groupID, domain.AuditEventAnnouncementSent,
			map[string]any{"message_id": message.ID})
	}

	s.log.Debug("Message sent", "message_id", message.ID, "group_id", groupID, "user_id", senderID)
	return view, nil
}

// loadInGroup загружает сообщение и проверяет, что оно принадлежит группе
func (s *messageService) loadInGroup(ctx context.Context, groupID, messageID uuid.UUID) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.GroupID != groupID {
		return nil, apperrors.ErrMessageNotFound
	}
	return message, nil
}

func (s *messageService) EditMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal, content string) (*domain.Message, error) {
	message, err := s.loadInGroup(ctx, groupID, messageID)
	if err != nil {
		return nil, err
	}
	// удаленные и системные сообщения неизменяемы
	if message.IsDeleted || message.MessageType == domain.MessageTypeSystem {
		return nil, apperrors.ErrMessageNotFound
	}
	if !message.IsSentBy(principal.UserID) && !principal.IsAdmin() {
		return nil, apperrors.ErrInsufficientPermissions
	}

	content, err = normalizeContent(content)
	if err != nil {
		return nil, err
	}

	updated, err := s.messageRepo.UpdateContent(ctx, messageID, content)
	if err != nil {
		return nil, err
	}

	actorID := principal.UserID
	s.publisher.Publish(ctx, groupID, domain.EventMessageEdited, updated, &actorID)

	if !message.IsSentBy(principal.UserID) {
		s.recordAudit(ctx, &actorID, domain.ActorRoleAdmin, groupID, domain.AuditEventMessageEdited,
			map[string]any{"message_id": messageID, "sender_id": message.SenderID})
	}

	return updated, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.Message, error) {
	message, err := s.loadInGroup(ctx, groupID, messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsSentBy(principal.UserID) && !principal.IsAdmin() {
		return nil, apperrors.ErrInsufficientPermissions
	}
	// повторное удаление ничего не меняет и событий не порождает
	if message.IsDeleted {
		return message, nil
	}

	moderated := principal.IsAdmin() && message.SenderID != nil && !message.IsSentBy(principal.UserID)

	var (
		deleted *domain.Message
		notice  *domain.Message
		changed bool
	)
	if moderated {
		err = s.messageRepo.WithinTx(ctx, func(tx repository.MessageRepository) error {
			var err error
			if deleted, changed, err = tx.SoftDelete(ctx, messageID); err != nil || !changed {
				return err
			}
			notice = &domain.Message{
				GroupID:     groupID,
				Content:     moderationNotice(principal.Username),
				MessageType: domain.MessageTypeSystem,
			}
			return tx.Create(ctx, notice)
		})
	} else {
		deleted, changed, err = s.messageRepo.SoftDelete(ctx, messageID)
	}
	if err != nil {
		return nil, err
	}
	// сообщение успел удалить параллельный запрос
	if !changed {
		return deleted, nil
	}

	actorID := principal.UserID
	s.publisher.Publish(ctx, groupID, domain.EventMessageDeleted, domain.MessageDeletedEvent{
		ID:        messageID,
		GroupID:   groupID,
		DeletedBy: principal.Username,
	}, &actorID)

	if moderated {
		s.publisher.Publish(ctx, groupID, domain.EventSystemMessage, notice, nil)
		s.recordAudit(ctx, &actorID, domain.ActorRoleAdmin, groupID, domain.AuditEventMessageRemoved,
			map[string]any{"message_id": messageID, "sender_id": message.SenderID, "notice_id": notice.ID})
	}

	return deleted, nil
}

func (s *messageService) TogglePin(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.Message, error) {
	if err := s.access.requireMember(ctx, groupID, principal); err != nil {
		return nil, err
	}
	message, err := s.loadInGroup(ctx, groupID, messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}

	updated, err := s.messageRepo.SetPinned(ctx, messageID, nil, principal.Username)
	if err != nil {
		return nil, err
	}

	actorID := principal.UserID
	s.publisher.Publish(ctx, groupID, domain.EventMessagePinned, domain.MessagePinnedEvent{
		ID:       updated.ID,
		GroupID:  updated.GroupID,
		IsPinned: updated.IsPinned,
		PinnedAt: updated.PinnedAt,
		PinnedBy: updated.PinnedBy,
	}, &actorID)

	return updated, nil
}

func (s *messageService) CreateSystemMessage(ctx context.Context, groupID uuid.UUID, content string) (*domain.Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	exists, err := s.access.directory.GroupExists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrGroupNotFound
	}

	message := &domain.Message{
		GroupID:     groupID,
		Content:     content,
		MessageType: domain.MessageTypeSystem,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, groupID, domain.EventSystemMessage, message, nil)
	s.recordAudit(ctx, nil, domain.ActorRoleSystem, groupID, domain.AuditEventSystemMessage,
		map[string]any{"message_id": message.ID})

	return message, nil
}

func (s *messageService) GetMessage(ctx context.Context, groupID, messageID uuid.UUID, principal domain.Principal) (*domain.MessageView, error) {
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return nil, err
	}
	message, err := s.loadInGroup(ctx, groupID, messageID)
	if err != nil {
		return nil, err
	}
	views, err := buildViews(ctx, s.messageRepo, []*domain.Message{message})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *messageService) ListPinned(ctx context.Context, groupID uuid.UUID, principal domain.Principal) ([]*domain.MessageView, error) {
	if err := s.access.requireRead(ctx, groupID, principal); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.ListPinned(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return buildViews(ctx, s.messageRepo, messages)
}

func (s *messageService) PublishMembershipEvent(ctx context.Context, groupID uuid.UUID, eventType string, data map[string]any) error {
	if eventType != domain.EventUserJoined && eventType != domain.EventUserLeft {
		return fmt.Errorf("%w: unsupported event type %q", apperrors.ErrInvalidInput, eventType)
	}
	exists, err := s.access.directory.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrGroupNotFound
	}

	s.publisher.Publish(ctx, groupID, eventType, data, nil)
	return nil
}

// recordAudit пишет журнал после успешной операции; сбой аудита не отменяет ее
func (s *messageService) recordAudit(ctx context.Context, actorID *uuid.UUID, role string, groupID uuid.UUID, eventType string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, actorID, role, &groupID, eventType, payload); err != nil {
		s.log.Warn("Failed to write audit log", "error", err, "event_type", eventType, "group_id", groupID)
	}
}
