package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventMessagePinned  = "message_pinned"
	EventSystemMessage  = "system_message"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventTyping         = "typing"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventError          = "error"
)

// Envelope - формат события в push-канале
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

type MessageDeletedEvent struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	DeletedBy string    `json:"deleted_by"`
}

type MessagePinnedEvent struct {
	ID       uuid.UUID  `json:"id"`
	GroupID  uuid.UUID  `json:"group_id"`
	IsPinned bool       `json:"is_pinned"`
	PinnedAt *time.Time `json:"pinned_at"`
	PinnedBy *string    `json:"pinned_by"`
}

type PresenceEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	GroupID  uuid.UUID `json:"group_id"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
