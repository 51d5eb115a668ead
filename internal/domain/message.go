package domain

import (
	"time"

	"github.com/google/uuid"
)

// TombstoneContent подставляется вместо текста удаленного сообщения
const TombstoneContent = "[Message deleted]"

const (
	MessageTypeText              = "text"
	MessageTypeSystem            = "system"
	MessageTypeAnnouncement      = "announcement"
	MessageTypeAdminAnnouncement = "admin_announcement"
)

// IsValidMessageType - допустимые значения message_type
func IsValidMessageType(kind string) bool {
	switch kind {
	case MessageTypeText, MessageTypeSystem, MessageTypeAnnouncement, MessageTypeAdminAnnouncement:
		return true
	}
	return false
}

type Message struct {
	ID             uuid.UUID      `json:"id"`
	GroupID        uuid.UUID      `json:"group_id"`
	SenderID       *uuid.UUID     `json:"sender_id"`
	SenderUsername *string        `json:"sender_username"`
	Content        string         `json:"content"`
	MessageType    string         `json:"message_type"`
	ReplyToID      *uuid.UUID     `json:"reply_to_id"`
	Metadata       map[string]any `json:"metadata"`
	IsEdited       bool           `json:"is_edited"`
	EditedAt       *time.Time     `json:"edited_at"`
	IsDeleted      bool           `json:"is_deleted"`
	IsPinned       bool           `json:"is_pinned"`
	PinnedAt       *time.Time     `json:"pinned_at"`
	PinnedBy       *string        `json:"pinned_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsSentBy - true если сообщение отправлено пользователем userID
func (m *Message) IsSentBy(userID uuid.UUID) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// Clone возвращает независимую копию (metadata копируется поверхностно)
func (m *Message) Clone() *Message {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// MessageView - представление сообщения в ответе API.
// Поля reply_to_* заполняются только при чтении истории и в базе не хранятся.
type MessageView struct {
	*Message
	ReplyToContent  *string `json:"reply_to_content"`
	ReplyToUsername *string `json:"reply_to_username"`
}

func NewMessageView(m *Message) *MessageView {
	return &MessageView{Message: m}
}

// Cursor - граница страницы истории: сообщения строго старше (CreatedAt, ID)
type Cursor struct {
	CreatedAt time.Time
	ID        *uuid.UUID
}

// MessagePage - страница истории в хронологическом порядке
type MessagePage struct {
	Messages   []*MessageView `json:"messages"`
	HasMore    bool           `json:"has_more"`
	NextCursor *string        `json:"next_cursor"`
	NextID     *uuid.UUID     `json:"next_cursor_id,omitempty"`
}
