package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID          int64          `json:"id"`
	EventTime   time.Time      `json:"event_time"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	ActorRole   string         `json:"actor_role"`
	GroupID     *uuid.UUID     `json:"group_id,omitempty"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload"`
}

const (
	ActorRoleUser   = "user"
	ActorRoleAdmin  = "admin"
	ActorRoleSystem = "system"
)

const (
	AuditEventMessageRemoved   = "MESSAGE_REMOVED_BY_ADMIN"
	AuditEventMessageEdited    = "MESSAGE_EDITED_BY_ADMIN"
	AuditEventSystemMessage    = "SYSTEM_MESSAGE_CREATED"
	AuditEventAnnouncementSent = "ADMIN_ANNOUNCEMENT_SENT"
)
