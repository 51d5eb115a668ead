package handler

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faltrading/FAL-chat-service/internal/domain"
)

func TestSendAndListMessages(t *testing.T) {
	env := newTestEnv(t)

	first := env.sendMessage(env.alice, "hello")
	second := env.sendMessage(env.bob, "hi alice")
	assert.Equal(t, "alice", *first.SenderUsername)
	assert.Equal(t, domain.MessageTypeText, first.MessageType)

	rec := env.request(http.MethodGet, env.messagesPath(env.groupID), &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page domain.MessagePage
	decode(t, rec, &page)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, first.ID, page.Messages[0].ID)
	assert.Equal(t, second.ID, page.Messages[1].ID)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestListMessagesCursor(t *testing.T) {
	env := newTestEnv(t)

	var ids []uuid.UUID
	for _, content := range []string{"a", "b", "c"} {
		ids = append(ids, env.sendMessage(env.alice, content).ID)
	}

	rec := env.request(http.MethodGet, env.messagesPath(env.groupID)+"?limit=2", &env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.MessagePage
	decode(t, rec, &page)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	require.NotNil(t, page.NextID)
	assert.Equal(t, ids[1], page.Messages[0].ID)

	query := url.Values{}
	query.Set("limit", "2")
	query.Set("before", *page.NextCursor)
	query.Set("before_id", page.NextID.String())
	rec = env.request(http.MethodGet, env.messagesPath(env.groupID)+"?"+query.Encode(), &env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var older domain.MessagePage
	decode(t, rec, &older)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, ids[0], older.Messages[0].ID)
	assert.False(t, older.HasMore)
}

func TestListMessagesQueryValidation(t *testing.T) {
	env := newTestEnv(t)
	env.sendMessage(env.alice, "a")
	env.sendMessage(env.alice, "b")

	// limit вне диапазона прижимается к границам
	rec := env.request(http.MethodGet, env.messagesPath(env.groupID)+"?limit=0", &env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.MessagePage
	decode(t, rec, &page)
	assert.Len(t, page.Messages, 1)
	assert.True(t, page.HasMore)

	for _, query := range []string{"?limit=abc", "?before=yesterday", "?before=2024-01-01T00:00:00Z&before_id=nope"} {
		rec = env.request(http.MethodGet, env.messagesPath(env.groupID)+query, &env.alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPost, env.messagesPath(env.groupID), nil, gin.H{"content": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(http.MethodPost, env.messagesPath(env.groupID), &env.alice, gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodPost, env.messagesPath(env.groupID), &env.alice, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodPost, env.messagesPath(env.groupID), &env.alice, gin.H{"content": "x", "message_type": "system"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodPost, "/api/v1/chat/groups/not-a-uuid/messages", &env.alice, gin.H{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodPost, env.messagesPath(env.groupID), &env.outsider, gin.H{"content": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	missing := uuid.New()
	rec = env.request(http.MethodPost, env.messagesPath(env.groupID), &env.alice, gin.H{"content": "x", "reply_to_id": missing})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditAndDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	msg := env.sendMessage(env.alice, "draft")
	path := env.messagesPath(env.groupID) + "/" + msg.ID.String()

	rec := env.request(http.MethodPut, path, &env.bob, gin.H{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(http.MethodPut, path, &env.alice, gin.H{"content": "final"})
	require.Equal(t, http.StatusOK, rec.Code)
	var edited domain.Message
	decode(t, rec, &edited)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)

	rec = env.request(http.MethodDelete, path, &env.bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(http.MethodDelete, path, &env.alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// повторное удаление не ошибка
	rec = env.request(http.MethodDelete, path, &env.alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(http.MethodGet, path, &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view domain.MessageView
	decode(t, rec, &view)
	assert.True(t, view.IsDeleted)

	rec = env.request(http.MethodPut, path, &env.alice, gin.H{"content": "again"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageScopedToGroup(t *testing.T) {
	env := newTestEnv(t)
	msg := env.sendMessage(env.alice, "mine")

	other := uuid.New()
	env.store.AddGroup(other, false)
	env.store.AddMember(other, env.alice.ID)

	rec := env.request(http.MethodGet, env.messagesPath(other)+"/"+msg.ID.String(), &env.alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteLeavesNotice(t *testing.T) {
	env := newTestEnv(t)
	msg := env.sendMessage(env.alice, "spam")

	rec := env.request(http.MethodDelete, env.messagesPath(env.groupID)+"/"+msg.ID.String(), &env.admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(http.MethodGet, env.messagesPath(env.groupID), &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.MessagePage
	decode(t, rec, &page)
	require.Len(t, page.Messages, 2)
	notice := page.Messages[1]
	assert.Equal(t, domain.MessageTypeSystem, notice.MessageType)
	assert.Equal(t, "A message was removed by root", notice.Content)
	assert.Nil(t, notice.SenderID)

	require.Len(t, env.store.AuditLogs(), 1)
	assert.Equal(t, domain.AuditEventMessageRemoved, env.store.AuditLogs()[0].EventType)
}

func TestReadReceiptsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := env.sendMessage(env.alice, "a")
	env.sendMessage(env.alice, "b")

	countPath := env.messagesPath(env.groupID) + "/unread/count"
	rec := env.request(http.MethodGet, countPath, &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count struct {
		UnreadCount int `json:"unread_count"`
	}
	decode(t, rec, &count)
	assert.Equal(t, 2, count.UnreadCount)

	readPath := env.messagesPath(env.groupID) + "/read"
	body := gin.H{"message_ids": []uuid.UUID{a.ID, a.ID}}
	rec = env.request(http.MethodPost, readPath, &env.bob, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var marked struct {
		Marked int `json:"marked"`
	}
	decode(t, rec, &marked)
	assert.Equal(t, 1, marked.Marked)

	rec = env.request(http.MethodPost, readPath, &env.bob, body)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &marked)
	assert.Equal(t, 0, marked.Marked)

	rec = env.request(http.MethodGet, countPath, &env.bob, nil)
	decode(t, rec, &count)
	assert.Equal(t, 1, count.UnreadCount)

	rec = env.request(http.MethodGet, countPath, &env.outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTogglePinEndpoints(t *testing.T) {
	env := newTestEnv(t)
	msg := env.sendMessage(env.alice, "important")
	pinPath := env.messagesPath(env.groupID) + "/" + msg.ID.String() + "/pin"

	rec := env.request(http.MethodPost, pinPath, &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pinned domain.Message
	decode(t, rec, &pinned)
	assert.True(t, pinned.IsPinned)
	require.NotNil(t, pinned.PinnedBy)
	assert.Equal(t, "bob", *pinned.PinnedBy)

	rec = env.request(http.MethodGet, env.messagesPath(env.groupID)+"/pinned", &env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Messages []domain.MessageView `json:"messages"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, msg.ID, list.Messages[0].ID)

	rec = env.request(http.MethodPost, pinPath, &env.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pinned)
	assert.False(t, pinned.IsPinned)

	rec = env.request(http.MethodPost, pinPath, &env.outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDefaultGroupReadableByEveryone(t *testing.T) {
	env := newTestEnv(t)
	lobby := uuid.New()
	env.store.AddGroup(lobby, true)

	rec := env.request(http.MethodGet, env.messagesPath(lobby), &env.outsider, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodPost, env.messagesPath(lobby), &env.outsider, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOnlineWithoutRedis(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/api/v1/chat/groups/"+env.groupID.String()+"/online", &env.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		UserIDs []uuid.UUID `json:"user_ids"`
	}
	decode(t, rec, &body)
	assert.Empty(t, body.UserIDs)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}
