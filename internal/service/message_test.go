package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
)

func TestSendMessageEmitsNewMessageExcludingSender(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.messages.SendMessage(ctx, f.groupID, f.alice, SendInput{Content: "  hi  "})
	require.NoError(t, err)
	assert.Equal(t, "hi", view.Content)
	assert.Equal(t, domain.MessageTypeText, view.MessageType)
	require.NotNil(t, view.SenderUsername)
	assert.Equal(t, "alice", *view.SenderUsername)

	require.Equal(t, []string{domain.EventNewMessage}, f.publisher.types())
	event := f.publisher.last()
	assert.Equal(t, f.groupID, event.groupID)
	require.NotNil(t, event.exclude)
	assert.Equal(t, f.alice.UserID, *event.exclude)
}

func TestSendAdminAnnouncementRequiresAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.messages.SendMessage(ctx, f.groupID, f.alice, SendInput{
		Content:     "attention",
		MessageType: domain.MessageTypeAdminAnnouncement,
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)
	assert.Empty(t, f.publisher.types())

	list, err := f.store.ListByGroup(ctx, f.groupID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.messages.SendMessage(ctx, f.groupID, f.admin, SendInput{
		Content:     "attention",
		MessageType: domain.MessageTypeAdminAnnouncement,
	})
	require.NoError(t, err)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditEventAnnouncementSent, logs[0].EventType)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name      string
		principal domain.Principal
		input     SendInput
		want      error
	}{
		{"non member", f.outsider, SendInput{Content: "hi"}, apperrors.ErrNotAMember},
		{"empty content", f.alice, SendInput{Content: "   "}, apperrors.ErrInvalidInput},
		{"unknown kind", f.alice, SendInput{Content: "hi", MessageType: "sticker"}, apperrors.ErrInvalidInput},
		{"system kind", f.admin, SendInput{Content: "hi", MessageType: domain.MessageTypeSystem}, apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.SendMessage(ctx, f.groupID, tt.principal, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.publisher.types())
}

func TestSendReplyResolvesParent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	parent := f.send(f.bob, "question")

	reply, err := f.messages.SendMessage(ctx, f.groupID, f.alice, SendInput{Content: "answer", ReplyToID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToContent)
	assert.Equal(t, "question", *reply.ReplyToContent)
	assert.Equal(t, "bob", *reply.ReplyToUsername)

	missing := uuid.New()
	_, err = f.messages.SendMessage(ctx, f.groupID, f.alice, SendInput{Content: "x", ReplyToID: &missing})
	assert.ErrorIs(t, err, apperrors.ErrReplyTargetNotFound)
}

func TestSendMessageStorageFailure(t *testing.T) {
	f := newFixture()
	f.store.SetFailure(apperrors.ErrStorageExhausted)

	_, err := f.messages.SendMessage(context.Background(), f.groupID, f.alice, SendInput{Content: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrStorageExhausted)
	assert.Empty(t, f.publisher.types())
}

func TestEditMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.alice, "draft")

	_, err := f.messages.EditMessage(ctx, f.groupID, m.ID, f.bob, "hijack")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	edited, err := f.messages.EditMessage(ctx, f.groupID, m.ID, f.alice, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, domain.EventMessageEdited, f.publisher.last().eventType)
	assert.Equal(t, f.alice.UserID, *f.publisher.last().exclude)

	_, err = f.messages.EditMessage(ctx, f.groupID, m.ID, f.admin, "moderated")
	require.NoError(t, err)
	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditEventMessageEdited, logs[0].EventType)

	_, err = f.messages.EditMessage(ctx, f.groupID, m.ID, f.alice, "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.messages.EditMessage(ctx, uuid.New(), m.ID, f.alice, "wrong group")
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestEditDeletedMessageAlwaysNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.alice, "soon gone")

	_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)

	for _, p := range []domain.Principal{f.alice, f.bob, f.admin} {
		_, err := f.messages.EditMessage(ctx, f.groupID, m.ID, p, "again")
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound, p.Username)
	}
}

func TestEditSystemMessageNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sys, err := f.messages.CreateSystemMessage(ctx, f.groupID, "alice joined")
	require.NoError(t, err)

	_, err = f.messages.EditMessage(ctx, f.groupID, sys.ID, f.admin, "rewritten")
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestDeleteByAuthor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.alice, "oops")

	_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.bob)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	deleted, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	event := f.publisher.last()
	assert.Equal(t, domain.EventMessageDeleted, event.eventType)
	payload, ok := event.data.(domain.MessageDeletedEvent)
	require.True(t, ok)
	assert.Equal(t, m.ID, payload.ID)
	assert.Equal(t, "alice", payload.DeletedBy)

	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, domain.TombstoneContent, got.Content)

	// повторное удаление без новых событий
	eventsBefore := len(f.publisher.types())
	_, err = f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)
	assert.Len(t, f.publisher.types(), eventsBefore)

	_, err = f.messages.DeleteMessage(ctx, f.groupID, uuid.New(), f.alice)
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestAdminDeleteCreatesModerationNotice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.bob, "spam")

	_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.admin)
	require.NoError(t, err)

	assert.Equal(t, []string{domain.EventNewMessage, domain.EventMessageDeleted, domain.EventSystemMessage}, f.publisher.types())
	notice, ok := f.publisher.last().data.(*domain.Message)
	require.True(t, ok)
	assert.Equal(t, domain.MessageTypeSystem, notice.MessageType)
	assert.Equal(t, "A message was removed by admin", notice.Content)
	assert.Nil(t, notice.SenderID)
	assert.Nil(t, f.publisher.last().exclude)

	list, err := f.store.ListByGroup(ctx, f.groupID, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, notice.ID, list[0].ID)
	assert.True(t, list[1].IsDeleted)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditEventMessageRemoved, logs[0].EventType)
}

func TestAdminDeleteRollsBackOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.bob, "spam")

	f.store.SetFailure(apperrors.ErrStorageUnavailable)
	_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.admin)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	f.store.SetFailure(nil)

	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)
	assert.Equal(t, []string{domain.EventNewMessage}, f.publisher.types())
}

func TestConcurrentAdminDeletesLeaveSingleNotice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.bob, "spam")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.admin)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.store.ListByGroup(ctx, f.groupID, nil, 100)
	require.NoError(t, err)
	notices := 0
	for _, msg := range list {
		if msg.MessageType == domain.MessageTypeSystem {
			notices++
		}
	}
	assert.Equal(t, 1, notices)

	assert.Equal(t, []string{domain.EventNewMessage, domain.EventMessageDeleted, domain.EventSystemMessage}, f.publisher.types())
	assert.Len(t, f.store.AuditLogs(), 1)
}

func TestPinRacingDeleteNeverPinsTombstone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		m := f.send(f.alice, "contested")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.messages.TogglePin(ctx, f.groupID, m.ID, f.bob)
			if err != nil {
				assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
			}
		}()
		wg.Wait()

		// закрепление после удаления невозможно
		_, err := f.messages.TogglePin(ctx, f.groupID, m.ID, f.bob)
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
		_, err = f.store.SetPinned(ctx, m.ID, nil, "bob")
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
	}
}

func TestAdminDeletingOwnMessageIsNotModeration(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.admin, "mine")

	_, err := f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.EventNewMessage, domain.EventMessageDeleted}, f.publisher.types())
	assert.Empty(t, f.store.AuditLogs())
}

func TestTogglePin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.alice, "pin me")

	_, err := f.messages.TogglePin(ctx, f.groupID, m.ID, f.outsider)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)

	pinned, err := f.messages.TogglePin(ctx, f.groupID, m.ID, f.bob)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
	assert.Equal(t, "bob", *pinned.PinnedBy)

	event := f.publisher.last()
	assert.Equal(t, domain.EventMessagePinned, event.eventType)
	payload := event.data.(domain.MessagePinnedEvent)
	assert.True(t, payload.IsPinned)

	list, err := f.messages.ListPinned(ctx, f.groupID, f.alice)
	require.NoError(t, err)
	require.Len(t, list, 1)

	unpinned, err := f.messages.TogglePin(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
	assert.Nil(t, unpinned.PinnedBy)

	_, err = f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)
	_, err = f.messages.TogglePin(ctx, f.groupID, m.ID, f.alice)
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestCreateSystemMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.messages.CreateSystemMessage(ctx, uuid.New(), "hello")
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)

	m, err := f.messages.CreateSystemMessage(ctx, f.groupID, "bob joined the group")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeSystem, m.MessageType)
	assert.Nil(t, m.SenderID)
	assert.Equal(t, domain.EventSystemMessage, f.publisher.last().eventType)
	assert.Nil(t, f.publisher.last().exclude)
}

func TestGetMessageAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.send(f.alice, "hello")

	_, err := f.messages.GetMessage(ctx, f.groupID, m.ID, f.outsider)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)

	got, err := f.messages.GetMessage(ctx, f.groupID, m.ID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// администратор читает без членства
	f.store.RemoveMember(f.groupID, f.admin.UserID)
	_, err = f.messages.GetMessage(ctx, f.groupID, m.ID, f.admin)
	assert.NoError(t, err)

	_, err = f.messages.DeleteMessage(ctx, f.groupID, m.ID, f.alice)
	require.NoError(t, err)
	got, err = f.messages.GetMessage(ctx, f.groupID, m.ID, f.bob)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, domain.TombstoneContent, got.Content)
}

func TestPublishMembershipEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.messages.PublishMembershipEvent(ctx, f.groupID, domain.EventUserJoined, map[string]any{"username": "carol"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventUserJoined, f.publisher.last().eventType)

	err = f.messages.PublishMembershipEvent(ctx, f.groupID, domain.EventNewMessage, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = f.messages.PublishMembershipEvent(ctx, uuid.New(), domain.EventUserLeft, nil)
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)
}
