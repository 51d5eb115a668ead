package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
)

// buildViews строит представления страницы и заполняет поля reply_to_*.
// Родители, которых нет на странице, загружаются одним запросом.
// Исходные сообщения не изменяются.
func buildViews(ctx context.Context, repo repository.MessageRepository, messages []*domain.Message) ([]*domain.MessageView, error) {
	byID := make(map[uuid.UUID]*domain.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}

	var missing []uuid.UUID
	requested := make(map[uuid.UUID]struct{})
	for _, m := range messages {
		if m.ReplyToID == nil {
			continue
		}
		id := *m.ReplyToID
		if _, ok := byID[id]; ok {
			continue
		}
		if _, ok := requested[id]; ok {
			continue
		}
		requested[id] = struct{}{}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		parents, err := repo.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			byID[p.ID] = p
		}
	}

	views := make([]*domain.MessageView, 0, len(messages))
	for _, m := range messages {
		view := domain.NewMessageView(m)
		if m.ReplyToID != nil {
			if parent, ok := byID[*m.ReplyToID]; ok {
				content := parent.Content
				if parent.IsDeleted {
					content = domain.TombstoneContent
				}
				view.ReplyToContent = &content
				view.ReplyToUsername = parent.SenderUsername
			}
		}
		views = append(views, view)
	}
	return views, nil
}
