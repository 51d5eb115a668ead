package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
)

// txStore работает с данными Store, блокировка которого уже удерживается WithinTx
type txStore struct {
	store *Store
	undo  map[uuid.UUID]*domain.Message
}

func (t *txStore) Create(ctx context.Context, message *domain.Message) error {
	return t.store.create(message, t.undo)
}

func (t *txStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return t.store.getByID(id)
}

func (t *txStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Message, error) {
	return t.store.getByIDs(ids), nil
}

func (t *txStore) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*domain.Message, error) {
	return t.store.updateContent(id, content, t.undo)
}

func (t *txStore) SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Message, bool, error) {
	return t.store.softDelete(id, t.undo)
}

func (t *txStore) SetPinned(ctx context.Context, id uuid.UUID, pinned *bool, by string) (*domain.Message, error) {
	return t.store.setPinned(id, pinned, by, t.undo)
}

func (t *txStore) ListByGroup(ctx context.Context, groupID uuid.UUID, before *domain.Cursor, limit int) ([]*domain.Message, error) {
	return t.store.listByGroup(groupID, before, limit), nil
}

func (t *txStore) ListPinned(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error) {
	return t.store.listPinned(groupID), nil
}

// WithinTx внутри транзакции просто выполняет fn
func (t *txStore) WithinTx(ctx context.Context, fn func(repository.MessageRepository) error) error {
	return fn(t)
}

func (t *txStore) rollback() {
	s := t.store
	for id, prev := range t.undo {
		if prev != nil {
			s.messages[id] = prev
			continue
		}
		created := s.messages[id]
		delete(s.messages, id)
		if created == nil {
			continue
		}
		ids := s.byGroup[created.GroupID]
		for i := range ids {
			if ids[i] == id {
				s.byGroup[created.GroupID] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
	}
}
