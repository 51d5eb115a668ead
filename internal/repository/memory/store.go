// Package memory - хранилище чата в памяти процесса.
// Используется при DATABASE_DRIVER=memory и в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
)

type receiptKey struct {
	messageID uuid.UUID
	userID    uuid.UUID
}

type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	failure  error
	messages map[uuid.UUID]*domain.Message
	byGroup  map[uuid.UUID][]uuid.UUID
	receipts map[receiptKey]time.Time
	groups   map[uuid.UUID]bool
	members  map[uuid.UUID]map[uuid.UUID]struct{}
	audit    []*domain.AuditLog
}

type Option func(*Store)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:      func() time.Time { return time.Now().UTC() },
		messages: make(map[uuid.UUID]*domain.Message),
		byGroup:  make(map[uuid.UUID][]uuid.UUID),
		receipts: make(map[receiptKey]time.Time),
		groups:   make(map[uuid.UUID]bool),
		members:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories возвращает набор репозиториев поверх хранилища.
// Presence и rate limit берутся из Redis-реализаций, при nil клиенте это no-op.
func (s *Store) Repositories(presence repository.PresenceRepository, rateLimit repository.RateLimitRepository) *repository.Repositories {
	return &repository.Repositories{
		Message:     s,
		ReadReceipt: s,
		Directory:   s,
		Audit:       s,
		Presence:    presence,
		RateLimit:   rateLimit,
	}
}

// AddGroup регистрирует группу. Группы создает внешний сервис.
func (s *Store) AddGroup(groupID uuid.UUID, isDefault bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupID] = isDefault
	if _, ok := s.members[groupID]; !ok {
		s.members[groupID] = make(map[uuid.UUID]struct{})
	}
}

func (s *Store) AddMember(groupID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[groupID]; !ok {
		s.members[groupID] = make(map[uuid.UUID]struct{})
	}
	s.members[groupID][userID] = struct{}{}
}

func (s *Store) RemoveMember(groupID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
}

// SetFailure заставляет все операции записи возвращать err (nil снимает сбой)
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// AuditLogs возвращает копию журнала аудита
func (s *Store) AuditLogs() []*domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

// --- MessageRepository ---

func (s *Store) Create(ctx context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(message, nil)
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByID(id)
}

func (s *Store) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByIDs(ids), nil
}

func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateContent(id, content, nil)
}

func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDelete(id, nil)
}

func (s *Store) SetPinned(ctx context.Context, id uuid.UUID, pinned *bool, by string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPinned(id, pinned, by, nil)
}

func (s *Store) ListByGroup(ctx context.Context, groupID uuid.UUID, before *domain.Cursor, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listByGroup(groupID, before, limit), nil
}

func (s *Store) ListPinned(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPinned(groupID), nil
}

// WithinTx держит блокировку хранилища на время fn.
// Записи делаются copy-on-write, откат восстанавливает прежние версии.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.MessageRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{store: s, undo: make(map[uuid.UUID]*domain.Message)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// --- ReadReceiptRepository ---

func (s *Store) MarkRead(ctx context.Context, groupID, userID uuid.UUID, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, s.failure
	}

	now := s.now()
	receipts := []*domain.ReadReceipt{}
	for _, id := range messageIDs {
		if m, ok := s.messages[id]; !ok || m.GroupID != groupID {
			continue
		}
		key := receiptKey{messageID: id, userID: userID}
		if _, ok := s.receipts[key]; ok {
			continue
		}
		s.receipts[key] = now
		receipts = append(receipts, &domain.ReadReceipt{MessageID: id, UserID: userID, ReadAt: now})
	}
	return receipts, nil
}

func (s *Store) UnreadCount(ctx context.Context, groupID, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byGroup[groupID] {
		if s.messages[id].IsDeleted {
			continue
		}
		if _, ok := s.receipts[receiptKey{messageID: id, userID: userID}]; !ok {
			count++
		}
	}
	return count, nil
}

// --- DirectoryRepository ---

func (s *Store) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[groupID]
	return ok, nil
}

func (s *Store) IsDefaultGroup(ctx context.Context, groupID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	isDefault, ok := s.groups[groupID]
	if !ok {
		return false, apperrors.ErrGroupNotFound
	}
	return isDefault, nil
}

func (s *Store) MemberExists(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

// --- AuditRepository ---

func (s *Store) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	auditLog.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, auditLog)
	return nil
}

// --- операции под блокировкой ---

// put сохраняет новую версию и запоминает прежнюю для отката
func (s *Store) put(m *domain.Message, undo map[uuid.UUID]*domain.Message) {
	if undo != nil {
		if _, seen := undo[m.ID]; !seen {
			undo[m.ID] = s.messages[m.ID]
		}
	}
	s.messages[m.ID] = m
}

func (s *Store) create(message *domain.Message, undo map[uuid.UUID]*domain.Message) error {
	if s.failure != nil {
		return s.failure
	}
	if message.ReplyToID != nil {
		parent, ok := s.messages[*message.ReplyToID]
		if !ok || parent.GroupID != message.GroupID {
			return apperrors.ErrReplyTargetNotFound
		}
	}
	if message.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		message.ID = id
	}
	if message.Metadata == nil {
		message.Metadata = map[string]any{}
	}
	now := s.now()
	message.CreatedAt = now
	message.UpdatedAt = now

	s.put(message.Clone(), undo)
	s.byGroup[message.GroupID] = append(s.byGroup[message.GroupID], message.ID)
	return nil
}

func (s *Store) getByID(id uuid.UUID) (*domain.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (s *Store) getByIDs(ids []uuid.UUID) []*domain.Message {
	var out []*domain.Message
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

func (s *Store) updateContent(id uuid.UUID, content string, undo map[uuid.UUID]*domain.Message) (*domain.Message, error) {
	if s.failure != nil {
		return nil, s.failure
	}
	current, ok := s.messages[id]
	if !ok || current.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}
	now := s.now()
	next := current.Clone()
	next.Content = content
	next.IsEdited = true
	next.EditedAt = &now
	next.UpdatedAt = now
	s.put(next, undo)
	return next.Clone(), nil
}

func (s *Store) softDelete(id uuid.UUID, undo map[uuid.UUID]*domain.Message) (*domain.Message, bool, error) {
	if s.failure != nil {
		return nil, false, s.failure
	}
	current, ok := s.messages[id]
	if !ok {
		return nil, false, apperrors.ErrMessageNotFound
	}
	if current.IsDeleted {
		return current.Clone(), false, nil
	}
	next := current.Clone()
	next.Content = domain.TombstoneContent
	next.IsDeleted = true
	next.UpdatedAt = s.now()
	s.put(next, undo)
	return next.Clone(), true, nil
}

func (s *Store) setPinned(id uuid.UUID, pinned *bool, by string, undo map[uuid.UUID]*domain.Message) (*domain.Message, error) {
	if s.failure != nil {
		return nil, s.failure
	}
	current, ok := s.messages[id]
	if !ok || current.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}
	target := !current.IsPinned
	if pinned != nil {
		target = *pinned
	}
	now := s.now()
	next := current.Clone()
	next.IsPinned = target
	if target {
		next.PinnedAt = &now
		next.PinnedBy = &by
	} else {
		next.PinnedAt = nil
		next.PinnedBy = nil
	}
	next.UpdatedAt = now
	s.put(next, undo)
	return next.Clone(), nil
}

// newer - порядок (created_at, id) по убыванию
func newer(a, b *domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func olderThan(m *domain.Message, c *domain.Cursor) bool {
	if c == nil {
		return true
	}
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return c.ID != nil && m.CreatedAt.Equal(c.CreatedAt) && m.ID.String() < c.ID.String()
}

func (s *Store) listByGroup(groupID uuid.UUID, before *domain.Cursor, limit int) []*domain.Message {
	var out []*domain.Message
	for _, id := range s.byGroup[groupID] {
		if m := s.messages[id]; olderThan(m, before) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) listPinned(groupID uuid.UUID) []*domain.Message {
	var out []*domain.Message
	for _, id := range s.byGroup[groupID] {
		if m := s.messages[id]; m.IsPinned && !m.IsDeleted {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PinnedAt.Equal(*out[j].PinnedAt) {
			return out[i].PinnedAt.After(*out[j].PinnedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

var (
	_ repository.MessageRepository     = (*Store)(nil)
	_ repository.ReadReceiptRepository = (*Store)(nil)
	_ repository.DirectoryRepository   = (*Store)(nil)
	_ repository.AuditRepository       = (*Store)(nil)
)
