package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository/memory"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type publishedEvent struct {
	groupID   uuid.UUID
	eventType string
	data      any
	exclude   *uuid.UUID
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, groupID uuid.UUID, eventType string, data any, exclude *uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{groupID: groupID, eventType: eventType, data: data, exclude: exclude})
	return 0
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

func (p *recordingPublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

// now сдвигает время на миллисекунду при каждом вызове
func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	messages  MessageService
	history   HistoryService
	receipts  ReceiptService
	groupID   uuid.UUID
	alice     domain.Principal
	bob       domain.Principal
	admin     domain.Principal
	outsider  domain.Principal
}

func newFixture() *fixture {
	clock := &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clock.now))
	publisher := &recordingPublisher{}
	log := logger.Nop()

	f := &fixture{
		store:     store,
		publisher: publisher,
		groupID:   uuid.New(),
		alice:     domain.Principal{UserID: uuid.New(), Username: "alice", Role: domain.RoleUser},
		bob:       domain.Principal{UserID: uuid.New(), Username: "bob", Role: domain.RoleUser},
		admin:     domain.Principal{UserID: uuid.New(), Username: "admin", Role: domain.RoleAdmin},
		outsider:  domain.Principal{UserID: uuid.New(), Username: "eve", Role: domain.RoleUser},
	}

	store.AddGroup(f.groupID, false)
	store.AddMember(f.groupID, f.alice.UserID)
	store.AddMember(f.groupID, f.bob.UserID)
	store.AddMember(f.groupID, f.admin.UserID)

	audit := NewAuditService(store, log)
	f.messages = NewMessageService(store, store, publisher, audit, log)
	f.history = NewHistoryService(store, store, log)
	f.receipts = NewReceiptService(store, store, log)
	return f
}

func (f *fixture) send(p domain.Principal, content string) *domain.MessageView {
	view, err := f.messages.SendMessage(context.Background(), f.groupID, p, SendInput{Content: content})
	if err != nil {
		panic(err)
	}
	return view
}
