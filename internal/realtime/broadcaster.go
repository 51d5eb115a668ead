package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// Publisher - то, что нужно сервисам от рассылки
type Publisher interface {
	Publish(ctx context.Context, groupID uuid.UUID, eventType string, data any, exclude *uuid.UUID) int
}

type Broadcaster struct {
	registry *Registry
	metrics  *Metrics
	mirror   Mirror
	log      logger.Logger
}

type BroadcasterOption func(*Broadcaster)

func WithMetrics(m *Metrics) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

func WithMirror(m Mirror) BroadcasterOption {
	return func(b *Broadcaster) { b.mirror = m }
}

func NewBroadcaster(registry *Registry, log logger.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{registry: registry, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Encode сериализует событие в конверт {type, data, timestamp}
func Encode(eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(domain.NewEnvelope(eventType, data))
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return payload, nil
}

// Publish отправляет событие всем соединениям группы, кроме exclude.
// Отправки идут параллельно, сбой одного адресата не влияет на остальных.
// Соединение с неудачной доставкой удаляется из реестра и закрывается,
// чтобы клиент переподключился. Возвращает число успешных доставок.
func (b *Broadcaster) Publish(ctx context.Context, groupID uuid.UUID, eventType string, data any, exclude *uuid.UUID) int {
	payload, err := Encode(eventType, data)
	if err != nil {
		b.log.Error("Failed to encode event", "error", err, "group_id", groupID)
		return 0
	}
	b.metrics.observeEvent(eventType)

	if b.mirror != nil {
		b.mirror.Mirror(ctx, groupID, eventType, payload)
	}

	entries := b.registry.Snapshot(groupID)
	if len(entries) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, e := range entries {
		if exclude != nil && e.UserID == *exclude {
			continue
		}
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			if err := e.Conn.Send(payload); err != nil {
				b.metrics.observeDelivery(deliveryFailed)
				if b.registry.Remove(groupID, e.UserID, e.Conn) {
					b.metrics.observePruned()
					if c, ok := e.Conn.(Closer); ok {
						c.Close(websocket.CloseTryAgainLater, "delivery failed")
					}
				}
				b.log.Warn("Dropping connection after failed delivery",
					"error", err, "group_id", groupID, "user_id", e.UserID, "event", eventType)
				return
			}
			b.metrics.observeDelivery(deliveryOK)
			mu.Lock()
			delivered++
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	return delivered
}

// SendTo доставляет событие одному соединению (ответ инициатору, ошибки)
func SendTo(conn Conn, eventType string, data any) error {
	payload, err := Encode(eventType, data)
	if err != nil {
		return err
	}
	return conn.Send(payload)
}
