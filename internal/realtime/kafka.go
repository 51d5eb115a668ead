package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// Mirror получает копию каждого опубликованного события
type Mirror interface {
	Mirror(ctx context.Context, groupID uuid.UUID, eventType string, payload []byte)
}

// KafkaMirror публикует события в Kafka для внешних потребителей.
// Ключ сообщения - id группы, порядок событий группы сохраняется в партиции.
type KafkaMirror struct {
	writer *kafka.Writer
	log    logger.Logger
}

func NewKafkaMirror(brokers []string, topic string, log logger.Logger) *KafkaMirror {
	m := &KafkaMirror{log: log}
	m.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				m.log.Error("Failed to mirror events to Kafka", "error", err, "count", len(messages))
			}
		},
	}
	return m
}

func (m *KafkaMirror) Mirror(ctx context.Context, groupID uuid.UUID, eventType string, payload []byte) {
	err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(groupID.String()),
		Value:   payload,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	})
	if err != nil {
		m.log.Error("Failed to enqueue event for Kafka", "error", err, "group_id", groupID)
	}
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
