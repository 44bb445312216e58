package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/service"
)

// messageWriter часть kafka.Writer, нужная publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TransactionCompletedPublisher реализует service.CompletionPublisher используя Kafka
type TransactionCompletedPublisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
}

// NewTransactionCompletedPublisher создаёт Kafka publisher событий завершения транзакций
func NewTransactionCompletedPublisher(logger *zap.Logger, brokers []string, topic string) *TransactionCompletedPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // события одной транзакции в одну партицию
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}

	return &TransactionCompletedPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Close закрывает Kafka writer
func (p *TransactionCompletedPublisher) Close() error {
	return p.writer.Close()
}

// PublishTransactionCompleted публикует событие в Kafka; ключ сообщения = transaction_id
func (p *TransactionCompletedPublisher) PublishTransactionCompleted(ctx context.Context, event service.TransactionCompletedEvent) error {
	valueBytes, err := json.Marshal(newPayload(event))
	if err != nil {
		return fmt.Errorf("failed to marshal transaction completed event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: valueBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.Error("failed to publish transaction completed event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("transaction_id", event.TransactionID),
		)
		return err
	}

	p.logger.Info("transaction completed event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", event.Status),
		zap.String("path", event.Path),
	)
	return nil
}

// payload JSON-представление события в топике
type payload struct {
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
	EventVersion      int    `json:"event_version"`
	OccurredAt        string `json:"occurred_at"`
	Path              string `json:"path"`
	TransactionID     string `json:"transaction_id"`
	MerchantSession   string `json:"merchant_session"`
	MerchantReference string `json:"merchant_reference,omitempty"`
	Kind              string `json:"kind"`
	Status            string `json:"status"`
	ErrorCode         int    `json:"error_code"`
	ErrorMessage      string `json:"error_message,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	CardType          string `json:"card_type,omitempty"`
}

func newPayload(e service.TransactionCompletedEvent) payload {
	return payload{
		EventID:           e.EventID,
		EventType:         e.EventType,
		EventVersion:      e.EventVersion,
		OccurredAt:        e.OccurredAt.UTC().Format(time.RFC3339),
		Path:              e.Path,
		TransactionID:     e.TransactionID,
		MerchantSession:   e.MerchantSession,
		MerchantReference: e.MerchantReference,
		Kind:              e.Kind,
		Status:            e.Status,
		ErrorCode:         e.ErrorCode,
		ErrorMessage:      e.ErrorMessage,
		Amount:            e.Amount,
		CardType:          e.CardType,
	}
}

// NoOpPublisher - no-op реализация CompletionPublisher (Kafka не настроена)
type NoOpPublisher struct {
	logger *zap.Logger
}

// NewNoOpPublisher создаёт no-op publisher
func NewNoOpPublisher(logger *zap.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// PublishTransactionCompleted ничего не делает, только логирует
func (p *NoOpPublisher) PublishTransactionCompleted(ctx context.Context, event service.TransactionCompletedEvent) error {
	p.logger.Debug("no-op publisher: event not sent",
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", event.Status),
	)
	return nil
}
