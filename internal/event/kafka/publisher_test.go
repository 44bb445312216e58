package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/service"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestTransactionCompletedPublisher(t *testing.T) {
	ctx := context.Background()
	event := service.TransactionCompletedEvent{
		EventID:         "evt-1",
		EventType:       "paystation.transaction.completed",
		EventVersion:    1,
		OccurredAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Path:            service.PathPush,
		TransactionID:   "T1",
		MerchantSession: "S1",
		Kind:            "purchase",
		Status:          "resolved",
		ErrorCode:       0,
		Amount:          1000,
	}

	t.Run("message is keyed by transaction id", func(t *testing.T) {
		w := &fakeWriter{}
		p := &TransactionCompletedPublisher{logger: zap.NewNop(), writer: w, topic: "paystation.transaction.completed"}

		require.NoError(t, p.PublishTransactionCompleted(ctx, event))
		require.Len(t, w.messages, 1)
		assert.Equal(t, "T1", string(w.messages[0].Key))

		var got map[string]any
		require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
		assert.Equal(t, "evt-1", got["event_id"])
		assert.Equal(t, "push", got["path"])
		assert.Equal(t, "2026-01-02T03:04:05Z", got["occurred_at"])
		assert.Equal(t, float64(0), got["error_code"])
		assert.Equal(t, float64(1000), got["amount"])
	})

	t.Run("writer error is returned", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		p := &TransactionCompletedPublisher{logger: zap.NewNop(), writer: w, topic: "t"}

		require.Error(t, p.PublishTransactionCompleted(ctx, event))
	})

	t.Run("no-op publisher", func(t *testing.T) {
		require.NoError(t, NewNoOpPublisher(zap.NewNop()).PublishTransactionCompleted(ctx, event))
	})
}
