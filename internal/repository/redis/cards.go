package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// CardStore хранит карты в памяти и зеркалит их в Redis hash (token -> JSON карты).
// После каждого изменения hash переписывается целиком (DEL + HSET в одной транзакции).
type CardStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger

	mu    sync.RWMutex
	cards map[string]repository.CardToken
}

// NewCardStore загружает карты из hash key
func NewCardStore(ctx context.Context, client *redis.Client, key string, logger *zap.Logger) (*CardStore, error) {
	s := &CardStore{
		client: client,
		key:    key,
		logger: logger,
		cards:  make(map[string]repository.CardToken),
	}

	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cards hash: %w", err)
	}
	for token, raw := range fields {
		var card repository.CardToken
		if err := json.Unmarshal([]byte(raw), &card); err != nil {
			logger.Warn("skipping malformed card in redis",
				zap.String("key", key),
				zap.String("token", token),
				zap.Error(err),
			)
			continue
		}
		card.Token = token
		s.cards[token] = card
	}

	logger.Info("cards loaded from redis", zap.String("key", key), zap.Int("count", len(s.cards)))
	return s, nil
}

// Save сохраняет карту и переписывает hash
func (s *CardStore) Save(ctx context.Context, card repository.CardToken) error {
	if card.Token == "" || card.MaskedCardNumber == "" || card.Expiry == "" {
		return fmt.Errorf("%w: token, masked card number and expiry are required", repository.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.Token] = card
	s.flushLocked(ctx)
	return nil
}

// Delete удаляет карту; отсутствующий токен не ошибка
func (s *CardStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[token]; !ok {
		return nil
	}
	delete(s.cards, token)
	s.flushLocked(ctx)
	return nil
}

// Get возвращает карту по токену
func (s *CardStore) Get(ctx context.Context, token string) (repository.CardToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[token]
	if !ok {
		return repository.CardToken{}, repository.ErrNotFound
	}
	return card, nil
}

// List возвращает все карты, отсортированные по токену
func (s *CardStore) List(ctx context.Context) ([]repository.CardToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.CardToken, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// flushLocked переписывает hash; ошибка логируется, состояние в памяти остаётся
func (s *CardStore) flushLocked(ctx context.Context) {
	values := make([]any, 0, len(s.cards)*2)
	for token, card := range s.cards {
		raw, err := json.Marshal(card)
		if err != nil {
			s.logger.Error("failed to marshal card", zap.String("token", token), zap.Error(err))
			continue
		}
		values = append(values, token, string(raw))
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(values) > 0 {
		pipe.HSet(ctx, s.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to write cards hash to redis",
			zap.Error(err),
			zap.String("key", s.key),
			zap.Int("count", len(s.cards)),
		)
	}
}
