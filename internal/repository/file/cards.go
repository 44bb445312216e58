package file

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// CardStore хранит токенизированные карты в памяти и переписывает JSON файл целиком после каждого изменения.
// Формат файла: объект token -> {token, maskedCardNumber, expiry}.
type CardStore struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	cards map[string]repository.CardToken
}

// NewCardStore загружает карты из path (если файл есть) и возвращает хранилище
func NewCardStore(path string, logger *zap.Logger) (*CardStore, error) {
	s := &CardStore{
		path:   path,
		logger: logger,
		cards:  make(map[string]repository.CardToken),
	}

	loaded, err := readSnapshot(path, &s.cards)
	if err != nil {
		return nil, err
	}
	if s.cards == nil {
		s.cards = make(map[string]repository.CardToken)
	}
	if loaded {
		logger.Info("cards loaded", zap.String("path", path), zap.Int("count", len(s.cards)))
	}
	return s, nil
}

// Save сохраняет карту и переписывает файл
func (s *CardStore) Save(ctx context.Context, card repository.CardToken) error {
	if card.Token == "" || card.MaskedCardNumber == "" || card.Expiry == "" {
		return fmt.Errorf("%w: token, masked card number and expiry are required", repository.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.Token] = card
	s.flushLocked()
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
	s.flushLocked()
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

// flushLocked переписывает файл; ошибка записи логируется, состояние в памяти остаётся
func (s *CardStore) flushLocked() {
	if err := writeSnapshot(s.path, s.cards); err != nil {
		s.logger.Error("failed to write cards file", zap.Error(err), zap.String("path", s.path))
	}
}
