package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// TransactionStore реализует repository.TransactionStore в памяти.
// Запись хранится в одном экземпляре (byID), индексы session/reference ссылаются на transactionId,
// поэтому изменение через любой ключ видно через остальные.
// Каждое изменение ставится в очередь журнала в порядке применения; запись в Journal идёт
// в фоне, ошибка журнала только логируется. Close дописывает очередь.
type TransactionStore struct {
	logger  *zap.Logger
	journal repository.Journal
	writer  *journalWriter
	now     func() time.Time

	mu          sync.RWMutex
	byID        map[string]*repository.TransactionRecord
	bySession   map[string]string   // merchantSession -> transactionId
	byReference map[string][]string // merchantReference -> transactionId (в порядке сохранения)
}

// NewTransactionStore создаёт пустое хранилище. journal может быть nil.
func NewTransactionStore(logger *zap.Logger, journal repository.Journal) *TransactionStore {
	s := &TransactionStore{
		logger:      logger,
		journal:     journal,
		now:         time.Now,
		byID:        make(map[string]*repository.TransactionRecord),
		bySession:   make(map[string]string),
		byReference: make(map[string][]string),
	}
	if journal != nil {
		s.writer = newJournalWriter(logger, journal, journalPutTimeout)
	}
	return s
}

// Close дописывает в журнал поставленные записи; последующие изменения в журнал не попадут
func (s *TransactionStore) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.close(ctx)
}

// Restore загружает записи из журнала; вызывается один раз при старте
func (s *TransactionStore) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	records, err := s.journal.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load transaction journal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.TransactionID == "" || rec.MerchantSession == "" {
			continue
		}
		s.indexLocked(rec)
	}
	return len(records), nil
}

// Save создаёт или перезаписывает запись под всеми применимыми индексами
func (s *TransactionStore) Save(ctx context.Context, rec repository.TransactionRecord) error {
	if rec.TransactionID == "" || rec.MerchantSession == "" {
		return fmt.Errorf("%w: transactionId and merchantSession are required", repository.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if old, ok := s.byID[rec.TransactionID]; ok {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = old.CreatedAt
		}
		s.unindexLocked(old)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	stored := s.indexLocked(rec)
	s.persistLocked(*stored)
	return nil
}

// GetByID возвращает копию записи по transactionId
func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (repository.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[transactionID]
	if !ok {
		return repository.TransactionRecord{}, repository.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetBySession возвращает копию записи по merchantSession
func (s *TransactionStore) GetBySession(ctx context.Context, merchantSession string) (repository.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySession[merchantSession]
	if !ok {
		return repository.TransactionRecord{}, repository.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// GetByReference возвращает копии всех записей с данным merchantReference;
// пустой срез без ошибки, если таких нет
func (s *TransactionStore) GetByReference(ctx context.Context, merchantReference string) ([]repository.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byReference[merchantReference]
	out := make([]repository.TransactionRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

// Update применяет патч к записи; идентификаторы не меняются
func (s *TransactionStore) Update(ctx context.Context, transactionID string, patch repository.TransactionPatch) (repository.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[transactionID]
	if !ok {
		return repository.TransactionRecord{}, fmt.Errorf("update %s: %w", transactionID, repository.ErrNotFound)
	}

	patch.Apply(rec)
	rec.UpdatedAt = s.now().UTC()

	s.persistLocked(*rec)
	return rec.Clone(), nil
}

// All возвращает копии всех записей, по времени создания
func (s *TransactionStore) All(ctx context.Context) []repository.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.TransactionRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// indexLocked кладёт копию записи во все индексы (под write lock)
func (s *TransactionStore) indexLocked(rec repository.TransactionRecord) *repository.TransactionRecord {
	stored := rec.Clone()
	s.byID[stored.TransactionID] = &stored
	s.bySession[stored.MerchantSession] = stored.TransactionID
	if stored.MerchantReference != "" {
		s.byReference[stored.MerchantReference] = append(s.byReference[stored.MerchantReference], stored.TransactionID)
	}
	return &stored
}

// unindexLocked убирает запись из индексов session/reference
func (s *TransactionStore) unindexLocked(rec *repository.TransactionRecord) {
	if s.bySession[rec.MerchantSession] == rec.TransactionID {
		delete(s.bySession, rec.MerchantSession)
	}
	if rec.MerchantReference == "" {
		return
	}
	ids := s.byReference[rec.MerchantReference]
	for i, id := range ids {
		if id == rec.TransactionID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byReference, rec.MerchantReference)
		return
	}
	s.byReference[rec.MerchantReference] = ids
}

// persistLocked ставит запись в очередь журнала; под lock, чтобы порядок в журнале совпадал с памятью
func (s *TransactionStore) persistLocked(rec repository.TransactionRecord) {
	if s.writer == nil {
		return
	}
	s.writer.enqueue(rec.Clone())
}
