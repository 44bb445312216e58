package file

import (
	"context"
	"sort"
	"sync"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// TransactionJournal реализует repository.Journal поверх JSON файла.
// Держит последнее состояние каждой записи и переписывает файл целиком на каждый Put.
type TransactionJournal struct {
	path string

	mu      sync.Mutex
	records map[string]repository.TransactionRecord
}

// NewTransactionJournal создаёт журнал; файл читается лениво в Load
func NewTransactionJournal(path string) *TransactionJournal {
	return &TransactionJournal{
		path:    path,
		records: make(map[string]repository.TransactionRecord),
	}
}

// Put обновляет запись и переписывает файл
func (j *TransactionJournal) Put(ctx context.Context, rec repository.TransactionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[rec.TransactionID] = rec
	return writeSnapshot(j.path, j.sortedLocked())
}

// Load читает файл и возвращает записи в порядке создания
func (j *TransactionJournal) Load(ctx context.Context) ([]repository.TransactionRecord, error) {
	var list []repository.TransactionRecord
	if _, err := readSnapshot(j.path, &list); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, rec := range list {
		j.records[rec.TransactionID] = rec
	}
	return j.sortedLocked(), nil
}

func (j *TransactionJournal) sortedLocked() []repository.TransactionRecord {
	out := make([]repository.TransactionRecord, 0, len(j.records))
	for _, rec := range j.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].TransactionID < out[b].TransactionID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}
