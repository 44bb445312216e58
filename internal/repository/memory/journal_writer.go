package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
)

const journalPutTimeout = 5 * time.Second

// journalWriter пишет записи в журнал из одной горутины в порядке постановки.
// Медленный журнал не держит lock хранилища.
type journalWriter struct {
	logger  *zap.Logger
	journal repository.Journal
	timeout time.Duration

	mu      sync.Mutex
	queue   []repository.TransactionRecord
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newJournalWriter(logger *zap.Logger, journal repository.Journal, timeout time.Duration) *journalWriter {
	w := &journalWriter{
		logger:  logger,
		journal: journal,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue ставит запись в очередь; после close записи отбрасываются
func (w *journalWriter) enqueue(rec repository.TransactionRecord) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.logger.Warn("journal writer closed, transaction not persisted",
			zap.String("transaction_id", rec.TransactionID),
		)
		return
	}
	w.queue = append(w.queue, rec)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close дописывает очередь и останавливает горутину; ждёт не дольше ctx
func (w *journalWriter) close(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *journalWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *journalWriter) drain() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, rec := range batch {
			w.put(rec)
		}
	}
}

func (w *journalWriter) put(rec repository.TransactionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.journal.Put(ctx, rec); err != nil {
		w.logger.Error("failed to persist transaction",
			zap.Error(err),
			zap.String("transaction_id", rec.TransactionID),
			zap.String("merchant_session", rec.MerchantSession),
		)
	}
}
