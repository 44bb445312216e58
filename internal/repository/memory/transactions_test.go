package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
)

type fakeJournal struct {
	mu      sync.Mutex
	puts    []repository.TransactionRecord
	records []repository.TransactionRecord
	putErr  error
	loadErr error
}

func (j *fakeJournal) Put(_ context.Context, rec repository.TransactionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.puts = append(j.puts, rec)
	return j.putErr
}

func (j *fakeJournal) Load(context.Context) ([]repository.TransactionRecord, error) {
	return j.records, j.loadErr
}

func (j *fakeJournal) written() []repository.TransactionRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]repository.TransactionRecord(nil), j.puts...)
}

// blockingJournal держит Put до закрытия release
type blockingJournal struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (j *blockingJournal) Put(ctx context.Context, _ repository.TransactionRecord) error {
	j.once.Do(func() { close(j.entered) })
	select {
	case <-j.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *blockingJournal) Load(context.Context) ([]repository.TransactionRecord, error) {
	return nil, nil
}

func pendingRecord(id, session, ref string) repository.TransactionRecord {
	return repository.TransactionRecord{
		TransactionID:     id,
		MerchantSession:   session,
		MerchantReference: ref,
		Kind:              repository.KindPurchase,
		Status:            repository.StatusPending,
		ErrorCode:         repository.ErrorCodeUnknown,
	}
}

func TestTransactionStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("record is found by every index", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)
		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "R1")))

		byID, err := s.GetByID(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, "S1", byID.MerchantSession)

		bySession, err := s.GetBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, "T1", bySession.TransactionID)

		byRef, err := s.GetByReference(ctx, "R1")
		require.NoError(t, err)
		require.Len(t, byRef, 1)
		assert.Equal(t, "T1", byRef[0].TransactionID)
		assert.False(t, byID.CreatedAt.IsZero())
	})

	t.Run("missing identifiers are rejected", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)

		err := s.Save(ctx, pendingRecord("", "S1", ""))
		require.ErrorIs(t, err, repository.ErrInvalidInput)

		err = s.Save(ctx, pendingRecord("T1", "", ""))
		require.ErrorIs(t, err, repository.ErrInvalidInput)
	})

	t.Run("overwrite moves indices", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)
		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "R1")))
		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S2", "R2")))

		_, err := s.GetBySession(ctx, "S1")
		require.ErrorIs(t, err, repository.ErrNotFound)

		old, err := s.GetByReference(ctx, "R1")
		require.NoError(t, err)
		assert.Empty(t, old)

		rec, err := s.GetBySession(ctx, "S2")
		require.NoError(t, err)
		assert.Equal(t, "T1", rec.TransactionID)
	})

	t.Run("reference groups several transactions", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)
		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "order-1")))
		require.NoError(t, s.Save(ctx, pendingRecord("T2", "S2", "order-1")))
		require.NoError(t, s.Save(ctx, pendingRecord("T3", "S3", "order-2")))

		group, err := s.GetByReference(ctx, "order-1")
		require.NoError(t, err)
		require.Len(t, group, 2)
		assert.Equal(t, "T1", group[0].TransactionID)
		assert.Equal(t, "T2", group[1].TransactionID)
	})
}

func TestTransactionStore_Get(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore(zap.NewNop(), nil)
	require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "")))

	t.Run("unknown keys return not found", func(t *testing.T) {
		_, err := s.GetByID(ctx, "nope")
		require.ErrorIs(t, err, repository.ErrNotFound)

		_, err = s.GetBySession(ctx, "nope")
		require.ErrorIs(t, err, repository.ErrNotFound)

		group, err := s.GetByReference(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, group)
	})

	t.Run("returned copy does not alias stored record", func(t *testing.T) {
		rec, err := s.GetByID(ctx, "T1")
		require.NoError(t, err)
		rec.Status = repository.StatusResolved

		again, err := s.GetByID(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusPending, again.Status)
	})
}

func TestTransactionStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("patch is visible through every index", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)
		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "R1")))

		status := repository.StatusResolved
		code := 0
		updated, err := s.Update(ctx, "T1", repository.TransactionPatch{Status: &status, ErrorCode: &code})
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, updated.Status)
		assert.Equal(t, "S1", updated.MerchantSession)

		bySession, err := s.GetBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, bySession.Status)
		assert.Equal(t, 0, bySession.ErrorCode)

		byRef, err := s.GetByReference(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, byRef[0].Status)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), nil)
		status := repository.StatusResolved
		_, err := s.Update(ctx, "nope", repository.TransactionPatch{Status: &status})
		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestTransactionStore_Journal(t *testing.T) {
	ctx := context.Background()

	t.Run("every mutation is written through", func(t *testing.T) {
		j := &fakeJournal{}
		s := NewTransactionStore(zap.NewNop(), j)

		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "")))
		status := repository.StatusErrored
		_, err := s.Update(ctx, "T1", repository.TransactionPatch{Status: &status})
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx))

		puts := j.written()
		require.Len(t, puts, 2)
		assert.Equal(t, repository.StatusPending, puts[0].Status)
		assert.Equal(t, repository.StatusErrored, puts[1].Status)
	})

	t.Run("slow journal does not block readers", func(t *testing.T) {
		j := &blockingJournal{entered: make(chan struct{}), release: make(chan struct{})}
		s := NewTransactionStore(zap.NewNop(), j)

		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "")))
		<-j.entered

		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, s.Save(ctx, pendingRecord("T2", "S2", "")))
			_, err := s.GetByID(ctx, "T1")
			assert.NoError(t, err)
		}()

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			t.Fatal("store blocked while the journal write was in progress")
		}

		close(j.release)
		require.NoError(t, s.Close(ctx))
	})

	t.Run("close waits no longer than its context", func(t *testing.T) {
		j := &blockingJournal{entered: make(chan struct{}), release: make(chan struct{})}
		s := NewTransactionStore(zap.NewNop(), j)
		defer close(j.release)

		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "")))
		<-j.entered

		closeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, s.Close(closeCtx), context.DeadlineExceeded)
	})

	t.Run("journal failure does not fail the store", func(t *testing.T) {
		j := &fakeJournal{putErr: errors.New("disk full")}
		s := NewTransactionStore(zap.NewNop(), j)

		require.NoError(t, s.Save(ctx, pendingRecord("T1", "S1", "")))
		_, err := s.GetByID(ctx, "T1")
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx))
		assert.Len(t, j.written(), 1)
	})

	t.Run("restore indexes journal records", func(t *testing.T) {
		j := &fakeJournal{records: []repository.TransactionRecord{
			pendingRecord("T1", "S1", "R1"),
			pendingRecord("", "S2", ""),
		}}
		s := NewTransactionStore(zap.NewNop(), j)

		n, err := s.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rec, err := s.GetBySession(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, "T1", rec.TransactionID)
		assert.Len(t, s.All(ctx), 1)
		require.NoError(t, s.Close(ctx))
		assert.Empty(t, j.written())
	})

	t.Run("restore load error", func(t *testing.T) {
		s := NewTransactionStore(zap.NewNop(), &fakeJournal{loadErr: errors.New("corrupt")})
		_, err := s.Restore(ctx)
		require.Error(t, err)
	})
}
