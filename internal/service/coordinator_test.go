package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/gateway"
	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/internal/repository/file"
	"github.com/shestoi/paystation-relay/internal/repository/memory"
	"github.com/shestoi/paystation-relay/internal/router"
	"github.com/shestoi/paystation-relay/internal/service"
	"github.com/shestoi/paystation-relay/internal/service/mocks"
)

type emitted struct {
	event   string
	payload any
}

// recordingConn запоминает все события, отправленные клиенту
type recordingConn struct {
	id string

	mu     sync.Mutex
	events []emitted
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{event: event, payload: payload})
	return nil
}

func (c *recordingConn) snapshot() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]emitted, len(c.events))
	copy(out, c.events)
	return out
}

func (c *recordingConn) count(event string) int {
	n := 0
	for _, e := range c.snapshot() {
		if e.event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	coord     *service.Coordinator
	gw        *mocks.Gateway
	publisher *mocks.CompletionPublisher
	store     *memory.TransactionStore
	cards     *file.CardStore
	router    *router.Router
	conn      *recordingConn
}

func newFixture(t *testing.T, cfg service.Config) *fixture {
	t.Helper()

	store := memory.NewTransactionStore(zap.NewNop(), nil)
	cards, err := file.NewCardStore(filepath.Join(t.TempDir(), "cards.json"), zap.NewNop())
	require.NoError(t, err)

	gw := mocks.NewGateway(t)
	publisher := mocks.NewCompletionPublisher(t)
	rt := router.New(zap.NewNop())

	if cfg.MerchantReference == "" {
		cfg.MerchantReference = "sample-node-merch-ref"
	}
	coord := service.NewCoordinator(zap.NewNop(), cfg, gw, store, cards, rt, publisher)
	t.Cleanup(func() { _ = coord.Shutdown(context.Background()) })

	return &fixture{
		coord:     coord,
		gw:        gw,
		publisher: publisher,
		store:     store,
		cards:     cards,
		router:    rt,
		conn:      &recordingConn{id: "conn-1"},
	}
}

// pending сохраняет запись так, как это делает gateway.Client перед возвратом
func (f *fixture) pending(t *testing.T, id string, kind repository.Kind) repository.TransactionRecord {
	t.Helper()
	rec := repository.TransactionRecord{
		TransactionID:     id,
		MerchantSession:   "session-" + id,
		MerchantReference: "sample-node-merch-ref",
		Kind:              kind,
		Status:            repository.StatusPending,
		ErrorCode:         repository.ErrorCodeUnknown,
		DigitalOrderURL:   "https://pay.example/" + id,
	}
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec
}

func successNotice(id string) gateway.Notice {
	return gateway.Notice{Snapshot: gateway.Snapshot{
		TransactionID: id,
		ErrorCode:     0,
		ErrorMessage:  "Transaction successful",
		Amount:        1000,
		CardType:      "visa",
	}}
}

func TestCoordinator_StartTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("registers connection and sends payment url", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		rec := f.pending(t, "T1", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		events := f.conn.snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventTransactionURL, events[0].event)
		assert.Equal(t, "https://pay.example/T1", events[0].payload)

		conn, ok := f.router.Lookup("T1")
		require.True(t, ok)
		assert.Equal(t, "conn-1", conn.ID())

		stored, err := f.store.GetBySession(ctx, rec.MerchantSession)
		require.NoError(t, err)
		assert.Equal(t, "T1", stored.TransactionID)
	})

	t.Run("gateway decline sends exactly one transaction_error", func(t *testing.T) {
		f := newFixture(t, service.Config{PollEnabled: true, PollInterval: time.Millisecond, PollTimeout: time.Minute})
		declined := repository.TransactionRecord{
			TransactionID:   "T4",
			MerchantSession: "session-T4",
			Kind:            repository.KindPurchase,
			Status:          repository.StatusErrored,
			ErrorCode:       4,
			ErrorMessage:    "Paystation error code:4 Failed to create new transaction.",
		}
		require.NoError(t, f.store.Save(ctx, declined))

		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").
			Return(declined, &gateway.DeclineError{Op: "createThreePartyTransaction", Code: 4, Message: declined.ErrorMessage}).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.TransactionID == "T4" && e.Path == service.PathInitiation && e.ErrorCode == 4
		})).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.Error(t, err)

		events := f.conn.snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventTransactionError, events[0].event)
		assert.Contains(t, events[0].payload, "(Error code 4)")

		assert.Equal(t, 0, f.router.Len())
		assert.Equal(t, 0, f.coord.Poller().Len())

		stored, err := f.store.GetByID(ctx, "T4")
		require.NoError(t, err)
		assert.Equal(t, 4, stored.ErrorCode)
		assert.Equal(t, repository.StatusErrored, stored.Status)
	})

	t.Run("disconnect during initiation leaves nothing registered", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		rec := f.pending(t, "TX", repository.KindPurchase)
		entered := make(chan struct{})
		release := make(chan struct{})
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(func(context.Context, string, string) (repository.TransactionRecord, error) {
			close(entered)
			<-release
			return rec, nil
		}).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
			done <- err
		}()

		<-entered
		f.coord.Disconnect(f.conn)
		close(release)
		require.NoError(t, <-done)

		assert.Equal(t, 0, f.router.Len())
		_, ok := f.router.Lookup("TX")
		assert.False(t, ok)
		assert.Equal(t, 0, f.conn.count(service.EventTransactionURL))
	})

	t.Run("connection id is reusable after a dropped initiation", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		first := f.pending(t, "TA", repository.KindPurchase)
		second := f.pending(t, "TB", repository.KindPurchase)
		entered := make(chan struct{})
		release := make(chan struct{})
		f.gw.On("InitiateTransaction", mock.Anything, "1.00", "sample-node-merch-ref").Return(func(context.Context, string, string) (repository.TransactionRecord, error) {
			close(entered)
			<-release
			return first, nil
		}).Once()
		f.gw.On("InitiateTransaction", mock.Anything, "2.00", "sample-node-merch-ref").Return(second, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.coord.StartTransaction(ctx, f.conn, "1.00")
			done <- err
		}()
		<-entered
		f.coord.Disconnect(f.conn)
		close(release)
		require.NoError(t, <-done)

		_, err := f.coord.StartTransaction(ctx, f.conn, "2.00")
		require.NoError(t, err)

		conn, ok := f.router.Lookup("TB")
		require.True(t, ok)
		assert.Equal(t, "conn-1", conn.ID())
		assert.Equal(t, 1, f.conn.count(service.EventTransactionURL))
	})

	t.Run("transport error goes to error_message", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").
			Return(repository.TransactionRecord{}, &gateway.TransportError{Op: "createThreePartyTransaction", Err: errors.New("connection refused")}).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.Error(t, err)
		assert.Equal(t, 1, f.conn.count(service.EventErrorMessage))
		assert.Equal(t, 0, f.conn.count(service.EventTransactionError))
	})
}

func TestCoordinator_PushPath(t *testing.T) {
	ctx := context.Background()

	t.Run("notice resolves once and later poll tick is a no-op", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		rec := f.pending(t, "T1", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.TransactionID == "T1" && e.Path == service.PathPush && e.Status == string(repository.StatusResolved)
		})).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		require.NoError(t, f.coord.HandleNotice(ctx, successNotice("T1")))
		require.NoError(t, f.coord.HandleNotice(ctx, successNotice("T1")))

		// Lookup не ожидается: mock упадёт, если pull path обратится к шлюзу
		assert.True(t, f.coord.PollOnce(ctx, "T1"))

		assert.Equal(t, 1, f.conn.count(service.EventTxnComplete))
		assert.Equal(t, 0, f.router.Len())

		stored, err := f.store.GetByID(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, stored.Status)
		assert.Equal(t, 0, stored.ErrorCode)
		assert.Equal(t, int64(1000), stored.Amount)
	})

	t.Run("tokenization notice saves the card before txn_complete", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		rec := f.pending(t, "T2", repository.KindTokenization)
		f.gw.On("InitiateTokenization", mock.Anything).Return(rec, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.coord.CreateTokenization(ctx, f.conn)
		require.NoError(t, err)

		notice := successNotice("T2")
		notice.Token = "TKN1"
		notice.CardNumber = "4111XXXXXXXX1111"
		notice.CardExpiry = "2512"
		require.NoError(t, f.coord.HandleNotice(ctx, notice))

		events := f.conn.snapshot()
		require.Len(t, events, 3)
		assert.Equal(t, service.EventTokenisationURL, events[0].event)
		assert.Equal(t, service.EventTokenComplete, events[1].event)
		assert.Equal(t, repository.CardToken{Token: "TKN1", MaskedCardNumber: "4111XXXXXXXX1111", Expiry: "2512"}, events[1].payload)
		assert.Equal(t, service.EventTxnComplete, events[2].event)

		card, err := f.cards.Get(ctx, "TKN1")
		require.NoError(t, err)
		assert.Equal(t, "2512", card.Expiry)

		stored, err := f.store.GetByID(ctx, "T2")
		require.NoError(t, err)
		assert.Equal(t, "TKN1", stored.Token)
	})

	t.Run("concurrent notice and poll deliver exactly once", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			f := newFixture(t, service.Config{})
			rec := f.pending(t, "T5", repository.KindPurchase)
			f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
			f.gw.On("Lookup", mock.Anything, "T5").Return(gateway.Snapshot{TransactionID: "T5", ErrorCode: 0, Amount: 1000}, nil).Maybe()
			f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

			_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
			require.NoError(t, err)

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				assert.NoError(t, f.coord.HandleNotice(ctx, successNotice("T5")))
			}()
			go func() {
				defer wg.Done()
				<-start
				assert.True(t, f.coord.PollOnce(ctx, "T5"))
			}()
			close(start)
			wg.Wait()

			require.Equal(t, 1, f.conn.count(service.EventTxnComplete), "iteration %d", i)
			f.publisher.AssertNumberOfCalls(t, "PublishTransactionCompleted", 1)
			assert.Equal(t, 0, f.router.Len())
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		err := f.coord.HandleNotice(ctx, successNotice("missing"))
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("disconnected client does not block resolution", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		rec := f.pending(t, "T3", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "5.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "5.00")
		require.NoError(t, err)
		f.coord.Disconnect(f.conn)
		assert.Equal(t, 0, f.router.Len())

		require.NoError(t, f.coord.HandleNotice(ctx, successNotice("T3")))

		assert.Equal(t, 0, f.conn.count(service.EventTxnComplete))
		stored, err := f.store.GetByID(ctx, "T3")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, stored.Status)
	})
}

func TestCoordinator_PullPath(t *testing.T) {
	ctx := context.Background()
	pollCfg := service.Config{PollEnabled: true, PollInterval: 2 * time.Millisecond, PollTimeout: time.Minute}

	t.Run("resolved lookup stops polling", func(t *testing.T) {
		f := newFixture(t, pollCfg)
		rec := f.pending(t, "T1", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.gw.On("Lookup", mock.Anything, "T1").Return(gateway.Snapshot{TransactionID: "T1", ErrorCode: repository.ErrorCodeUnknown}, nil).Once()
		f.gw.On("Lookup", mock.Anything, "T1").Return(gateway.Snapshot{TransactionID: "T1", ErrorCode: 0, Amount: 1000}, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.Path == service.PathPull
		})).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		require.Eventually(t, func() bool { return f.conn.count(service.EventTxnComplete) == 1 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return f.coord.Poller().Len() == 0 }, time.Second, time.Millisecond)

		time.Sleep(20 * time.Millisecond)
		f.gw.AssertNumberOfCalls(t, "Lookup", 2)

		// поздний POST-back подавляется
		require.NoError(t, f.coord.HandleNotice(ctx, successNotice("T1")))
		assert.Equal(t, 1, f.conn.count(service.EventTxnComplete))
	})

	t.Run("transport errors are retried on the next tick", func(t *testing.T) {
		f := newFixture(t, pollCfg)
		rec := f.pending(t, "T2", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.gw.On("Lookup", mock.Anything, "T2").Return(gateway.Snapshot{}, &gateway.TransportError{Op: "lookup", Err: errors.New("timeout")}).Twice()
		f.gw.On("Lookup", mock.Anything, "T2").Return(gateway.Snapshot{TransactionID: "T2", ErrorCode: 5, ErrorMessage: "Insufficient Funds"}, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		require.Eventually(t, func() bool { return f.conn.count(service.EventTxnComplete) == 1 }, time.Second, time.Millisecond)

		stored, err := f.store.GetByID(ctx, "T2")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusResolved, stored.Status)
		assert.Equal(t, 5, stored.ErrorCode)
	})

	t.Run("timeout resolves as errored with a distinct message", func(t *testing.T) {
		f := newFixture(t, service.Config{PollEnabled: true, PollInterval: 2 * time.Millisecond, PollTimeout: 15 * time.Millisecond})
		rec := f.pending(t, "T3", repository.KindPurchase)
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.gw.On("Lookup", mock.Anything, "T3").Return(gateway.Snapshot{TransactionID: "T3", ErrorCode: repository.ErrorCodeUnknown}, nil)
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.Status == string(repository.StatusErrored)
		})).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		require.Eventually(t, func() bool { return f.conn.count(service.EventErrorMessage) == 1 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return f.coord.Poller().Len() == 0 }, time.Second, time.Millisecond)

		events := f.conn.snapshot()
		assert.Equal(t, service.PollTimeoutMessage, events[len(events)-1].payload)
		assert.Equal(t, 0, f.conn.count(service.EventTxnComplete))

		stored, err := f.store.GetByID(ctx, "T3")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusErrored, stored.Status)
		assert.Equal(t, service.PollTimeoutMessage, stored.ErrorMessage)
	})

	t.Run("resume polls pending records restored from the journal", func(t *testing.T) {
		f := newFixture(t, pollCfg)
		f.pending(t, "R1", repository.KindPurchase)
		f.pending(t, "R2", repository.KindTokenization)
		f.pending(t, "R3", repository.KindTokenCharge)
		done := f.pending(t, "R4", repository.KindPurchase)
		status := repository.StatusResolved
		_, err := f.store.Update(ctx, done.TransactionID, repository.TransactionPatch{Status: &status})
		require.NoError(t, err)

		f.gw.On("Lookup", mock.Anything, "R1").Return(gateway.Snapshot{TransactionID: "R1", ErrorCode: 0}, nil).Once()
		f.gw.On("Lookup", mock.Anything, "R2").Return(gateway.Snapshot{TransactionID: "R2", ErrorCode: 5}, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.Path == service.PathPull
		})).Return(nil).Twice()

		assert.Equal(t, 2, f.coord.Resume(f.store.All(ctx)))

		require.Eventually(t, func() bool {
			r1, err1 := f.store.GetByID(ctx, "R1")
			r2, err2 := f.store.GetByID(ctx, "R2")
			return err1 == nil && err2 == nil && r1.Status == repository.StatusResolved && r2.Status == repository.StatusResolved
		}, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return f.coord.Poller().Len() == 0 }, time.Second, time.Millisecond)

		charge, err := f.store.GetByID(ctx, "R3")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusPending, charge.Status)
	})

	t.Run("resume is a no-op with polling disabled", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		f.pending(t, "R5", repository.KindPurchase)
		assert.Equal(t, 0, f.coord.Resume(f.store.All(ctx)))
		assert.Equal(t, 0, f.coord.Poller().Len())
	})

	t.Run("disconnect keeps polling until resolution", func(t *testing.T) {
		f := newFixture(t, pollCfg)
		rec := f.pending(t, "T4", repository.KindPurchase)
		release := make(chan struct{})
		f.gw.On("InitiateTransaction", mock.Anything, "10.00", "sample-node-merch-ref").Return(rec, nil).Once()
		f.gw.On("Lookup", mock.Anything, "T4").Return(func(ctx context.Context, id string) (gateway.Snapshot, error) {
			select {
			case <-release:
				return gateway.Snapshot{TransactionID: id, ErrorCode: 0}, nil
			default:
				return gateway.Snapshot{TransactionID: id, ErrorCode: repository.ErrorCodeUnknown}, nil
			}
		})
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.coord.StartTransaction(ctx, f.conn, "10.00")
		require.NoError(t, err)

		f.coord.Disconnect(f.conn)
		assert.True(t, f.coord.Poller().Active("T4"))
		close(release)

		require.Eventually(t, func() bool {
			stored, err := f.store.GetByID(ctx, "T4")
			return err == nil && stored.Status == repository.StatusResolved
		}, time.Second, time.Millisecond)
		assert.Equal(t, 0, f.conn.count(service.EventTxnComplete))
	})
}

func TestCoordinator_Tokens(t *testing.T) {
	ctx := context.Background()
	card := repository.CardToken{Token: "TKN1", MaskedCardNumber: "4111XXXXXXXX1111", Expiry: "2512"}

	t.Run("charge token", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		charged := repository.TransactionRecord{TransactionID: "C1", MerchantSession: "s", Kind: repository.KindTokenCharge, Status: repository.StatusResolved, ErrorCode: 0, Amount: 1000}
		f.gw.On("ChargeToken", mock.Anything, "TKN1", "10.00", "sample-node-merch-ref").Return(charged, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.MatchedBy(func(e service.TransactionCompletedEvent) bool {
			return e.Path == service.PathDirect && e.Amount == 1000
		})).Return(nil).Once()

		_, err := f.coord.ChargeToken(ctx, f.conn, "TKN1", "10.00")
		require.NoError(t, err)

		events := f.conn.snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventTokenTxnComplete, events[0].event)
		assert.Equal(t, charged, events[0].payload)
	})

	t.Run("charge token failure", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		f.gw.On("ChargeToken", mock.Anything, "bad", "10.00", "sample-node-merch-ref").
			Return(repository.TransactionRecord{}, &gateway.DeclineError{Op: "billToken", Code: 20, Message: "Invalid token"}).Once()

		_, err := f.coord.ChargeToken(ctx, f.conn, "bad", "10.00")
		require.Error(t, err)
		assert.Equal(t, 1, f.conn.count(service.EventTransactionError))
	})

	t.Run("delete token with code 34", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		require.NoError(t, f.cards.Save(ctx, card))
		f.gw.On("DeleteToken", mock.Anything, "TKN1", "sample-node-merch-ref").Return(func(ctx context.Context, token, ref string) (repository.TransactionRecord, error) {
			// реальный клиент удаляет карту при коде 34
			_ = f.cards.Delete(ctx, token)
			return repository.TransactionRecord{TransactionID: "D1", MerchantSession: "s", Status: repository.StatusResolved, ErrorCode: 34}, nil
		}).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.coord.DeleteToken(ctx, f.conn, "TKN1")
		require.NoError(t, err)

		events := f.conn.snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventTokenDeleted, events[0].event)
		assert.Equal(t, "TKN1", events[0].payload)
	})

	t.Run("delete token with other code keeps the card", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		require.NoError(t, f.cards.Save(ctx, card))
		f.gw.On("DeleteToken", mock.Anything, "TKN1", "sample-node-merch-ref").
			Return(repository.TransactionRecord{TransactionID: "D2", MerchantSession: "s", Status: repository.StatusResolved, ErrorCode: 12, ErrorMessage: "Token not found"}, nil).Once()
		f.publisher.On("PublishTransactionCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.coord.DeleteToken(ctx, f.conn, "TKN1")
		require.NoError(t, err)

		assert.Equal(t, 0, f.conn.count(service.EventTokenDeleted))
		assert.Equal(t, 1, f.conn.count(service.EventTransactionError))
		_, err = f.cards.Get(ctx, "TKN1")
		require.NoError(t, err)
	})

	t.Run("list cards", func(t *testing.T) {
		f := newFixture(t, service.Config{})
		require.NoError(t, f.cards.Save(ctx, card))

		cards, err := f.coord.ListCards(ctx, f.conn)
		require.NoError(t, err)
		require.Len(t, cards, 1)

		events := f.conn.snapshot()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventLoadCards, events[0].event)
		assert.Equal(t, []repository.CardToken{card}, events[0].payload)
	})
}
