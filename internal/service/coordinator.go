package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/gateway"
	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/internal/router"
	"github.com/shestoi/paystation-relay/platform/observability"
)

// События клиентского протокола
const (
	EventTransactionURL   = "transaction_url"
	EventTokenisationURL  = "tokenisation_url"
	EventTxnComplete      = "txn_complete"
	EventTokenTxnComplete = "token_txn_complete"
	EventTokenComplete    = "token_complete"
	EventTokenDeleted     = "token_deleted"
	EventLoadCards        = "load_cards"
	EventErrorMessage     = "error_message"
	EventTransactionError = "transaction_error"
)

// Путь, по которому стал известен результат
const (
	PathPush       = "push"
	PathPull       = "pull"
	PathDirect     = "direct"
	PathInitiation = "initiation"
)

const transactionCompletedEventType = "paystation.transaction.completed"

// PollTimeoutMessage сообщение клиенту, если опрос не дождался результата
const PollTimeoutMessage = "Took too long to enter in credit card details."

// ErrPollTimeout опрос шлюза превысил отведённое время
var ErrPollTimeout = errors.New("poll timeout: took too long to enter in credit card details")

// Config параметры координатора
type Config struct {
	MerchantReference string
	PollEnabled       bool
	PollInterval      time.Duration
	PollTimeout       time.Duration
}

// Coordinator ведёт жизненный цикл транзакции: инициация, регистрация соединения,
// завершение через POST-back (push) или опрос (pull). Результат применяется ровно один раз.
type Coordinator struct {
	logger    *zap.Logger
	cfg       Config
	gateway   Gateway
	store     repository.TransactionStore
	cards     repository.CardStore
	router    *router.Router
	publisher CompletionPublisher
	pollers   *Poller
	resolved  metric.Int64Counter

	// mu делает проверку статуса и запись терминального статуса атомарными
	mu sync.Mutex

	// connMu защищает учёт инициаций в полёте: соединение, закрытое во время вызова шлюза,
	// не должно попасть в router после возврата
	connMu   sync.Mutex
	inflight map[string]int
	closed   map[string]struct{}
}

// NewCoordinator создаёт координатор
func NewCoordinator(
	logger *zap.Logger,
	cfg Config,
	gw Gateway,
	store repository.TransactionStore,
	cards repository.CardStore,
	rt *router.Router,
	publisher CompletionPublisher,
) *Coordinator {
	counter, err := otel.Meter("paystation-relay/service").Int64Counter("relay.transactions.resolved",
		metric.WithDescription("Transactions moved to a terminal status"),
	)
	if err != nil {
		logger.Warn("failed to create resolved counter", zap.Error(err))
	}

	return &Coordinator{
		logger:    logger,
		cfg:       cfg,
		gateway:   gw,
		store:     store,
		cards:     cards,
		router:    rt,
		publisher: publisher,
		pollers:   NewPoller(cfg.PollInterval, cfg.PollTimeout, logger),
		resolved:  counter,
		inflight:  make(map[string]int),
		closed:    make(map[string]struct{}),
	}
}

// StartTransaction инициирует 3-party оплату и отдаёт клиенту ссылку на страницу оплаты
func (c *Coordinator) StartTransaction(ctx context.Context, conn router.Connection, amount string) (repository.TransactionRecord, error) {
	c.beginInitiation(conn)
	defer c.endInitiation(conn)

	rec, err := c.gateway.InitiateTransaction(ctx, amount, c.cfg.MerchantReference)
	if err != nil {
		c.failInitiation(ctx, conn, rec, "Error creating transaction: ", err)
		return rec, err
	}
	c.awaitCompletion(conn, rec, EventTransactionURL)
	return rec, nil
}

// CreateTokenization инициирует сохранение карты и отдаёт клиенту ссылку
func (c *Coordinator) CreateTokenization(ctx context.Context, conn router.Connection) (repository.TransactionRecord, error) {
	c.beginInitiation(conn)
	defer c.endInitiation(conn)

	rec, err := c.gateway.InitiateTokenization(ctx)
	if err != nil {
		c.failInitiation(ctx, conn, rec, "Error creating token: ", err)
		return rec, err
	}
	c.awaitCompletion(conn, rec, EventTokenisationURL)
	return rec, nil
}

// ChargeToken списывает сумму с сохранённой карты; результат известен сразу
func (c *Coordinator) ChargeToken(ctx context.Context, conn router.Connection, token, amount string) (repository.TransactionRecord, error) {
	rec, err := c.gateway.ChargeToken(ctx, token, amount, c.cfg.MerchantReference)
	if err != nil {
		c.logger.Warn("token charge failed", zap.Error(err), zap.String("connection_id", conn.ID()))
		c.emit(conn, EventTransactionError, clientMessage("Error billing token: ", err))
		return rec, err
	}

	c.emit(conn, EventTokenTxnComplete, rec)
	c.completed(ctx, PathDirect, rec)
	return rec, nil
}

// DeleteToken удаляет сохранённую карту; код 34 = карта удалена, иначе карта остаётся
func (c *Coordinator) DeleteToken(ctx context.Context, conn router.Connection, token string) (repository.TransactionRecord, error) {
	rec, err := c.gateway.DeleteToken(ctx, token, c.cfg.MerchantReference)
	if err != nil {
		c.logger.Warn("token delete failed", zap.Error(err), zap.String("connection_id", conn.ID()))
		c.emit(conn, EventErrorMessage, clientMessage("Error deleting token: ", err))
		return rec, err
	}

	c.completed(ctx, PathDirect, rec)
	if rec.ErrorCode != gateway.TokenDeletedCode {
		c.emit(conn, EventTransactionError, fmt.Sprintf("Error deleting token: (Error code %d) %s", rec.ErrorCode, rec.ErrorMessage))
		return rec, nil
	}
	c.emit(conn, EventTokenDeleted, token)
	return rec, nil
}

// ListCards отдаёт клиенту сохранённые карты
func (c *Coordinator) ListCards(ctx context.Context, conn router.Connection) ([]repository.CardToken, error) {
	cards, err := c.cards.List(ctx)
	if err != nil {
		c.emit(conn, EventErrorMessage, "Error loading cards: "+err.Error())
		return nil, err
	}
	c.emit(conn, EventLoadCards, cards)
	return cards, nil
}

// HandleNotice применяет POST-back уведомление шлюза (push path).
// Повторное уведомление для завершённой транзакции ничего не делает.
func (c *Coordinator) HandleNotice(ctx context.Context, notice gateway.Notice) error {
	if !notice.Resolved() {
		c.logger.Warn("notice without result code ignored", zap.String("transaction_id", notice.TransactionID))
		return nil
	}

	var card *repository.CardToken
	if notice.HasCard() {
		card = &repository.CardToken{
			Token:            notice.Token,
			MaskedCardNumber: notice.CardNumber,
			Expiry:           notice.CardExpiry,
		}
	}

	_, err := c.resolve(ctx, notice.TransactionID, PathPush, snapshotPatch(notice.Snapshot, repository.StatusResolved, notice.Token), card)
	return err
}

// Disconnect снимает регистрации соединения; опросы продолжаются до результата.
// Инициации, ещё ждущие шлюз, после возврата соединение уже не регистрируют.
func (c *Coordinator) Disconnect(conn router.Connection) {
	c.connMu.Lock()
	if c.inflight[conn.ID()] > 0 {
		c.closed[conn.ID()] = struct{}{}
	}
	c.connMu.Unlock()

	removed := c.router.UnregisterConnection(conn)
	if len(removed) > 0 {
		c.logger.Info("connection closed with pending transactions",
			zap.String("connection_id", conn.ID()),
			zap.Strings("transaction_ids", removed),
		)
	}
}

// Resume возобновляет опрос незавершённых purchase/tokenization записей после рестарта.
// Таймаут опроса отсчитывается заново. Возвращает число запущенных опросов.
func (c *Coordinator) Resume(records []repository.TransactionRecord) int {
	if !c.cfg.PollEnabled {
		return 0
	}
	n := 0
	for _, rec := range records {
		if rec.Status != repository.StatusPending {
			continue
		}
		if rec.Kind != repository.KindPurchase && rec.Kind != repository.KindTokenization {
			continue
		}
		if c.startPolling(rec.TransactionID) {
			n++
		}
	}
	if n > 0 {
		c.logger.Info("polling resumed for pending transactions", zap.Int("count", n))
	}
	return n
}

// Shutdown останавливает все опросы
func (c *Coordinator) Shutdown(ctx context.Context) error {
	return c.pollers.StopAll(ctx)
}

// Poller реестр активных опросов
func (c *Coordinator) Poller() *Poller {
	return c.pollers
}

func (c *Coordinator) awaitCompletion(conn router.Connection, rec repository.TransactionRecord, event string) {
	c.connMu.Lock()
	_, gone := c.closed[conn.ID()]
	if !gone {
		c.router.Register(rec.TransactionID, conn)
	}
	c.connMu.Unlock()

	if gone {
		c.logger.Info("connection closed during initiation, result will not be delivered",
			zap.String("connection_id", conn.ID()),
			zap.String("transaction_id", rec.TransactionID),
		)
	} else {
		c.emit(conn, event, rec.DigitalOrderURL)
	}

	if c.cfg.PollEnabled {
		c.startPolling(rec.TransactionID)
	}
}

func (c *Coordinator) startPolling(id string) bool {
	return c.pollers.Start(id, PollTask{
		Check:  func(ctx context.Context) bool { return c.pollOnce(ctx, id) },
		Expire: func(ctx context.Context) { c.expire(ctx, id) },
	})
}

func (c *Coordinator) beginInitiation(conn router.Connection) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.inflight[conn.ID()]++
}

// endInitiation забывает соединение, когда у него не осталось инициаций в полёте
func (c *Coordinator) endInitiation(conn router.Connection) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	id := conn.ID()
	if c.inflight[id]--; c.inflight[id] <= 0 {
		delete(c.inflight, id)
		delete(c.closed, id)
	}
}

// failInitiation: отказ шлюза = transaction_error, прочие ошибки = error_message
func (c *Coordinator) failInitiation(ctx context.Context, conn router.Connection, rec repository.TransactionRecord, prefix string, err error) {
	c.logger.Warn("transaction initiation failed",
		zap.Error(err),
		zap.String("connection_id", conn.ID()),
		zap.String("merchant_session", rec.MerchantSession),
	)

	if _, ok := gateway.AsDecline(err); ok {
		c.emit(conn, EventTransactionError, clientMessage(prefix, err))
		if rec.TransactionID != "" && rec.Status == repository.StatusErrored {
			c.completed(ctx, PathInitiation, rec)
		}
		return
	}
	c.emit(conn, EventErrorMessage, clientMessage(prefix, err))
}

// pollOnce одна попытка pull path; true = опрос завершён
func (c *Coordinator) pollOnce(ctx context.Context, id string) bool {
	rec, err := c.store.GetByID(ctx, id)
	if err == nil && rec.Status.Terminal() {
		return true
	}

	snap, err := c.gateway.Lookup(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		c.logger.Warn("transaction lookup failed, will retry",
			zap.Error(err),
			zap.String("transaction_id", id),
			zap.Bool("transport", gateway.IsTransport(err)),
		)
		return false
	}
	if !snap.Resolved() {
		return false
	}

	if _, err := c.resolve(ctx, id, PathPull, snapshotPatch(snap, repository.StatusResolved, ""), nil); err != nil {
		c.logger.Error("failed to resolve polled transaction", zap.Error(err), zap.String("transaction_id", id))
	}
	return true
}

// expire завершает транзакцию с ошибкой таймаута опроса
func (c *Coordinator) expire(ctx context.Context, id string) {
	status := repository.StatusErrored
	msg := PollTimeoutMessage
	patch := repository.TransactionPatch{Status: &status, ErrorMessage: &msg}

	won, err := c.resolve(ctx, id, PathPull, patch, nil)
	if err != nil {
		c.logger.Error("failed to expire transaction", zap.Error(err), zap.String("transaction_id", id))
		return
	}
	if won {
		c.logger.Warn("transaction expired", zap.Error(ErrPollTimeout), zap.String("transaction_id", id))
	}
}

// resolve переводит транзакцию в терминальный статус, если она ещё не завершена.
// Возвращает false, если транзакцию уже завершил другой путь.
func (c *Coordinator) resolve(ctx context.Context, id, path string, patch repository.TransactionPatch, card *repository.CardToken) (bool, error) {
	// результат должен быть доставлен даже если опрос уже отменён
	ctx = context.WithoutCancel(ctx)
	log := observability.L(ctx, c.logger)

	c.mu.Lock()
	current, err := c.store.GetByID(ctx, id)
	if err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("resolve %s: %w", id, err)
	}
	if current.Status.Terminal() {
		c.mu.Unlock()
		log.Debug("transaction already resolved, signal suppressed",
			zap.String("transaction_id", id),
			zap.String("path", path),
			zap.String("status", string(current.Status)),
		)
		return false, nil
	}
	rec, err := c.store.Update(ctx, id, patch)
	c.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", id, err)
	}

	c.pollers.Stop(id)

	log.Info("transaction resolved",
		zap.String("transaction_id", id),
		zap.String("path", path),
		zap.String("status", string(rec.Status)),
		zap.Int("error_code", rec.ErrorCode),
	)

	if rec.Status == repository.StatusErrored {
		c.router.Dispatch(id, EventErrorMessage, rec.ErrorMessage)
	} else {
		if card != nil && rec.Kind == repository.KindTokenization {
			if err := c.cards.Save(ctx, *card); err != nil {
				log.Error("failed to save tokenized card", zap.Error(err), zap.String("transaction_id", id))
			} else {
				c.router.Dispatch(id, EventTokenComplete, *card)
			}
		}
		c.router.Dispatch(id, EventTxnComplete, rec)
	}
	c.router.UnregisterTransaction(id)

	c.completed(ctx, path, rec)
	return true, nil
}

// completed считает метрику и публикует событие о завершении
func (c *Coordinator) completed(ctx context.Context, path string, rec repository.TransactionRecord) {
	if c.resolved != nil {
		c.resolved.Add(ctx, 1, metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("status", string(rec.Status)),
		))
	}

	event := TransactionCompletedEvent{
		EventID:           uuid.NewString(),
		EventType:         transactionCompletedEventType,
		EventVersion:      1,
		OccurredAt:        time.Now().UTC(),
		Path:              path,
		TransactionID:     rec.TransactionID,
		MerchantSession:   rec.MerchantSession,
		MerchantReference: rec.MerchantReference,
		Kind:              string(rec.Kind),
		Status:            string(rec.Status),
		ErrorCode:         rec.ErrorCode,
		ErrorMessage:      rec.ErrorMessage,
		Amount:            rec.Amount,
		CardType:          rec.CardType,
	}
	if err := c.publisher.PublishTransactionCompleted(ctx, event); err != nil {
		c.logger.Error("failed to publish transaction completed event",
			zap.Error(err),
			zap.String("transaction_id", rec.TransactionID),
		)
	}
}

func (c *Coordinator) emit(conn router.Connection, event string, payload any) {
	if err := conn.Emit(event, payload); err != nil {
		c.logger.Warn("failed to emit event",
			zap.Error(err),
			zap.String("connection_id", conn.ID()),
			zap.String("event", event),
		)
	}
}

// snapshotPatch патч записи по данным шлюза
func snapshotPatch(s gateway.Snapshot, status repository.Status, token string) repository.TransactionPatch {
	patch := repository.TransactionPatch{
		Status:       &status,
		ErrorCode:    &s.ErrorCode,
		ErrorMessage: &s.ErrorMessage,
	}
	if s.Amount > 0 {
		patch.Amount = &s.Amount
	}
	if s.CardType != "" {
		patch.CardType = &s.CardType
	}
	if s.RequestIP != "" {
		patch.RequestIP = &s.RequestIP
	}
	if s.TransactionTime != "" {
		patch.TransactionAt = &s.TransactionTime
	}
	if token != "" {
		patch.Token = &token
	}
	return patch
}

// clientMessage человекочитаемый текст ошибки для клиента
func clientMessage(prefix string, err error) string {
	if d, ok := gateway.AsDecline(err); ok {
		return fmt.Sprintf("%s(Error code %d) %s", prefix, d.Code, d.Message)
	}
	return prefix + err.Error()
}
