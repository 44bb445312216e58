package router

import (
	"sync"

	"go.uber.org/zap"
)

// Connection живое клиентское соединение, которому доставляются события
type Connection interface {
	// ID уникальный идентификатор соединения
	ID() string
	// Emit отправляет событие клиенту
	Emit(event string, payload any) error
}

// Router хранит связь transactionId -> соединение, ожидающее результат.
// Используется только для выбора адресата доставки, не для решения о статусе транзакции.
type Router struct {
	logger *zap.Logger

	mu      sync.RWMutex
	pending map[string]Connection
}

// New создаёт пустой Router
func New(logger *zap.Logger) *Router {
	return &Router{
		logger:  logger,
		pending: make(map[string]Connection),
	}
}

// Register связывает транзакцию с соединением; предыдущая регистрация перезаписывается
func (r *Router) Register(transactionID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[transactionID] = conn
}

// Lookup возвращает соединение для транзакции
func (r *Router) Lookup(transactionID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.pending[transactionID]
	return conn, ok
}

// UnregisterTransaction удаляет регистрацию по transactionId
func (r *Router) UnregisterTransaction(transactionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, transactionID)
}

// UnregisterConnection удаляет все регистрации соединения и возвращает их transactionId
func (r *Router) UnregisterConnection(conn Connection) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, c := range r.pending {
		if c.ID() == conn.ID() {
			delete(r.pending, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Dispatch доставляет событие соединению транзакции.
// Нет соединения - молча возвращает false; ошибка отправки логируется.
func (r *Router) Dispatch(transactionID, event string, payload any) bool {
	conn, ok := r.Lookup(transactionID)
	if !ok {
		r.logger.Debug("no connection for transaction, event dropped",
			zap.String("transaction_id", transactionID),
			zap.String("event", event),
		)
		return false
	}

	if err := conn.Emit(event, payload); err != nil {
		r.logger.Warn("failed to emit event",
			zap.Error(err),
			zap.String("transaction_id", transactionID),
			zap.String("connection_id", conn.ID()),
			zap.String("event", event),
		)
		return false
	}
	return true
}

// Len количество ожидающих регистраций
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
