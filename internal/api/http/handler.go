package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/gateway"
	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/platform/observability"
)

const maxNoticeSize = 64 << 10

// NoticeHandler применяет POST-back уведомление шлюза
type NoticeHandler interface {
	HandleNotice(ctx context.Context, notice gateway.Notice) error
}

// Handler HTTP-обработчики relay: POST-back шлюза и просмотр состояния
type Handler struct {
	notices      NoticeHandler
	transactions repository.TransactionStore
	cards        repository.CardStore
	logger       *zap.Logger
}

// NewHandler создаёт HTTP handler
func NewHandler(notices NoticeHandler, transactions repository.TransactionStore, cards repository.CardStore, logger *zap.Logger) *Handler {
	return &Handler{
		notices:      notices,
		transactions: transactions,
		cards:        cards,
		logger:       logger,
	}
}

// PostCallback обрабатывает POST /paystation_callback.
// Шлюз получает 200 на любое разобранное уведомление, даже если транзакция неизвестна,
// иначе он будет повторять доставку.
func (h *Handler) PostCallback(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNoticeSize))
	if err != nil {
		log.Warn("failed to read paystation notice", zap.Error(err))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	notice, err := gateway.ParseNotice(body, r.Header.Get("Content-Type"))
	if err != nil {
		log.Warn("unparseable paystation notice", zap.Error(err), zap.Int("size", len(body)))
		http.Error(w, "invalid notice", http.StatusBadRequest)
		return
	}

	if err := h.notices.HandleNotice(r.Context(), notice); err != nil {
		log.Info("paystation notice not applied",
			zap.String("transaction_id", notice.TransactionID),
			zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
}

// GetCards обрабатывает GET /cards
func (h *Handler) GetCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.List(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("failed to list cards", zap.Error(err))
		http.Error(w, "failed to list cards", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// GetTransaction обрабатывает GET /transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.transactions.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("failed to get transaction",
			zap.String("transaction_id", id), zap.Error(err))
		http.Error(w, "failed to get transaction", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
