package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/internal/router"
	"github.com/shestoi/paystation-relay/platform/observability"
)

// Входящие события; в скобках старые имена из первой версии клиента
const (
	EventCreateTokenization = "create_tokenization" // createToken
	EventStartTransaction   = "start_transaction"   // startTransaction
	EventChargeToken        = "charge_token"        // billToken
	EventDeleteToken        = "delete_token"        // deleteToken
	EventGetCards           = "get_cards"
)

var aliases = map[string]string{
	"createToken":      EventCreateTokenization,
	"startTransaction": EventStartTransaction,
	"billToken":        EventChargeToken,
	"deleteToken":      EventDeleteToken,
}

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 64 << 10
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Coordinator --dir=. --output=./mocks --outpkg=mocks

// Coordinator операции жизненного цикла, доступные клиенту
type Coordinator interface {
	StartTransaction(ctx context.Context, conn router.Connection, amount string) (repository.TransactionRecord, error)
	CreateTokenization(ctx context.Context, conn router.Connection) (repository.TransactionRecord, error)
	ChargeToken(ctx context.Context, conn router.Connection, token, amount string) (repository.TransactionRecord, error)
	DeleteToken(ctx context.Context, conn router.Connection, token string) (repository.TransactionRecord, error)
	ListCards(ctx context.Context, conn router.Connection) ([]repository.CardToken, error)
	Disconnect(conn router.Connection)
}

// Handler принимает websocket соединения и передаёт события координатору
type Handler struct {
	logger   *zap.Logger
	coord    Coordinator
	upgrader websocket.Upgrader
}

// NewHandler создаёт websocket handler
func NewHandler(logger *zap.Logger, coord Coordinator) *Handler {
	return &Handler{
		logger: logger,
		coord:  coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// демо-клиент открывается с любого origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP апгрейдит запрос и читает события до закрытия соединения
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, writeTimeout)
	log = log.With(zap.String("connection_id", conn.ID()))
	log.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

	// операции не отменяются при отключении клиента: результат всё равно нужно записать
	ctx := context.WithoutCancel(r.Context())

	done := make(chan struct{})
	var inflight sync.WaitGroup
	defer func() {
		close(done)
		conn.close()
		// регистрации, сделанные незавершёнными событиями, снимаются вместе с остальными
		inflight.Wait()
		h.coord.Disconnect(conn)
		log.Info("client disconnected")
	}()
	go h.keepAlive(conn, done, log)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.Emit("error_message", "Malformed message: "+err.Error())
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			h.dispatch(ctx, conn, frame, log)
		}()
	}
}

func (h *Handler) keepAlive(conn *Conn, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch выполняет одно событие клиента; ошибки уже доставлены клиенту координатором
func (h *Handler) dispatch(ctx context.Context, conn *Conn, frame Frame, log *zap.Logger) {
	event := frame.Event
	if canonical, ok := aliases[event]; ok {
		event = canonical
	}
	log.Debug("client event", zap.String("event", event))

	var err error
	switch event {
	case EventCreateTokenization:
		_, err = h.coord.CreateTokenization(ctx, conn)
	case EventStartTransaction:
		var amount string
		if amount, err = decodeAmountArgs(frame.Data); err != nil {
			_ = conn.Emit("error_message", err.Error())
			return
		}
		_, err = h.coord.StartTransaction(ctx, conn, amount)
	case EventChargeToken:
		var token, amount string
		if token, amount, err = decodeChargeArgs(frame.Data); err != nil {
			_ = conn.Emit("transaction_error", err.Error())
			return
		}
		_, err = h.coord.ChargeToken(ctx, conn, token, amount)
	case EventDeleteToken:
		var token string
		if token, err = decodeTokenArgs(frame.Data); err != nil {
			_ = conn.Emit("error_message", err.Error())
			return
		}
		_, err = h.coord.DeleteToken(ctx, conn, token)
	case EventGetCards:
		_, err = h.coord.ListCards(ctx, conn)
	default:
		_ = conn.Emit("error_message", fmt.Sprintf("Unknown event %q", frame.Event))
		return
	}

	if err != nil {
		log.Info("client event failed", zap.String("event", event), zap.Error(err))
	}
}

// decodeAmountArgs: {"amount": "10.00"} | {"amount": 10} | "10.00" | 10
func decodeAmountArgs(data json.RawMessage) (string, error) {
	var obj struct {
		Amount json.RawMessage `json:"amount"`
	}
	if isObject(data) {
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("Malformed amount: %w", err)
		}
		return scalar(obj.Amount, "amount")
	}
	return scalar(data, "amount")
}

// decodeChargeArgs: {"token": "...", "amount": ...} | ["token", amount]
func decodeChargeArgs(data json.RawMessage) (string, string, error) {
	if isObject(data) {
		var obj struct {
			Token  json.RawMessage `json:"token"`
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", "", fmt.Errorf("Malformed charge request: %w", err)
		}
		token, err := scalar(obj.Token, "token")
		if err != nil {
			return "", "", err
		}
		amount, err := scalar(obj.Amount, "amount")
		return token, amount, err
	}

	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil || len(args) != 2 {
		return "", "", errors.New("Malformed charge request: expected token and amount")
	}
	token, err := scalar(args[0], "token")
	if err != nil {
		return "", "", err
	}
	amount, err := scalar(args[1], "amount")
	return token, amount, err
}

// decodeTokenArgs: {"token": "..."} | "..."
func decodeTokenArgs(data json.RawMessage) (string, error) {
	if isObject(data) {
		var obj struct {
			Token json.RawMessage `json:"token"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("Malformed token: %w", err)
		}
		return scalar(obj.Token, "token")
	}
	return scalar(data, "token")
}

func isObject(data json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(data)), "{")
}

// scalar строка или число JSON как текст
func scalar(data json.RawMessage, field string) (string, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return "", fmt.Errorf("Missing %s", field)
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("Missing %s", field)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("Malformed %s", field)
}
