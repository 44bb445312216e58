package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/platform/observability"
)

const tracerName = "paystation-relay/gateway"

// TokenDeletedCode код результата удаления токена: карта удалена на шлюзе
const TokenDeletedCode = 34

// maxResponseSize ограничение на тело ответа шлюза
const maxResponseSize = 1 << 20

// Config параметры подключения к Paystation
type Config struct {
	URL          string
	LookupURL    string
	PaystationID string
	GatewayID    string
	TestMode     bool
	Timeout      time.Duration
}

// Snapshot состояние транзакции, как его сообщил шлюз (lookup или POST-back)
type Snapshot struct {
	TransactionID   string `json:"transactionId"`
	MerchantSession string `json:"merchantSession,omitempty"`
	ErrorCode       int    `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	CardType        string `json:"cardType,omitempty"`
	RequestIP       string `json:"requestIp,omitempty"`
	TransactionTime string `json:"transactionTime,omitempty"`
}

// Resolved возвращает true, если шлюз сообщил окончательный результат (успех или отказ)
func (s Snapshot) Resolved() bool {
	return s.ErrorCode >= 0
}

// Client клиент Paystation: отправляет form POST, разбирает XML ответы,
// сохраняет результат каждой операции в TransactionStore до возврата вызывающему.
type Client struct {
	cfg    Config
	http   *http.Client
	store  repository.TransactionStore
	cards  repository.CardStore
	logger *zap.Logger

	newSession func() string
}

// NewClient создаёт клиента шлюза
func NewClient(cfg Config, store repository.TransactionStore, cards repository.CardStore, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: timeout},
		store:      store,
		cards:      cards,
		logger:     logger,
		newSession: uuid.NewString,
	}
}

// InitiateTokenization запрашивает у шлюза страницу сохранения карты
func (c *Client) InitiateTokenization(ctx context.Context) (rec repository.TransactionRecord, err error) {
	session := c.newSession()
	ctx, end := observability.StartClientSpan(ctx, tracerName, "paystation.initiate_tokenization",
		attribute.String("paystation.merchant_session", session))
	defer func() { end(err) }()

	form := c.baseForm(session)
	form.Set("pstn_fp", "t")
	form.Set("pstn_fs", "t")

	body, err := c.post(ctx, "createToken", c.cfg.URL, form)
	if err != nil {
		return repository.TransactionRecord{}, err
	}
	return c.handleInitiation(ctx, "createToken", body, repository.TransactionRecord{
		MerchantSession: session,
		Kind:            repository.KindTokenization,
	})
}

// InitiateTransaction запрашивает у шлюза страницу оплаты на сумму amount (основные единицы)
func (c *Client) InitiateTransaction(ctx context.Context, amount, reference string) (rec repository.TransactionRecord, err error) {
	cents, err := ToMinorUnits(amount)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	session := c.newSession()
	ctx, end := observability.StartClientSpan(ctx, tracerName, "paystation.initiate_transaction",
		attribute.String("paystation.merchant_session", session),
		attribute.Int64("paystation.amount", cents))
	defer func() { end(err) }()

	form := c.baseForm(session)
	form.Set("pstn_am", strconv.FormatInt(cents, 10))
	if reference != "" {
		form.Set("pstn_mr", reference)
	}
	if c.cfg.TestMode {
		form.Set("pstn_tm", "t")
	}

	body, err := c.post(ctx, "createThreePartyTransaction", c.cfg.URL, form)
	if err != nil {
		return repository.TransactionRecord{}, err
	}
	return c.handleInitiation(ctx, "createThreePartyTransaction", body, repository.TransactionRecord{
		MerchantSession:   session,
		MerchantReference: reference,
		Kind:              repository.KindPurchase,
	})
}

// ChargeToken списывает amount с сохранённой карты (2-party, результат приходит сразу)
func (c *Client) ChargeToken(ctx context.Context, token, amount, reference string) (rec repository.TransactionRecord, err error) {
	if token == "" {
		return repository.TransactionRecord{}, fmt.Errorf("%w: token is required", repository.ErrInvalidInput)
	}
	cents, err := ToMinorUnits(amount)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	session := c.newSession()
	ctx, end := observability.StartClientSpan(ctx, tracerName, "paystation.charge_token",
		attribute.String("paystation.merchant_session", session),
		attribute.Int64("paystation.amount", cents))
	defer func() { end(err) }()

	form := c.baseForm(session)
	form.Set("pstn_am", strconv.FormatInt(cents, 10))
	form.Set("pstn_ft", token)
	form.Set("pstn_fp", "t")
	form.Set("pstn_2p", "t")
	if reference != "" {
		form.Set("pstn_mr", reference)
	}

	const op = "billToken"
	body, err := c.post(ctx, op, c.cfg.URL, form)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	res, err := decodeResult(op, body, rootFuturePayment)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	rec = repository.TransactionRecord{
		TransactionID:     res.TransactionID,
		MerchantSession:   session,
		MerchantReference: reference,
		Kind:              repository.KindTokenCharge,
		Status:            repository.StatusResolved,
		ErrorCode:         res.code,
		ErrorMessage:      res.ErrorMessage,
		Amount:            cents,
		Token:             token,
		PaymentRequestAt:  res.PaymentRequestTime,
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return repository.TransactionRecord{}, fmt.Errorf("failed to save charge: %w", err)
	}
	return rec, nil
}

// DeleteToken удаляет сохранённую карту на шлюзе; при коде 34 карта удаляется и из CardStore
func (c *Client) DeleteToken(ctx context.Context, token, reference string) (rec repository.TransactionRecord, err error) {
	if token == "" {
		return repository.TransactionRecord{}, fmt.Errorf("%w: token is required", repository.ErrInvalidInput)
	}

	session := c.newSession()
	ctx, end := observability.StartClientSpan(ctx, tracerName, "paystation.delete_token",
		attribute.String("paystation.merchant_session", session))
	defer func() { end(err) }()

	form := c.baseForm(session)
	form.Set("pstn_ft", token)
	form.Set("pstn_fp", "t")
	form.Set("pstn_fx", "t")
	form.Set("pstn_2p", "t")
	if reference != "" {
		form.Set("pstn_mr", reference)
	}

	const op = "deleteToken"
	body, err := c.post(ctx, op, c.cfg.URL, form)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	res, err := decodeResult(op, body, rootResponse)
	if err != nil {
		return repository.TransactionRecord{}, err
	}

	rec = repository.TransactionRecord{
		TransactionID:     res.TransactionID,
		MerchantSession:   session,
		MerchantReference: reference,
		Kind:              repository.KindTokenDelete,
		Status:            repository.StatusResolved,
		ErrorCode:         res.code,
		ErrorMessage:      res.ErrorMessage,
		Token:             token,
		PaymentRequestAt:  res.PaymentRequestTime,
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return repository.TransactionRecord{}, fmt.Errorf("failed to save token deletion: %w", err)
	}

	if rec.ErrorCode == TokenDeletedCode {
		if err := c.cards.Delete(ctx, token); err != nil {
			c.logger.Error("failed to delete card", zap.Error(err), zap.String("token", token))
		}
	}
	return rec, nil
}

// Lookup запрашивает текущее состояние транзакции (Quick Lookup API).
// Метаданные шлюза записываются в store; статус и код результата меняет только координатор.
func (c *Client) Lookup(ctx context.Context, transactionID string) (snap Snapshot, err error) {
	ctx, end := observability.StartClientSpan(ctx, tracerName, "paystation.lookup",
		attribute.String("paystation.transaction_id", transactionID))
	defer func() { end(err) }()

	form := url.Values{}
	form.Set("pi", c.cfg.PaystationID)
	form.Set("ti", transactionID)

	const op = "getTransactionFromPaystation"
	body, err := c.post(ctx, op, c.cfg.LookupURL, form)
	if err != nil {
		return Snapshot{}, err
	}

	var resp quickLookupResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return Snapshot{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Error looking up transaction: " + err.Error()}
	}

	snap = Snapshot{TransactionID: transactionID, ErrorCode: repository.ErrorCodeUnknown}
	if resp.Result == nil || resp.Result.TransactionID == "" {
		return snap, nil
	}

	r := resp.Result
	code, err := parseCode(r.ErrorCode)
	if err != nil {
		return Snapshot{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "malformed error code " + strconv.Quote(r.ErrorCode)}
	}
	amount := r.Amount
	if amount == "" {
		amount = r.PurchaseAmount
	}
	snap = Snapshot{
		TransactionID:   strings.TrimSpace(r.TransactionID),
		MerchantSession: r.MerchantSession,
		ErrorCode:       code,
		ErrorMessage:    r.ErrorMessage,
		Amount:          parseCents(amount),
		CardType:        r.CardType,
		RequestIP:       r.RequestIP,
		TransactionTime: r.TransactionTime,
	}

	patch := repository.TransactionPatch{
		CardType:      &snap.CardType,
		RequestIP:     &snap.RequestIP,
		TransactionAt: &snap.TransactionTime,
	}
	if snap.Amount > 0 {
		patch.Amount = &snap.Amount
	}
	if _, err := c.store.Update(ctx, transactionID, patch); err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.logger.Error("failed to store lookup details", zap.Error(err), zap.String("transaction_id", transactionID))
	}
	return snap, nil
}

func (c *Client) baseForm(session string) url.Values {
	form := url.Values{}
	form.Set("paystation", "_empty")
	form.Set("pstn_pi", c.cfg.PaystationID)
	form.Set("pstn_gi", c.cfg.GatewayID)
	form.Set("pstn_ms", session)
	form.Set("pstn_nr", "t")
	return form
}

// post отправляет form POST; любая ошибка без тела ответа = TransportError
func (c *Client) post(ctx context.Context, op, target string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("paystation status %d", resp.StatusCode)}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &TransportError{Op: op, Err: errors.New("empty response")}
	}

	c.logger.Debug("paystation response received",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

// handleInitiation разбирает ответ на инициацию (purchase или tokenization) и сохраняет запись.
// Отказ с PaystationErrorCode сохраняется как errored с этим кодом.
func (c *Client) handleInitiation(ctx context.Context, op string, body []byte, rec repository.TransactionRecord) (repository.TransactionRecord, error) {
	root, err := rootName(body)
	if err != nil {
		return repository.TransactionRecord{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Unexpected response from Paystation: " + err.Error()}
	}

	switch root {
	case rootInitiation:
	case rootFuturePayment, rootResponse:
		res, err := decodeResult(op, body, root)
		if err != nil {
			return repository.TransactionRecord{}, err
		}
		return repository.TransactionRecord{}, &DeclineError{Op: op, Code: res.code, Message: res.ErrorMessage}
	default:
		return repository.TransactionRecord{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Unexpected response from Paystation: root " + root}
	}

	var resp initiationResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return repository.TransactionRecord{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Unexpected response from Paystation: " + err.Error()}
	}

	rec.TransactionID = strings.TrimSpace(resp.TransactionID)
	rec.PaymentRequestAt = resp.PaymentRequestTime

	if resp.DigitalOrder != "" && rec.TransactionID != "" {
		rec.Status = repository.StatusPending
		rec.ErrorCode = repository.ErrorCodeUnknown
		rec.DigitalOrderURL = strings.TrimSpace(resp.DigitalOrder)
		if err := c.store.Save(ctx, rec); err != nil {
			return repository.TransactionRecord{}, fmt.Errorf("failed to save initiation: %w", err)
		}
		return rec, nil
	}

	code, err := parseCode(resp.PaystationErrorCode)
	if err != nil {
		code = repository.ErrorCodeUnknown
	}
	if code == repository.ErrorCodeUnknown {
		return repository.TransactionRecord{}, &DeclineError{Op: op, Code: code, Message: "Failed to create new transaction. Unexpected response from Paystation."}
	}

	msg := resp.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("Paystation error code:%d Failed to create new transaction.", code)
	}
	rec.Status = repository.StatusErrored
	rec.ErrorCode = code
	rec.ErrorMessage = msg
	if rec.TransactionID != "" {
		if err := c.store.Save(ctx, rec); err != nil {
			c.logger.Error("failed to save declined initiation", zap.Error(err), zap.String("transaction_id", rec.TransactionID))
		}
	} else {
		c.logger.Warn("declined initiation without transaction id",
			zap.String("op", op),
			zap.String("merchant_session", rec.MerchantSession),
			zap.Int("error_code", code),
		)
	}
	return rec, &DeclineError{Op: op, Code: code, Message: msg}
}

type result struct {
	resultResponse
	code int
}

// decodeResult разбирает ответ с узлами ec/em; root - ожидаемый корневой элемент
func decodeResult(op string, body []byte, root string) (result, error) {
	var res resultResponse
	if err := xml.Unmarshal(body, &res); err != nil {
		return result{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Unexpected response from Paystation: " + err.Error()}
	}
	code, err := parseCode(res.ErrorCode)
	if err != nil {
		return result{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "malformed error code " + strconv.Quote(res.ErrorCode)}
	}
	if res.XMLName.Local != root {
		// например PaystationFuturePaymentResponse на удаление токена: это узел ошибки
		if res.XMLName.Local == rootFuturePayment || res.XMLName.Local == rootResponse {
			return result{}, &DeclineError{Op: op, Code: code, Message: res.ErrorMessage}
		}
		return result{}, &DeclineError{Op: op, Code: repository.ErrorCodeUnknown, Message: "Unexpected response from Paystation: root " + res.XMLName.Local}
	}
	if strings.TrimSpace(res.TransactionID) == "" {
		return result{}, &DeclineError{Op: op, Code: code, Message: res.ErrorMessage}
	}
	res.TransactionID = strings.TrimSpace(res.TransactionID)
	return result{resultResponse: res, code: code}, nil
}
