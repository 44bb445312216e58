package repository

import (
	"context"
	"errors"
	"time"
)

// Status состояние транзакции в жизненном цикле
type Status string

const (
	// StatusPending - транзакция создана, результат ещё неизвестен
	StatusPending Status = "pending"
	// StatusResolved - шлюз сообщил окончательный результат (успех или отказ)
	StatusResolved Status = "resolved"
	// StatusErrored - транзакция завершилась локально: ошибка инициации, таймаут опроса
	StatusErrored Status = "errored"
)

// Terminal возвращает true для resolved и errored
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusErrored
}

// Kind тип операции на шлюзе
type Kind string

const (
	KindPurchase     Kind = "purchase"
	KindTokenization Kind = "tokenization"
	KindTokenCharge  Kind = "token_charge"
	KindTokenDelete  Kind = "token_delete"
)

// ErrorCodeUnknown - код ошибки ещё не известен
const ErrorCodeUnknown = -1

// TransactionRecord одна попытка транзакции на шлюзе
type TransactionRecord struct {
	TransactionID     string    `json:"transactionId"`
	MerchantSession   string    `json:"merchantSession"`
	MerchantReference string    `json:"merchantReference,omitempty"`
	Kind              Kind      `json:"kind"`
	Status            Status    `json:"status"`
	ErrorCode         int       `json:"errorCode"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	DigitalOrderURL   string    `json:"digitalOrderUrl,omitempty"`
	Amount            int64     `json:"amount,omitempty"` // в центах, как сообщил шлюз
	CardType          string    `json:"cardType,omitempty"`
	Token             string    `json:"token,omitempty"`
	RequestIP         string    `json:"requestIp,omitempty"`
	PaymentRequestAt  string    `json:"paymentRequestTime,omitempty"`
	TransactionAt     string    `json:"transactionTime,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Clone возвращает независимую копию записи (все поля значимые)
func (r TransactionRecord) Clone() TransactionRecord {
	return r
}

// TransactionPatch набор изменений записи; nil = поле не меняется.
// Идентификаторы (transactionId, merchantSession, merchantReference) не патчатся.
type TransactionPatch struct {
	Kind             *Kind
	Status           *Status
	ErrorCode        *int
	ErrorMessage     *string
	DigitalOrderURL  *string
	Amount           *int64
	CardType         *string
	Token            *string
	RequestIP        *string
	PaymentRequestAt *string
	TransactionAt    *string
}

// Apply применяет патч к записи
func (p TransactionPatch) Apply(r *TransactionRecord) {
	if p.Kind != nil {
		r.Kind = *p.Kind
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ErrorCode != nil {
		r.ErrorCode = *p.ErrorCode
	}
	if p.ErrorMessage != nil {
		r.ErrorMessage = *p.ErrorMessage
	}
	if p.DigitalOrderURL != nil {
		r.DigitalOrderURL = *p.DigitalOrderURL
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.CardType != nil {
		r.CardType = *p.CardType
	}
	if p.Token != nil {
		r.Token = *p.Token
	}
	if p.RequestIP != nil {
		r.RequestIP = *p.RequestIP
	}
	if p.PaymentRequestAt != nil {
		r.PaymentRequestAt = *p.PaymentRequestAt
	}
	if p.TransactionAt != nil {
		r.TransactionAt = *p.TransactionAt
	}
}

// CardToken токенизированная карта
type CardToken struct {
	Token            string `json:"token"`
	MaskedCardNumber string `json:"maskedCardNumber"`
	Expiry           string `json:"expiry"`
}

// TransactionStore хранилище транзакций с индексами по id, merchant session и merchant reference
type TransactionStore interface {
	// Save создаёт или перезаписывает запись; ErrInvalidInput без transactionId/merchantSession
	Save(ctx context.Context, rec TransactionRecord) error
	// GetByID возвращает копию записи или ErrNotFound
	GetByID(ctx context.Context, transactionID string) (TransactionRecord, error)
	// GetBySession возвращает копию записи или ErrNotFound
	GetBySession(ctx context.Context, merchantSession string) (TransactionRecord, error)
	// GetByReference возвращает копии всех записей группы merchantReference.
	// Reference - групповой ключ, поэтому отсутствие записей не ошибка: пустой срез и nil, не ErrNotFound.
	GetByReference(ctx context.Context, merchantReference string) ([]TransactionRecord, error)
	// Update применяет патч к существующей записи, ErrNotFound если записи нет
	Update(ctx context.Context, transactionID string, patch TransactionPatch) (TransactionRecord, error)
}

// CardStore хранилище токенизированных карт
type CardStore interface {
	// Save сохраняет карту; ErrInvalidInput если не хватает полей
	Save(ctx context.Context, card CardToken) error
	// Delete удаляет карту; удаление отсутствующей карты не ошибка
	Delete(ctx context.Context, token string) error
	// Get возвращает карту или ErrNotFound
	Get(ctx context.Context, token string) (CardToken, error)
	// List возвращает все карты, отсортированные по токену
	List(ctx context.Context) ([]CardToken, error)
}

// Journal долговременное хранилище записей транзакций (write-through из TransactionStore)
type Journal interface {
	// Put сохраняет актуальное состояние записи
	Put(ctx context.Context, rec TransactionRecord) error
	// Load возвращает все сохранённые записи
	Load(ctx context.Context) ([]TransactionRecord, error)
}

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput не хватает обязательных полей
	ErrInvalidInput = errors.New("invalid input")
)
