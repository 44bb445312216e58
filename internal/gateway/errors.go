package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount сумма не число или отрицательная
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidNotice входящее уведомление шлюза не распознано
	ErrInvalidNotice = errors.New("invalid paystation notice")
)

// TransportError шлюз не ответил (сеть, таймаут, не-2xx, нечитаемое тело)
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("No response from Paystation: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeclineError шлюз ответил узлом ошибки или ответ без ожидаемого узла успеха
type DeclineError struct {
	Op      string
	Code    int
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("%s: (Error code %d) %s", e.Op, e.Code, e.Message)
}

// IsTransport возвращает true, если err (или обёрнутая ошибка) транспортная
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsDecline извлекает DeclineError из цепочки ошибок
func AsDecline(err error) (*DeclineError, bool) {
	var de *DeclineError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
