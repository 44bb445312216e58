package service

import (
	"context"
	"time"

	"github.com/shestoi/paystation-relay/internal/gateway"
	"github.com/shestoi/paystation-relay/internal/repository"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Gateway --dir=. --output=./mocks --outpkg=mocks

// Gateway операции платёжного шлюза, которые нужны координатору.
// Реализация сохраняет результат каждой операции в TransactionStore до возврата.
type Gateway interface {
	InitiateTokenization(ctx context.Context) (repository.TransactionRecord, error)
	InitiateTransaction(ctx context.Context, amount, reference string) (repository.TransactionRecord, error)
	ChargeToken(ctx context.Context, token, amount, reference string) (repository.TransactionRecord, error)
	DeleteToken(ctx context.Context, token, reference string) (repository.TransactionRecord, error)
	Lookup(ctx context.Context, transactionID string) (gateway.Snapshot, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=CompletionPublisher --dir=. --output=./mocks --outpkg=mocks

// CompletionPublisher публикует событие о завершении транзакции (аудит, сверка)
type CompletionPublisher interface {
	PublishTransactionCompleted(ctx context.Context, event TransactionCompletedEvent) error
}

// TransactionCompletedEvent событие: транзакция перешла в терминальный статус
type TransactionCompletedEvent struct {
	EventID           string
	EventType         string // "paystation.transaction.completed"
	EventVersion      int
	OccurredAt        time.Time
	Path              string // push | pull | direct | initiation
	TransactionID     string
	MerchantSession   string
	MerchantReference string
	Kind              string
	Status            string
	ErrorCode         int
	ErrorMessage      string
	Amount            int64
	CardType          string
}
