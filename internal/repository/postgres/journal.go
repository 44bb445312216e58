package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// Journal реализует repository.Journal используя PostgreSQL
// Каждая запись хранится строкой в таблице transactions (upsert по transaction_id)
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal создаёт новый PostgreSQL журнал
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Put сохраняет актуальное состояние записи
func (j *Journal) Put(ctx context.Context, rec repository.TransactionRecord) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO transactions (
		   transaction_id, merchant_session, merchant_reference, kind, status,
		   error_code, error_message, digital_order_url, amount, card_type,
		   token, request_ip, payment_request_at, transaction_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (transaction_id) DO UPDATE SET
		   merchant_session = EXCLUDED.merchant_session,
		   merchant_reference = EXCLUDED.merchant_reference,
		   kind = EXCLUDED.kind,
		   status = EXCLUDED.status,
		   error_code = EXCLUDED.error_code,
		   error_message = EXCLUDED.error_message,
		   digital_order_url = EXCLUDED.digital_order_url,
		   amount = EXCLUDED.amount,
		   card_type = EXCLUDED.card_type,
		   token = EXCLUDED.token,
		   request_ip = EXCLUDED.request_ip,
		   payment_request_at = EXCLUDED.payment_request_at,
		   transaction_at = EXCLUDED.transaction_at,
		   updated_at = EXCLUDED.updated_at`,
		rec.TransactionID, rec.MerchantSession, rec.MerchantReference, string(rec.Kind), string(rec.Status),
		rec.ErrorCode, rec.ErrorMessage, rec.DigitalOrderURL, rec.Amount, rec.CardType,
		rec.Token, rec.RequestIP, rec.PaymentRequestAt, rec.TransactionAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", rec.TransactionID, err)
	}
	return nil
}

// Load возвращает все записи в порядке создания
func (j *Journal) Load(ctx context.Context) ([]repository.TransactionRecord, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT transaction_id, merchant_session, merchant_reference, kind, status,
		        error_code, error_message, digital_order_url, amount, card_type,
		        token, request_ip, payment_request_at, transaction_at, created_at, updated_at
		 FROM transactions
		 ORDER BY created_at, transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.TransactionRecord, error) {
		var (
			rec          repository.TransactionRecord
			kind, status string
		)
		err := row.Scan(
			&rec.TransactionID, &rec.MerchantSession, &rec.MerchantReference, &kind, &status,
			&rec.ErrorCode, &rec.ErrorMessage, &rec.DigitalOrderURL, &rec.Amount, &rec.CardType,
			&rec.Token, &rec.RequestIP, &rec.PaymentRequestAt, &rec.TransactionAt, &rec.CreatedAt, &rec.UpdatedAt,
		)
		rec.Kind = repository.Kind(kind)
		rec.Status = repository.Status(status)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	return records, nil
}
