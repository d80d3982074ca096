package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/jackc/pgx/v5"
)

// AppliedTxRepository - интерфейс журнала подтвержденных транзакций.
type AppliedTxRepository interface {
	RecordPending(ctx context.Context, entry models.AppliedTransaction) error
	GetAppliedTx(ctx context.Context, txHash string) (*models.AppliedTransaction, error)
	ListPending(ctx context.Context, limit int) ([]models.AppliedTransaction, error)
}

// PostgresAppliedTxRepository - реализация AppliedTxRepository для базы данных.
type PostgresAppliedTxRepository struct {
	DB DBTX
}

// NewPostgresAppliedTxRepository создает новый экземпляр PostgresAppliedTxRepository.
func NewPostgresAppliedTxRepository(db DBTX) *PostgresAppliedTxRepository {
	return &PostgresAppliedTxRepository{DB: db}
}

// RecordPending сохраняет транзакцию, запись по которой не удалась. Уже примененные не трогает.
func (r *PostgresAppliedTxRepository) RecordPending(ctx context.Context, entry models.AppliedTransaction) error {
	query := `INSERT INTO applied_transactions (tx_hash, operation, subject_id, payload, status, created_at)
	          VALUES ($1, $2, $3, $4, 'pending', $5)
	          ON CONFLICT (tx_hash) DO NOTHING`
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := r.DB.Exec(ctx, query, entry.TxHash, entry.Operation, entry.SubjectID, []byte(payload), time.Now().UTC())
	return err
}

// GetAppliedTx возвращает запись журнала по хэшу транзакции.
func (r *PostgresAppliedTxRepository) GetAppliedTx(ctx context.Context, txHash string) (*models.AppliedTransaction, error) {
	query := `SELECT tx_hash, operation, subject_id, payload, status, created_at, applied_at
	          FROM applied_transactions WHERE tx_hash = $1`
	entry, err := scanAppliedTx(r.DB.QueryRow(ctx, query, txHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("repository.getAppliedTx", "transaction not recorded")
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListPending возвращает неприменные транзакции от старых к новым.
func (r *PostgresAppliedTxRepository) ListPending(ctx context.Context, limit int) ([]models.AppliedTransaction, error) {
	query := `SELECT tx_hash, operation, subject_id, payload, status, created_at, applied_at
	          FROM applied_transactions
	          WHERE status = 'pending'
	          ORDER BY created_at
	          LIMIT $1`
	rows, err := r.DB.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AppliedTransaction
	for rows.Next() {
		entry, err := scanAppliedTx(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanAppliedTx(row pgx.Row) (*models.AppliedTransaction, error) {
	var entry models.AppliedTransaction
	var payload []byte
	if err := row.Scan(
		&entry.TxHash,
		&entry.Operation,
		&entry.SubjectID,
		&payload,
		&entry.Status,
		&entry.CreatedAt,
		&entry.AppliedAt); err != nil {
		return nil, err
	}
	entry.Payload = payload
	return &entry, nil
}

// markApplied фиксирует транзакцию в журнале внутри tx.
// Возвращает true, если транзакция уже была применена ранее и запись нужно пропустить.
func markApplied(ctx context.Context, tx pgx.Tx, txHash string, op models.ApplyOperation, subjectID string, payload interface{}) (bool, error) {
	if txHash == "" {
		return false, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	query := `INSERT INTO applied_transactions (tx_hash, operation, subject_id, payload, status, created_at, applied_at)
	          VALUES ($1, $2, $3, $4, 'applied', $5, $5)
	          ON CONFLICT (tx_hash) DO UPDATE SET status = 'applied', applied_at = EXCLUDED.applied_at
	          WHERE applied_transactions.status = 'pending'
	          RETURNING tx_hash`
	var stored string
	err = tx.QueryRow(ctx, query, txHash, op, subjectID, body, now).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
