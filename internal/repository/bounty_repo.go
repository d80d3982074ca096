package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const bountyColumns = `id, onchain_id, title, description, category, value_amount, value_token, requirements, questions,
	payment_structure, upfront_amount, completion_amount, status, creator_address, version, created_at`

// BountyRepository - интерфейс для работы с баунти.
type BountyRepository interface {
	CreateBounty(ctx context.Context, bounty models.Bounty, txHash string) (*models.Bounty, error)
	GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error)
	GetBounties(ctx context.Context, statuses []string, limit, offset int) ([]models.Bounty, error)
	TransitionBounty(ctx context.Context, transition models.BountyTransitionApply, txHash string, op models.ApplyOperation) (*models.Bounty, error)
}

// PostgresBountyRepository - реализация BountyRepository для базы данных.
type PostgresBountyRepository struct {
	DB DBTX
}

// NewPostgresBountyRepository создаёт новый экземпляр PostgresBountyRepository.
func NewPostgresBountyRepository(db DBTX) *PostgresBountyRepository {
	return &PostgresBountyRepository{DB: db}
}

// CreateBounty сохраняет баунти. Повторная вставка того же onchain_id возвращает сохраненную запись.
func (r *PostgresBountyRepository) CreateBounty(ctx context.Context, bounty models.Bounty, txHash string) (*models.Bounty, error) {
	var created *models.Bounty
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := markApplied(ctx, tx, txHash, models.OpPublishBounty, bounty.OnchainID, bounty); err != nil {
			return err
		}

		insertQuery := `INSERT INTO bounties (` + bountyColumns + `)
		                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		                ON CONFLICT (onchain_id) DO NOTHING
		                RETURNING ` + bountyColumns
		b, err := scanBounty(tx.QueryRow(
			ctx,
			insertQuery,
			bounty.ID,
			bounty.OnchainID,
			bounty.Title,
			bounty.Description,
			bounty.Category,
			bounty.Value.Amount,
			bounty.Value.Token,
			nonNil(bounty.Requirements),
			nonNil(bounty.Questions),
			bounty.PaymentStructure,
			bounty.UpfrontAmount,
			bounty.CompletionAmount,
			bounty.Status,
			bounty.CreatorAddress,
			bounty.Version,
			bounty.CreatedAt))
		if errors.Is(err, pgx.ErrNoRows) {
			b, err = scanBounty(tx.QueryRow(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE onchain_id = $1`, bounty.OnchainID))
		}
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetBounty возвращает баунти по ID.
func (r *PostgresBountyRepository) GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error) {
	b, err := scanBounty(r.DB.QueryRow(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, bountyId))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("repository.getBounty", "bounty not found")
	}
	return b, err
}

// GetBounties возвращает список баунти с фильтром по статусам.
func (r *PostgresBountyRepository) GetBounties(ctx context.Context, statuses []string, limit, offset int) ([]models.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties`
	var args []interface{}
	argIndex := 1

	if len(statuses) > 0 {
		query += fmt.Sprintf(" WHERE status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bounties []models.Bounty
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, err
		}
		bounties = append(bounties, *b)
	}
	return bounties, rows.Err()
}

// TransitionBounty меняет статус баунти, если версия и текущий статус совпадают с ожидаемыми.
func (r *PostgresBountyRepository) TransitionBounty(ctx context.Context, t models.BountyTransitionApply, txHash string, op models.ApplyOperation) (*models.Bounty, error) {
	var updated *models.Bounty
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		applied, err := markApplied(ctx, tx, txHash, op, t.BountyID, t)
		if err != nil {
			return err
		}
		if applied {
			updated, err = scanBounty(tx.QueryRow(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, t.BountyID))
			return err
		}

		from := make([]string, len(t.From))
		for i, s := range t.From {
			from[i] = string(s)
		}
		updateQuery := `UPDATE bounties SET status = $1, version = version + 1
		                WHERE id = $2 AND version = $3 AND status = ANY($4)
		                RETURNING ` + bountyColumns
		updated, err = scanBounty(tx.QueryRow(ctx, updateQuery, t.To, t.BountyID, t.ExpectedVersion, pq.Array(from)))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewConflictError("repository.transitionBounty", "bounty was modified concurrently")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanBounty(row pgx.Row) (*models.Bounty, error) {
	var b models.Bounty
	if err := row.Scan(
		&b.ID,
		&b.OnchainID,
		&b.Title,
		&b.Description,
		&b.Category,
		&b.Value.Amount,
		&b.Value.Token,
		&b.Requirements,
		&b.Questions,
		&b.PaymentStructure,
		&b.UpfrontAmount,
		&b.CompletionAmount,
		&b.Status,
		&b.CreatorAddress,
		&b.Version,
		&b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
