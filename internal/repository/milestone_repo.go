package repository

import (
	"context"
	"errors"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/jackc/pgx/v5"
)

const milestoneColumns = `id, bid_id, idx, description, due_date, payment_amount, status,
	completed_at, COALESCE(completed_by, ''), COALESCE(review_comments, '')`

// MilestoneRepository - интерфейс для работы с этапами.
type MilestoneRepository interface {
	CreateMilestones(ctx context.Context, apply models.MilestonesApply, txHash string) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, milestoneId string) (*models.Milestone, error)
	GetBidMilestones(ctx context.Context, bidId string) ([]models.Milestone, error)
	CompleteMilestone(ctx context.Context, apply models.MilestoneCompletionApply, txHash string) (*models.Milestone, error)
}

// PostgresMilestoneRepository - реализация MilestoneRepository для базы данных.
type PostgresMilestoneRepository struct {
	DB DBTX
}

// NewPostgresMilestoneRepository создает новый экземпляр PostgresMilestoneRepository.
func NewPostgresMilestoneRepository(db DBTX) *PostgresMilestoneRepository {
	return &PostgresMilestoneRepository{DB: db}
}

// CreateMilestones сохраняет график этапов целиком либо не сохраняет ничего.
func (r *PostgresMilestoneRepository) CreateMilestones(ctx context.Context, apply models.MilestonesApply, txHash string) ([]models.Milestone, error) {
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		applied, err := markApplied(ctx, tx, txHash, models.OpCreateMilestones, apply.BidID, apply)
		if err != nil || applied {
			return err
		}

		var existing int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM milestones WHERE bid_id = $1`, apply.BidID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return models.NewConflictError("repository.createMilestones", "milestones already exist for this bid")
		}

		batch := &pgx.Batch{}
		insertQuery := `INSERT INTO milestones (id, bid_id, idx, description, due_date, payment_amount, status)
		                VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, m := range apply.Milestones {
			batch.Queue(insertQuery, m.ID, apply.BidID, m.Index, m.Description, nullTime(m.DueDate), m.PaymentAmount, models.PendingMilestone)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, err
	}
	return r.GetBidMilestones(ctx, apply.BidID)
}

// GetMilestone возвращает этап по ID.
func (r *PostgresMilestoneRepository) GetMilestone(ctx context.Context, milestoneId string) (*models.Milestone, error) {
	m, err := scanMilestone(r.DB.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, milestoneId))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("repository.getMilestone", "milestone not found")
	}
	return m, err
}

// GetBidMilestones возвращает этапы предложения по порядку.
func (r *PostgresMilestoneRepository) GetBidMilestones(ctx context.Context, bidId string) ([]models.Milestone, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE bid_id = $1 ORDER BY idx`, bidId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// CompleteMilestone отмечает этап выполненным.
func (r *PostgresMilestoneRepository) CompleteMilestone(ctx context.Context, apply models.MilestoneCompletionApply, txHash string) (*models.Milestone, error) {
	var updated *models.Milestone
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		applied, err := markApplied(ctx, tx, txHash, models.OpApproveMilestone, apply.MilestoneID, apply)
		if err != nil {
			return err
		}
		if applied {
			updated, err = scanMilestone(tx.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, apply.MilestoneID))
			return err
		}

		updateQuery := `UPDATE milestones SET status = $1, completed_at = $2, completed_by = $3, review_comments = $4
		                WHERE id = $5 AND status = $6
		                RETURNING ` + milestoneColumns
		updated, err = scanMilestone(tx.QueryRow(ctx, updateQuery,
			models.CompletedMilestone, apply.CompletedAt, apply.CompletedBy, apply.Comments, apply.MilestoneID, models.PendingMilestone))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewConflictError("repository.completeMilestone", "milestone is already completed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	var due *time.Time
	if err := row.Scan(
		&m.ID,
		&m.BidID,
		&m.Index,
		&m.Description,
		&due,
		&m.PaymentAmount,
		&m.Status,
		&m.CompletedAt,
		&m.CompletedBy,
		&m.ReviewComments); err != nil {
		return nil, err
	}
	if due != nil {
		m.DueDate = *due
	}
	return &m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
