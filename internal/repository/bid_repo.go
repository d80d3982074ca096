package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/normalize"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const bidColumns = `id, bounty_id, bidder_address, experience, plan_of_action, timeline, additional_notes,
	deliverables, proposed_amount, payment_option, payment_details, answers, status,
	COALESCE(reviewer_address, ''), COALESCE(final_approver_address, ''), submitted_at, reviewed_at, COALESCE(reviewed_by, '')`

const reviewColumns = `id, bid_id, reviewer_address, review_type, status, comments, created_at, updated_at`

// BidRepository - интерфейс для работы с предложениями.
type BidRepository interface {
	CreateBid(ctx context.Context, bid models.Bid, txHash string) (*models.Bid, error)
	GetBid(ctx context.Context, bidId string) (*models.Bid, error)
	GetBountyBids(ctx context.Context, bountyId string, statuses []string, limit, offset int) ([]models.Bid, error)
	ApplyApproval(ctx context.Context, approval models.BidApprovalApply, txHash string) (*models.Bid, error)
	ApplyRejection(ctx context.Context, review models.BidReview) (*models.Bid, error)
	GetBidReviews(ctx context.Context, bidId string) ([]models.BidReview, error)
}

// PostgresBidRepository - реализация BidRepository для базы данных.
type PostgresBidRepository struct {
	DB DBTX
}

// NewPostgresBidRepository создает новый экземпляр PostgresBidRepository.
func NewPostgresBidRepository(db DBTX) *PostgresBidRepository {
	return &PostgresBidRepository{DB: db}
}

// CreateBid создает новое предложение. txHash передается, если предложение
// было зарегистрировано в контракте; повторная запись с тем же ID ничего не меняет.
func (r *PostgresBidRepository) CreateBid(ctx context.Context, bid models.Bid, txHash string) (*models.Bid, error) {
	deliverables, err := json.Marshal(bid.Deliverables)
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(bid.PaymentDetails)
	if err != nil {
		return nil, err
	}
	answers, err := json.Marshal(bid.Answers)
	if err != nil {
		return nil, err
	}

	insertQuery := `INSERT INTO bids (id, bounty_id, bidder_address, experience, plan_of_action, timeline, additional_notes,
	                    deliverables, proposed_amount, payment_option, payment_details, answers, status, submitted_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	                ON CONFLICT (id) DO NOTHING`
	err = inTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := markApplied(ctx, tx, txHash, models.OpSubmitBid, bid.ID, bid); err != nil {
			return err
		}
		_, err := tx.Exec(
			ctx,
			insertQuery,
			bid.ID,
			bid.BountyID,
			bid.BidderAddress,
			bid.Experience,
			bid.PlanOfAction,
			bid.Timeline,
			bid.AdditionalNotes,
			string(deliverables),
			bid.ProposedAmount,
			bid.PaymentOption,
			string(details),
			answers,
			bid.Status,
			bid.SubmittedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetBid возвращает предложение по ID.
func (r *PostgresBidRepository) GetBid(ctx context.Context, bidId string) (*models.Bid, error) {
	bid, err := scanBid(r.DB.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidId))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("repository.getBid", "bid not found")
	}
	return bid, err
}

// GetBountyBids возвращает список предложений по баунти.
func (r *PostgresBidRepository) GetBountyBids(ctx context.Context, bountyId string, statuses []string, limit, offset int) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE bounty_id = $1`
	args := []interface{}{bountyId}
	argIndex := 2

	if len(statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY submitted_at LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

// ApplyApproval записывает одобрение предложения после подтверждения assignBounty.
// Все изменения выполняются в одной транзакции и привязаны к хэшу транзакции контракта.
func (r *PostgresBidRepository) ApplyApproval(ctx context.Context, a models.BidApprovalApply, txHash string) (*models.Bid, error) {
	const op = "repository.applyApproval"
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		applied, err := markApplied(ctx, tx, txHash, models.OpApproveBid, a.BidID, a)
		if err != nil || applied {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE bounties SET status = $1, version = version + 1
			 WHERE id = $2 AND version = $3 AND status = $4`,
			models.InProgressBounty, a.BountyID, a.ExpectedVersion, models.OpenBounty)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.NewConflictError(op, "bounty is no longer open or was modified concurrently")
		}

		tag, err = tx.Exec(ctx,
			`UPDATE bids SET status = $1, reviewer_address = $2, final_approver_address = $3, reviewed_at = $4, reviewed_by = $5
			 WHERE id = $6 AND status = $7`,
			models.ApprovedBid, a.TechnicalReviewer, a.FinalApprover, a.ReviewedAt, a.ReviewedBy, a.BidID, models.PendingBid)
		if uniqueViolation(err) {
			return models.NewConflictError(op, "another bid is already approved for this bounty")
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.NewConflictError(op, "bid is no longer pending")
		}

		if _, err = tx.Exec(ctx,
			`UPDATE bids SET status = $1 WHERE bounty_id = $2 AND status = $3 AND id <> $4`,
			models.ArchivedBid, a.BountyID, models.PendingBid, a.BidID); err != nil {
			return err
		}

		return insertReview(ctx, tx, models.BidReview{
			ID:              a.ReviewID,
			BidID:           a.BidID,
			ReviewerAddress: a.ReviewedBy,
			ReviewType:      models.FinalReview,
			Status:          models.ApprovedReview,
			CreatedAt:       a.ReviewedAt,
			UpdatedAt:       a.ReviewedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetBid(ctx, a.BidID)
}

// ApplyRejection отклоняет предложение и сохраняет финальное ревью с причиной.
func (r *PostgresBidRepository) ApplyRejection(ctx context.Context, review models.BidReview) (*models.Bid, error) {
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE bids SET status = $1, reviewed_at = $2, reviewed_by = $3 WHERE id = $4 AND status = $5`,
			models.RejectedBid, review.CreatedAt, review.ReviewerAddress, review.BidID, models.PendingBid)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.NewConflictError("repository.applyRejection", "bid is no longer pending")
		}
		return insertReview(ctx, tx, review)
	})
	if err != nil {
		return nil, err
	}
	return r.GetBid(ctx, review.BidID)
}

// GetBidReviews получает список ревью по предложению.
func (r *PostgresBidRepository) GetBidReviews(ctx context.Context, bidId string) ([]models.BidReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM bid_reviews WHERE bid_id = $1 ORDER BY created_at DESC`
	rows, err := r.DB.Query(ctx, query, bidId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.BidReview
	for rows.Next() {
		var review models.BidReview
		if err := rows.Scan(
			&review.ID,
			&review.BidID,
			&review.ReviewerAddress,
			&review.ReviewType,
			&review.Status,
			&review.Comments,
			&review.CreatedAt,
			&review.UpdatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

func insertReview(ctx context.Context, tx pgx.Tx, review models.BidReview) error {
	insertQuery := `INSERT INTO bid_reviews (` + reviewColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := tx.Exec(
		ctx,
		insertQuery,
		review.ID,
		review.BidID,
		review.ReviewerAddress,
		review.ReviewType,
		review.Status,
		review.Comments,
		review.CreatedAt,
		review.UpdatedAt)
	return err
}

// scanBid читает предложение и приводит deliverables и payment_details к каноническому виду.
func scanBid(row pgx.Row) (*models.Bid, error) {
	var bid models.Bid
	var deliverables, details *string
	var answers []byte
	if err := row.Scan(
		&bid.ID,
		&bid.BountyID,
		&bid.BidderAddress,
		&bid.Experience,
		&bid.PlanOfAction,
		&bid.Timeline,
		&bid.AdditionalNotes,
		&deliverables,
		&bid.ProposedAmount,
		&bid.PaymentOption,
		&details,
		&answers,
		&bid.Status,
		&bid.ReviewerAddress,
		&bid.FinalApproverAddress,
		&bid.SubmittedAt,
		&bid.ReviewedAt,
		&bid.ReviewedBy); err != nil {
		return nil, err
	}

	if deliverables != nil {
		bid.Deliverables = normalize.Deliverables([]byte(*deliverables))
	}
	if details != nil {
		bid.PaymentDetails = decodePaymentDetails(bid.PaymentOption, *details)
	} else {
		bid.PaymentDetails = models.PaymentDetails{Kind: string(bid.PaymentOption)}
	}
	if len(answers) > 0 {
		_ = json.Unmarshal(answers, &bid.Answers)
	}
	return &bid, nil
}

// decodePaymentDetails сначала пробует канонический формат, затем исторические.
func decodePaymentDetails(option models.PaymentOption, raw string) models.PaymentDetails {
	var canonical models.PaymentDetails
	if err := json.Unmarshal([]byte(raw), &canonical); err == nil && canonical.Kind != "" {
		return canonical
	}
	return normalize.PaymentDetails(option, []byte(raw))
}
