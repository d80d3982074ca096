package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/notify"
	"github.com/senyabanana/bounty-service/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReviewService - одобрение и отклонение предложений создателем баунти.
// Одобрение сначала подтверждается в контракте и только потом записывается в каталог.
type ReviewService struct {
	Bids     repository.BidRepository
	Bounties repository.BountyRepository
	Gateway  escrow.Gateway
	Notifier *notify.Emitter
	logger   *logrus.Logger
	writer   confirmedWriter
	now      func() time.Time
}

// NewReviewService создает новый экземпляр ReviewService.
func NewReviewService(d Deps) *ReviewService {
	return &ReviewService{
		Bids:     d.Bids,
		Bounties: d.Bounties,
		Gateway:  d.Gateway,
		Notifier: d.Notifier,
		logger:   d.Logger,
		writer:   d.writer(),
		now:      d.clock(),
	}
}

// ApproveBid назначает исполнителя и двух ревьюеров.
func (s *ReviewService) ApproveBid(ctx context.Context, bidId string, req models.ApprovalRequest) (approved *models.Bid, err error) {
	const op = "review.approve"
	defer func() { s.writer.observe(op, err) }()

	if err := validateID(op, "bid", bidId); err != nil {
		return nil, err
	}
	if !escrow.ValidAddress(req.CallerAddress) {
		return nil, models.NewValidationError(op, "invalid caller address")
	}
	if !escrow.ValidAddress(req.TechnicalReviewer) {
		return nil, models.NewValidationError(op, "invalid technical reviewer address")
	}
	if !escrow.ValidAddress(req.FinalApprover) {
		return nil, models.NewValidationError(op, "invalid final approver address")
	}
	if escrow.SameAddress(req.TechnicalReviewer, req.FinalApprover) {
		return nil, models.NewValidationError(op, "technical reviewer and final approver must be different")
	}

	bid, err := s.Bids.GetBid(ctx, bidId)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if escrow.SameAddress(req.TechnicalReviewer, bid.BidderAddress) || escrow.SameAddress(req.FinalApprover, bid.BidderAddress) {
		return nil, models.NewValidationError(op, "bidder cannot review their own work")
	}
	if bid.Status != models.PendingBid {
		return nil, models.NewConflictError(op, fmt.Sprintf("bid is already %s", bid.Status))
	}

	bounty, err := s.Bounties.GetBounty(ctx, bid.BountyID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if !escrow.SameAddress(req.CallerAddress, bounty.CreatorAddress) {
		return nil, models.NewValidationError(op, "only the bounty creator can approve bids")
	}
	if bounty.Status != models.OpenBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is %s, expected %s", bounty.Status, models.OpenBounty))
	}
	if want := models.OptionFor(bounty.PaymentStructure); bid.PaymentOption != want {
		return nil, models.NewValidationError(op, fmt.Sprintf("bid payment option %q does not match bounty payment structure %s", bid.PaymentOption, bounty.PaymentStructure))
	}
	split, err := EscrowSplitFor(*bounty)
	if err != nil {
		return nil, err
	}

	technical := escrow.CanonicalAddress(req.TechnicalReviewer)
	final := escrow.CanonicalAddress(req.FinalApprover)
	apply := models.BidApprovalApply{
		BidID:             bid.ID,
		BountyID:          bounty.ID,
		ExpectedVersion:   bounty.Version,
		TechnicalReviewer: technical,
		FinalApprover:     final,
		ReviewedBy:        escrow.CanonicalAddress(req.CallerAddress),
		ReviewID:          uuid.New().String(),
		ReviewedAt:        s.now().UTC(),
	}
	receipt, err := s.Gateway.AssignBounty(ctx, bounty.OnchainID, bid.BidderAddress, technical, final)
	if err != nil {
		return nil, s.writer.unconfirmed(ctx, models.OpApproveBid, bid.ID, apply, err)
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	approved, err = s.Bids.ApplyApproval(ctx, apply, receipt.TxHash)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpApproveBid, bid.ID, receipt.TxHash, apply, err)
	}

	s.logger.WithFields(logrus.Fields{
		"op":         op,
		"bid_id":     bid.ID,
		"bounty_id":  bounty.ID,
		"tx_hash":    receipt.TxHash,
		"upfront":    split.Upfront,
		"completion": split.Completion,
	}).Info("bid approved")

	s.Notifier.BidApproved(ctx, *bounty, *approved)
	s.Notifier.ReviewRequested(ctx, *bounty, *approved, technical, models.TechnicalReview)
	s.Notifier.ReviewRequested(ctx, *bounty, *approved, final, models.FinalReview)
	return approved, nil
}

// RejectBid отклоняет предложение с обязательной причиной. Контракт не вызывается.
func (s *ReviewService) RejectBid(ctx context.Context, bidId string, req models.RejectionRequest) (rejected *models.Bid, err error) {
	const op = "review.reject"
	defer func() { s.writer.observe(op, err) }()

	if err := validateID(op, "bid", bidId); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, models.NewValidationError(op, "rejection reason is required")
	}
	if !escrow.ValidAddress(req.CallerAddress) {
		return nil, models.NewValidationError(op, "invalid caller address")
	}

	bid, err := s.Bids.GetBid(ctx, bidId)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if bid.Status != models.PendingBid {
		return nil, models.NewConflictError(op, fmt.Sprintf("bid is already %s", bid.Status))
	}
	bounty, err := s.Bounties.GetBounty(ctx, bid.BountyID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if !escrow.SameAddress(req.CallerAddress, bounty.CreatorAddress) {
		return nil, models.NewValidationError(op, "only the bounty creator can reject bids")
	}

	now := s.now().UTC()
	rejected, err = s.Bids.ApplyRejection(ctx, models.BidReview{
		ID:              uuid.New().String(),
		BidID:           bid.ID,
		ReviewerAddress: escrow.CanonicalAddress(req.CallerAddress),
		ReviewType:      models.FinalReview,
		Status:          models.RejectedReview,
		Comments:        reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}

	s.Notifier.BidRejected(ctx, *bounty, *rejected, reason)
	return rejected, nil
}
