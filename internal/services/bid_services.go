package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/normalize"
	"github.com/senyabanana/bounty-service/internal/notify"
	"github.com/senyabanana/bounty-service/internal/repository"
	"github.com/senyabanana/bounty-service/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BidService - прием предложений по открытым баунти.
type BidService struct {
	Repo     repository.BidRepository
	Bounties repository.BountyRepository
	Gateway  escrow.Gateway
	Notifier *notify.Emitter
	placeBid bool
	logger   *logrus.Logger
	writer   confirmedWriter
	now      func() time.Time
}

// NewBidService создает новый экземпляр BidService.
func NewBidService(d Deps) *BidService {
	return &BidService{
		Repo:     d.Bids,
		Bounties: d.Bounties,
		Gateway:  d.Gateway,
		Notifier: d.Notifier,
		placeBid: d.PlaceBid,
		logger:   d.Logger,
		writer:   d.writer(),
		now:      d.clock(),
	}
}

// SubmitBid создает новое предложение по открытому баунти.
func (s *BidService) SubmitBid(ctx context.Context, req models.BidRequest) (created *models.Bid, err error) {
	const op = "bid.submit"
	defer func() { s.writer.observe(op, err) }()

	if err := validateID(op, "bounty", req.BountyID); err != nil {
		return nil, err
	}
	if !escrow.ValidAddress(req.BidderAddress) {
		return nil, models.NewValidationError(op, "invalid bidder address")
	}
	if req.ProposedAmount <= 0 {
		return nil, models.NewValidationError(op, "proposed amount must be positive")
	}
	if !models.ValidPaymentOption(req.PaymentOption) {
		return nil, models.NewValidationError(op, "invalid payment option. Must be 'completion', 'milestones' or 'split'")
	}

	deliverables := normalize.Deliverables(req.Deliverables)
	details := normalize.PaymentDetails(req.PaymentOption, req.PaymentDetails)
	switch req.PaymentOption {
	case models.OptionMilestones:
		if len(deliverables) == 0 {
			return nil, models.NewValidationError(op, "deliverables are required for milestone payments")
		}
		if details.Kind == string(models.OptionMilestones) && len(details.Milestones) == 0 {
			details.Milestones = deliverables
		}
	case models.OptionSplit:
		if details.Kind != string(models.OptionSplit) {
			return nil, models.NewValidationError(op, "split payment requires upfront and completion amounts")
		}
		if details.UpfrontAmount <= 0 || details.CompletionAmount <= 0 ||
			!models.AmountsEqual(details.UpfrontAmount+details.CompletionAmount, req.ProposedAmount) {
			return nil, models.NewValidationError(op, "upfront and completion amounts must sum to the proposed amount")
		}
	}

	bounty, err := s.Bounties.GetBounty(ctx, req.BountyID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if bounty.Status != models.OpenBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is %s and no longer accepts bids", bounty.Status))
	}
	if want := models.OptionFor(bounty.PaymentStructure); req.PaymentOption != want {
		return nil, models.NewValidationError(op, fmt.Sprintf("payment option %q does not match bounty payment structure %s, expected %q", req.PaymentOption, bounty.PaymentStructure, want))
	}

	bid := models.Bid{
		ID:              uuid.New().String(),
		BountyID:        bounty.ID,
		BidderAddress:   escrow.CanonicalAddress(req.BidderAddress),
		Experience:      req.Experience,
		PlanOfAction:    req.PlanOfAction,
		Timeline:        req.Timeline,
		AdditionalNotes: req.AdditionalNotes,
		Deliverables:    deliverables,
		ProposedAmount:  req.ProposedAmount,
		PaymentOption:   req.PaymentOption,
		PaymentDetails:  details,
		Answers:         req.Answers,
		Status:          models.PendingBid,
		SubmittedAt:     s.now().UTC(),
	}
	if bid.Answers == nil {
		bid.Answers = map[string]string{}
	}

	var txHash string
	if s.placeBid {
		receipt, err := s.Gateway.PlaceBid(ctx, bounty.OnchainID)
		if err != nil {
			return nil, s.writer.unconfirmed(ctx, models.OpSubmitBid, bid.ID, bid, err)
		}
		txHash = receipt.TxHash
		var cancel context.CancelFunc
		ctx, cancel = detached(ctx)
		defer cancel()
	}

	created, err = s.Repo.CreateBid(ctx, bid, txHash)
	if err != nil {
		if txHash != "" {
			return nil, s.writer.failed(ctx, models.OpSubmitBid, bid.ID, txHash, bid, err)
		}
		return nil, storageErr(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"op":        op,
		"bid_id":    created.ID,
		"bounty_id": bounty.ID,
	}).Info("bid submitted")
	s.Notifier.BidSubmitted(ctx, *bounty, *created)
	return created, nil
}

// GetBid возвращает предложение по ID.
func (s *BidService) GetBid(ctx context.Context, bidId string) (*models.Bid, error) {
	if err := validateID("bid.get", "bid", bidId); err != nil {
		return nil, err
	}
	bid, err := s.Repo.GetBid(ctx, bidId)
	return bid, storageErr("bid.get", err)
}

// GetBountyBids получает список предложений для баунти.
func (s *BidService) GetBountyBids(ctx context.Context, bountyId string, statuses []string, limitStr, offsetStr string) ([]models.Bid, error) {
	const op = "bid.list"
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewValidationError(op, err.Error())
	}
	for _, st := range statuses {
		switch models.BidStatus(strings.TrimSpace(st)) {
		case models.PendingBid, models.ApprovedBid, models.RejectedBid, models.ArchivedBid:
		default:
			return nil, models.NewValidationError(op, fmt.Sprintf("unknown bid status %q", st))
		}
	}
	if err := validateID(op, "bounty", bountyId); err != nil {
		return nil, err
	}
	if _, err := s.Bounties.GetBounty(ctx, bountyId); err != nil {
		return nil, storageErr(op, err)
	}
	bids, err := s.Repo.GetBountyBids(ctx, bountyId, statuses, limit, offset)
	return bids, storageErr(op, err)
}

// GetBidReviews получает список ревью по предложению.
func (s *BidService) GetBidReviews(ctx context.Context, bidId string) ([]models.BidReview, error) {
	if _, err := s.GetBid(ctx, bidId); err != nil {
		return nil, err
	}
	reviews, err := s.Repo.GetBidReviews(ctx, bidId)
	return reviews, storageErr("bid.reviews", err)
}
