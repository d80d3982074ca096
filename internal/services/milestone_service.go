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

// MilestoneService - график этапов и их приемка техническим ревьюером.
type MilestoneService struct {
	Repo     repository.MilestoneRepository
	Bids     repository.BidRepository
	Bounties repository.BountyRepository
	Gateway  escrow.Gateway
	Notifier *notify.Emitter
	logger   *logrus.Logger
	writer   confirmedWriter
	now      func() time.Time
}

// NewMilestoneService создает новый экземпляр MilestoneService.
func NewMilestoneService(d Deps) *MilestoneService {
	return &MilestoneService{
		Repo:     d.Milestones,
		Bids:     d.Bids,
		Bounties: d.Bounties,
		Gateway:  d.Gateway,
		Notifier: d.Notifier,
		logger:   d.Logger,
		writer:   d.writer(),
		now:      d.clock(),
	}
}

// CreateMilestones регистрирует график этапов одобренного предложения.
// Сумма этапов сверяется со стоимостью баунти до обращения к контракту.
func (s *MilestoneService) CreateMilestones(ctx context.Context, bidId, caller string, reqs []models.MilestoneRequest) (result []models.Milestone, err error) {
	const op = "milestone.create"
	defer func() { s.writer.observe(op, err) }()

	if err := validateID(op, "bid", bidId); err != nil {
		return nil, err
	}
	if !escrow.ValidAddress(caller) {
		return nil, models.NewValidationError(op, "invalid caller address")
	}
	if len(reqs) == 0 {
		return nil, models.NewValidationError(op, "at least one milestone is required")
	}
	var total float64
	for i, m := range reqs {
		if strings.TrimSpace(m.Description) == "" {
			return nil, models.NewValidationError(op, fmt.Sprintf("milestone %d: description is required", i))
		}
		if m.PaymentAmount <= 0 {
			return nil, models.NewValidationError(op, fmt.Sprintf("milestone %d: payment amount must be positive", i))
		}
		if m.DueDate.IsZero() {
			return nil, models.NewValidationError(op, fmt.Sprintf("milestone %d: due date is required", i))
		}
		total += m.PaymentAmount
	}

	bid, err := s.Bids.GetBid(ctx, bidId)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if bid.Status != models.ApprovedBid {
		return nil, models.NewConflictError(op, fmt.Sprintf("bid is %s, expected %s", bid.Status, models.ApprovedBid))
	}
	bounty, err := s.Bounties.GetBounty(ctx, bid.BountyID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if !models.MilestoneBased(bounty.PaymentStructure) || bid.PaymentOption != models.OptionFor(bounty.PaymentStructure) {
		return nil, models.NewValidationError(op, "bounty and bid do not use milestone payments")
	}
	if !escrow.SameAddress(caller, bounty.CreatorAddress) && !escrow.SameAddress(caller, bid.BidderAddress) {
		return nil, models.NewValidationError(op, "only the bounty creator or the bidder can create milestones")
	}
	if !models.AmountsEqual(total, bounty.Value.Amount) {
		return nil, models.NewValidationError(op,
			fmt.Sprintf("milestone amounts sum to %.2f, bounty value is %.2f", total, bounty.Value.Amount))
	}
	if bounty.Status != models.InProgressBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is %s, expected %s", bounty.Status, models.InProgressBounty))
	}
	existing, err := s.Repo.GetBidMilestones(ctx, bid.ID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if len(existing) > 0 {
		return nil, models.NewConflictError(op, "milestones already exist for this bid")
	}

	dueDates := make([]time.Time, len(reqs))
	amounts := make([]float64, len(reqs))
	apply := models.MilestonesApply{BidID: bid.ID, Milestones: make([]models.Milestone, len(reqs))}
	for i, m := range reqs {
		dueDates[i] = m.DueDate
		amounts[i] = m.PaymentAmount
		apply.Milestones[i] = models.Milestone{
			ID:            uuid.New().String(),
			BidID:         bid.ID,
			Index:         i,
			Description:   strings.TrimSpace(m.Description),
			DueDate:       m.DueDate.UTC(),
			PaymentAmount: m.PaymentAmount,
			Status:        models.PendingMilestone,
		}
	}

	receipt, err := s.Gateway.CreateMilestones(ctx, bounty.OnchainID, dueDates, amounts)
	if err != nil {
		return nil, s.writer.unconfirmed(ctx, models.OpCreateMilestones, bid.ID, apply, err)
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	result, err = s.Repo.CreateMilestones(ctx, apply, receipt.TxHash)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpCreateMilestones, bid.ID, receipt.TxHash, apply, err)
	}

	s.logger.WithFields(logrus.Fields{
		"op":      op,
		"bid_id":  bid.ID,
		"tx_hash": receipt.TxHash,
		"count":   len(result),
	}).Info("milestones created")
	return s.withEffectiveStatus(result), nil
}

// ApproveMilestone принимает этап и высвобождает его оплату.
func (s *MilestoneService) ApproveMilestone(ctx context.Context, milestoneId string, req models.MilestoneApproval) (result *models.Milestone, err error) {
	const op = "milestone.approve"
	defer func() { s.writer.observe(op, err) }()

	if err := validateID(op, "milestone", milestoneId); err != nil {
		return nil, err
	}
	if !escrow.ValidAddress(req.ApproverAddress) {
		return nil, models.NewValidationError(op, "invalid approver address")
	}

	m, err := s.Repo.GetMilestone(ctx, milestoneId)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if m.Status == models.CompletedMilestone {
		return nil, models.NewConflictError(op, "milestone is already completed")
	}
	bid, err := s.Bids.GetBid(ctx, m.BidID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	bounty, err := s.Bounties.GetBounty(ctx, bid.BountyID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if bounty.Status != models.InProgressBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is %s, expected %s", bounty.Status, models.InProgressBounty))
	}
	if !escrow.SameAddress(req.ApproverAddress, bid.ReviewerAddress) {
		return nil, models.NewValidationError(op, "only the technical reviewer can approve milestones")
	}

	apply := models.MilestoneCompletionApply{
		MilestoneID: m.ID,
		CompletedBy: escrow.CanonicalAddress(req.ApproverAddress),
		Comments:    req.Comments,
		CompletedAt: s.now().UTC(),
	}
	receipt, err := s.Gateway.ApproveMilestone(ctx, bounty.OnchainID, m.Index)
	if err != nil {
		return nil, s.writer.unconfirmed(ctx, models.OpApproveMilestone, m.ID, apply, err)
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	result, err = s.Repo.CompleteMilestone(ctx, apply, receipt.TxHash)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpApproveMilestone, m.ID, receipt.TxHash, apply, err)
	}

	s.Notifier.MilestoneCompleted(ctx, *bounty, *bid, *result)
	return result, nil
}

// GetBidMilestones возвращает этапы; просрочка вычисляется на момент чтения.
func (s *MilestoneService) GetBidMilestones(ctx context.Context, bidId string) ([]models.Milestone, error) {
	const op = "milestone.list"
	if err := validateID(op, "bid", bidId); err != nil {
		return nil, err
	}
	if _, err := s.Bids.GetBid(ctx, bidId); err != nil {
		return nil, storageErr(op, err)
	}
	milestones, err := s.Repo.GetBidMilestones(ctx, bidId)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return s.withEffectiveStatus(milestones), nil
}

func (s *MilestoneService) withEffectiveStatus(milestones []models.Milestone) []models.Milestone {
	now := s.now()
	for i := range milestones {
		milestones[i].Status = milestones[i].EffectiveStatus(now)
	}
	return milestones
}
