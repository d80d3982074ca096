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
	"github.com/senyabanana/bounty-service/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BountyService - каталог баунти, публикация, завершение и отмена.
type BountyService struct {
	Repo       repository.BountyRepository
	Bids       repository.BidRepository
	Milestones repository.MilestoneRepository
	Gateway    escrow.Gateway
	Notifier   *notify.Emitter
	logger     *logrus.Logger
	writer     confirmedWriter
	now        func() time.Time
}

// NewBountyService создает новый экземпляр BountyService.
func NewBountyService(d Deps) *BountyService {
	return &BountyService{
		Repo:       d.Bounties,
		Bids:       d.Bids,
		Milestones: d.Milestones,
		Gateway:    d.Gateway,
		Notifier:   d.Notifier,
		logger:     d.Logger,
		writer:     d.writer(),
		now:        d.clock(),
	}
}

// PublishBounty создает эскроу в контракте, затем сохраняет баунти в каталоге.
func (s *BountyService) PublishBounty(ctx context.Context, req models.BountyRequest) (bounty *models.Bounty, err error) {
	const op = "bounty.publish"
	defer func() { s.writer.observe(op, err) }()

	split, err := validateBountyRequest(req)
	if err != nil {
		return nil, err
	}
	token := req.TokenAddress
	if token == "" {
		token = req.Value.Token
	}

	record := models.Bounty{
		ID:               uuid.New().String(),
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		Category:         req.Category,
		Value:            req.Value,
		Requirements:     req.Requirements,
		Questions:        req.Questions,
		PaymentStructure: req.PaymentStructure,
		UpfrontAmount:    split.Upfront,
		CompletionAmount: split.Completion,
		Status:           models.OpenBounty,
		CreatorAddress:   escrow.CanonicalAddress(req.CreatorAddress),
		Version:          1,
		CreatedAt:        s.now().UTC(),
	}
	onchainID, receipt, err := s.Gateway.CreateBounty(ctx, escrow.CreateBountyParams{
		Title:            req.Title,
		Category:         req.Category,
		Value:            req.Value.Amount,
		TokenAddress:     token,
		PaymentStructure: req.PaymentStructure,
		UpfrontAmount:    split.Upfront,
		CompletionAmount: split.Completion,
	})
	if err != nil {
		// OnchainID пуст: reconcile возьмет его из лога подтвержденной транзакции.
		return nil, s.writer.unconfirmed(ctx, models.OpPublishBounty, record.ID, record, err)
	}

	record.OnchainID = onchainID
	ctx, cancel := detached(ctx)
	defer cancel()
	created, err := s.Repo.CreateBounty(ctx, record, receipt.TxHash)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpPublishBounty, onchainID, receipt.TxHash, record, err)
	}

	s.logger.WithFields(logrus.Fields{
		"op":         op,
		"bounty_id":  created.ID,
		"onchain_id": created.OnchainID,
		"tx_hash":    receipt.TxHash,
	}).Info("bounty published")
	return created, nil
}

// GetBounty возвращает баунти по ID.
func (s *BountyService) GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error) {
	if err := validateID("bounty.get", "bounty", bountyId); err != nil {
		return nil, err
	}
	bounty, err := s.Repo.GetBounty(ctx, bountyId)
	return bounty, storageErr("bounty.get", err)
}

// GetBounties возвращает список баунти. Без фильтра возвращаются все статусы.
func (s *BountyService) GetBounties(ctx context.Context, statuses []string, limitStr, offsetStr string) ([]models.Bounty, error) {
	const op = "bounty.list"
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewValidationError(op, err.Error())
	}
	for _, st := range statuses {
		switch models.BountyStatus(st) {
		case models.OpenBounty, models.InProgressBounty, models.CompletedBounty, models.CancelledBounty:
		default:
			return nil, models.NewValidationError(op, fmt.Sprintf("unknown bounty status %q", st))
		}
	}
	bounties, err := s.Repo.GetBounties(ctx, statuses, limit, offset)
	return bounties, storageErr(op, err)
}

// ApproveCompletion подтверждает завершение работы финальным approver'ом.
func (s *BountyService) ApproveCompletion(ctx context.Context, bountyId, approver string) (result *models.Bounty, err error) {
	const op = "bounty.approveCompletion"
	defer func() { s.writer.observe(op, err) }()

	if !escrow.ValidAddress(approver) {
		return nil, models.NewValidationError(op, "invalid approver address")
	}
	bounty, err := s.GetBounty(ctx, bountyId)
	if err != nil {
		return nil, err
	}
	if bounty.Status != models.InProgressBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is %s, expected %s", bounty.Status, models.InProgressBounty))
	}

	bid, err := approvedBid(ctx, s.Bids, bounty.ID)
	if err != nil {
		return nil, err
	}
	if !escrow.SameAddress(approver, bid.FinalApproverAddress) {
		return nil, models.NewValidationError(op, "only the final approver can approve completion")
	}

	if models.MilestoneBased(bounty.PaymentStructure) {
		milestones, err := s.Milestones.GetBidMilestones(ctx, bid.ID)
		if err != nil {
			return nil, storageErr(op, err)
		}
		if len(milestones) == 0 {
			return nil, models.NewConflictError(op, "milestone schedule has not been created")
		}
		for _, m := range milestones {
			if m.Status != models.CompletedMilestone {
				return nil, models.NewConflictError(op, fmt.Sprintf("milestone %d is not completed", m.Index))
			}
		}
	}

	transition := models.BountyTransitionApply{
		BountyID:        bounty.ID,
		From:            []models.BountyStatus{models.InProgressBounty},
		To:              models.CompletedBounty,
		ExpectedVersion: bounty.Version,
	}
	receipt, err := s.Gateway.ApproveCompletion(ctx, bounty.OnchainID)
	if err != nil {
		return nil, s.writer.unconfirmed(ctx, models.OpApproveCompletion, bounty.ID, transition, err)
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	updated, err := s.Repo.TransitionBounty(ctx, transition, receipt.TxHash, models.OpApproveCompletion)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpApproveCompletion, bounty.ID, receipt.TxHash, transition, err)
	}

	s.Notifier.BountyCompleted(ctx, *updated, *bid)
	return updated, nil
}

// CancelBounty отменяет баунти. Доступно только создателю.
func (s *BountyService) CancelBounty(ctx context.Context, bountyId, caller string) (result *models.Bounty, err error) {
	const op = "bounty.cancel"
	defer func() { s.writer.observe(op, err) }()

	if !escrow.ValidAddress(caller) {
		return nil, models.NewValidationError(op, "invalid caller address")
	}
	bounty, err := s.GetBounty(ctx, bountyId)
	if err != nil {
		return nil, err
	}
	if !escrow.SameAddress(caller, bounty.CreatorAddress) {
		return nil, models.NewValidationError(op, "only the bounty creator can cancel it")
	}
	if bounty.Status != models.OpenBounty && bounty.Status != models.InProgressBounty {
		return nil, models.NewConflictError(op, fmt.Sprintf("bounty is already %s", bounty.Status))
	}

	transition := models.BountyTransitionApply{
		BountyID:        bounty.ID,
		From:            []models.BountyStatus{models.OpenBounty, models.InProgressBounty},
		To:              models.CancelledBounty,
		ExpectedVersion: bounty.Version,
	}
	receipt, err := s.Gateway.CancelBounty(ctx, bounty.OnchainID)
	if err != nil {
		return nil, s.writer.unconfirmed(ctx, models.OpCancelBounty, bounty.ID, transition, err)
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	updated, err := s.Repo.TransitionBounty(ctx, transition, receipt.TxHash, models.OpCancelBounty)
	if err != nil {
		return nil, s.writer.failed(ctx, models.OpCancelBounty, bounty.ID, receipt.TxHash, transition, err)
	}

	s.Notifier.BountyCancelled(ctx, *updated, updated.CreatorAddress)
	if bounty.Status == models.InProgressBounty {
		if bid, err := approvedBid(ctx, s.Bids, bounty.ID); err == nil {
			s.Notifier.BountyCancelled(ctx, *updated, bid.BidderAddress)
		}
	}
	return updated, nil
}

// validateBountyRequest проверяет запрос и вычисляет распределение эскроу.
func validateBountyRequest(req models.BountyRequest) (models.EscrowSplit, error) {
	const op = "bounty.publish"
	if strings.TrimSpace(req.Title) == "" {
		return models.EscrowSplit{}, models.NewValidationError(op, "title is required")
	}
	if req.Value.Amount <= 0 {
		return models.EscrowSplit{}, models.NewValidationError(op, "bounty value must be positive")
	}
	if !escrow.ValidAddress(req.CreatorAddress) {
		return models.EscrowSplit{}, models.NewValidationError(op, "invalid creator address")
	}
	token := req.TokenAddress
	if token == "" {
		token = req.Value.Token
	}
	if !escrow.ValidAddress(token) {
		return models.EscrowSplit{}, models.NewValidationError(op, "invalid token address")
	}
	if !models.ValidPaymentStructure(req.PaymentStructure) {
		return models.EscrowSplit{}, models.NewValidationError(op, "invalid payment structure. Must be 'Completion', 'Milestones' or 'Split'")
	}
	return EscrowSplitFor(models.Bounty{
		Value:            req.Value,
		PaymentStructure: req.PaymentStructure,
		UpfrontAmount:    req.UpfrontAmount,
		CompletionAmount: req.CompletionAmount,
	})
}

// EscrowSplitFor вычисляет, какая часть суммы выплачивается при назначении, а какая при завершении.
func EscrowSplitFor(b models.Bounty) (models.EscrowSplit, error) {
	const op = "bounty.escrowSplit"
	switch b.PaymentStructure {
	case models.PaymentCompletion:
		return models.EscrowSplit{Upfront: 0, Completion: b.Value.Amount}, nil
	case models.PaymentMilestones:
		return models.EscrowSplit{}, nil
	case models.PaymentSplit:
		if b.UpfrontAmount <= 0 || b.CompletionAmount <= 0 {
			return models.EscrowSplit{}, models.NewValidationError(op, "split requires positive upfront and completion amounts")
		}
		if !models.AmountsEqual(b.UpfrontAmount+b.CompletionAmount, b.Value.Amount) {
			return models.EscrowSplit{}, models.NewValidationError(op,
				fmt.Sprintf("upfront %.2f plus completion %.2f does not match bounty value %.2f", b.UpfrontAmount, b.CompletionAmount, b.Value.Amount))
		}
		return models.EscrowSplit{Upfront: b.UpfrontAmount, Completion: b.CompletionAmount}, nil
	}
	return models.EscrowSplit{}, models.NewValidationError(op, "invalid payment structure")
}

// approvedBid возвращает одобренное предложение по баунти.
// Его отсутствие у баунти в работе - ошибка хранилища.
func approvedBid(ctx context.Context, bids repository.BidRepository, bountyId string) (*models.Bid, error) {
	list, err := bids.GetBountyBids(ctx, bountyId, []string{string(models.ApprovedBid)}, 1, 0)
	if err != nil {
		return nil, storageErr("bounty.approvedBid", err)
	}
	if len(list) == 0 {
		return nil, models.NewStorageError("bounty.approvedBid", fmt.Errorf("bounty %s has no approved bid", bountyId))
	}
	return &list[0], nil
}

func validateID(op, what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.NewValidationError(op, fmt.Sprintf("invalid %s id", what))
	}
	return nil
}
