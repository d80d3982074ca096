package services

import (
	"context"
	"time"

	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/metrics"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/notify"
	"github.com/senyabanana/bounty-service/internal/repository"

	"github.com/sirupsen/logrus"
)

// Deps - зависимости сервисов рабочего процесса.
type Deps struct {
	Bounties   repository.BountyRepository
	Bids       repository.BidRepository
	Milestones repository.MilestoneRepository
	Journal    repository.AppliedTxRepository
	Gateway    escrow.Gateway
	Notifier   *notify.Emitter
	Logger     *logrus.Logger
	Metrics    *metrics.Workflow
	// PlaceBid включает регистрацию предложения в контракте перед записью.
	PlaceBid bool
	// Now подменяется в тестах.
	Now func() time.Time
}

func (d Deps) writer() confirmedWriter {
	return confirmedWriter{journal: d.Journal, logger: d.Logger, metrics: d.Metrics}
}

func (d Deps) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// Facade - единая точка входа для HTTP-обработчиков и CLI.
type Facade struct {
	Bounties   *BountyService
	Bids       *BidService
	Reviews    *ReviewService
	Milestones *MilestoneService
	Reconciler *ReconcileService
}

// NewFacade собирает сервисы рабочего процесса.
func NewFacade(d Deps) *Facade {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return &Facade{
		Bounties:   NewBountyService(d),
		Bids:       NewBidService(d),
		Reviews:    NewReviewService(d),
		Milestones: NewMilestoneService(d),
		Reconciler: NewReconcileService(d),
	}
}

// PublishBounty публикует баунти в контракте и каталоге.
func (f *Facade) PublishBounty(ctx context.Context, req models.BountyRequest) (*models.Bounty, error) {
	return f.Bounties.PublishBounty(ctx, req)
}

// GetBounty возвращает баунти.
func (f *Facade) GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error) {
	return f.Bounties.GetBounty(ctx, bountyId)
}

// GetBounties возвращает список баунти.
func (f *Facade) GetBounties(ctx context.Context, statuses []string, limitStr, offsetStr string) ([]models.Bounty, error) {
	return f.Bounties.GetBounties(ctx, statuses, limitStr, offsetStr)
}

// SubmitBid подает предложение.
func (f *Facade) SubmitBid(ctx context.Context, req models.BidRequest) (*models.Bid, error) {
	return f.Bids.SubmitBid(ctx, req)
}

// GetBid возвращает предложение.
func (f *Facade) GetBid(ctx context.Context, bidId string) (*models.Bid, error) {
	return f.Bids.GetBid(ctx, bidId)
}

// GetBountyBids возвращает предложения по баунти.
func (f *Facade) GetBountyBids(ctx context.Context, bountyId string, statuses []string, limitStr, offsetStr string) ([]models.Bid, error) {
	return f.Bids.GetBountyBids(ctx, bountyId, statuses, limitStr, offsetStr)
}

// GetBidReviews возвращает ревью по предложению.
func (f *Facade) GetBidReviews(ctx context.Context, bidId string) ([]models.BidReview, error) {
	return f.Bids.GetBidReviews(ctx, bidId)
}

// ApproveBid одобряет предложение.
func (f *Facade) ApproveBid(ctx context.Context, bidId string, req models.ApprovalRequest) (*models.Bid, error) {
	return f.Reviews.ApproveBid(ctx, bidId, req)
}

// RejectBid отклоняет предложение.
func (f *Facade) RejectBid(ctx context.Context, bidId string, req models.RejectionRequest) (*models.Bid, error) {
	return f.Reviews.RejectBid(ctx, bidId, req)
}

// CreateMilestones создает график этапов.
func (f *Facade) CreateMilestones(ctx context.Context, bidId, caller string, reqs []models.MilestoneRequest) ([]models.Milestone, error) {
	return f.Milestones.CreateMilestones(ctx, bidId, caller, reqs)
}

// ApproveMilestone принимает этап.
func (f *Facade) ApproveMilestone(ctx context.Context, milestoneId string, req models.MilestoneApproval) (*models.Milestone, error) {
	return f.Milestones.ApproveMilestone(ctx, milestoneId, req)
}

// GetBidMilestones возвращает этапы предложения.
func (f *Facade) GetBidMilestones(ctx context.Context, bidId string) ([]models.Milestone, error) {
	return f.Milestones.GetBidMilestones(ctx, bidId)
}

// ApproveCompletion закрывает баунти.
func (f *Facade) ApproveCompletion(ctx context.Context, bountyId, approver string) (*models.Bounty, error) {
	return f.Bounties.ApproveCompletion(ctx, bountyId, approver)
}

// CancelBounty отменяет баунти.
func (f *Facade) CancelBounty(ctx context.Context, bountyId, caller string) (*models.Bounty, error) {
	return f.Bounties.CancelBounty(ctx, bountyId, caller)
}

// ApplyConfirmed повторяет запись по подтвержденной транзакции.
func (f *Facade) ApplyConfirmed(ctx context.Context, txHash string) error {
	return f.Reconciler.ApplyConfirmed(ctx, txHash)
}

// ReconcilePending повторяет все отложенные записи.
func (f *Facade) ReconcilePending(ctx context.Context, limit int) (ReconcileReport, error) {
	return f.Reconciler.ReconcilePending(ctx, limit)
}
