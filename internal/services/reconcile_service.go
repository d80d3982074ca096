package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/repository"

	"github.com/sirupsen/logrus"
)

// ReconcileService повторяет записи по транзакциям, подтвержденным в сети,
// если исходная запись в хранилище не удалась. Изменяющие методы контракта не вызываются.
type ReconcileService struct {
	Journal    repository.AppliedTxRepository
	Bounties   repository.BountyRepository
	Bids       repository.BidRepository
	Milestones repository.MilestoneRepository
	Gateway    escrow.Gateway
	logger     *logrus.Logger
	writer     confirmedWriter
}

// ReconcileReport - итог прохода по отложенным записям.
type ReconcileReport struct {
	Applied []string          `json:"applied"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// NewReconcileService создает новый экземпляр ReconcileService.
func NewReconcileService(d Deps) *ReconcileService {
	return &ReconcileService{
		Journal:    d.Journal,
		Bounties:   d.Bounties,
		Bids:       d.Bids,
		Milestones: d.Milestones,
		Gateway:    d.Gateway,
		logger:     d.Logger,
		writer:     d.writer(),
	}
}

// ApplyConfirmed повторяет запись по хэшу транзакции. Повторный вызов для уже
// примененной транзакции ничего не делает.
func (s *ReconcileService) ApplyConfirmed(ctx context.Context, txHash string) (err error) {
	const op = "reconcile.apply"
	defer func() { s.writer.observe(op, err) }()

	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return models.NewValidationError(op, "transaction hash is required")
	}
	entry, err := s.Journal.GetAppliedTx(ctx, txHash)
	if err != nil {
		return storageErr(op, err)
	}
	if entry.Status == models.AppliedApply {
		return nil
	}

	receipt, err := s.Gateway.Confirmed(ctx, txHash)
	if err != nil {
		return err
	}
	if err := s.replay(ctx, *entry, receipt); err != nil {
		return storageErr(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"op":         op,
		"operation":  entry.Operation,
		"subject_id": entry.SubjectID,
		"tx_hash":    txHash,
		"block":      receipt.BlockNumber,
	}).Info("confirmed transaction applied")
	return nil
}

// ReconcilePending применяет до limit отложенных записей, от старых к новым.
func (s *ReconcileService) ReconcilePending(ctx context.Context, limit int) (ReconcileReport, error) {
	report := ReconcileReport{Applied: []string{}, Failed: map[string]string{}}
	if limit <= 0 {
		limit = 100
	}
	pending, err := s.Journal.ListPending(ctx, limit)
	if err != nil {
		return report, storageErr("reconcile.pending", err)
	}
	for _, entry := range pending {
		if err := s.ApplyConfirmed(ctx, entry.TxHash); err != nil {
			report.Failed[entry.TxHash] = err.Error()
			s.logger.WithFields(logrus.Fields{
				"tx_hash":   entry.TxHash,
				"operation": entry.Operation,
			}).WithError(err).Warn("pending transaction not applied")
			continue
		}
		report.Applied = append(report.Applied, entry.TxHash)
	}
	return report, nil
}

func (s *ReconcileService) replay(ctx context.Context, entry models.AppliedTransaction, receipt escrow.Receipt) error {
	switch entry.Operation {
	case models.OpPublishBounty:
		var bounty models.Bounty
		if err := json.Unmarshal(entry.Payload, &bounty); err != nil {
			return err
		}
		if bounty.OnchainID == "" {
			if receipt.BountyID == "" {
				return fmt.Errorf("transaction %s carries no bounty id", entry.TxHash)
			}
			bounty.OnchainID = receipt.BountyID
		}
		_, err := s.Bounties.CreateBounty(ctx, bounty, entry.TxHash)
		return err
	case models.OpSubmitBid:
		var bid models.Bid
		if err := json.Unmarshal(entry.Payload, &bid); err != nil {
			return err
		}
		_, err := s.Bids.CreateBid(ctx, bid, entry.TxHash)
		return err
	case models.OpApproveBid:
		var apply models.BidApprovalApply
		if err := json.Unmarshal(entry.Payload, &apply); err != nil {
			return err
		}
		_, err := s.Bids.ApplyApproval(ctx, apply, entry.TxHash)
		return err
	case models.OpCreateMilestones:
		var apply models.MilestonesApply
		if err := json.Unmarshal(entry.Payload, &apply); err != nil {
			return err
		}
		_, err := s.Milestones.CreateMilestones(ctx, apply, entry.TxHash)
		return err
	case models.OpApproveMilestone:
		var apply models.MilestoneCompletionApply
		if err := json.Unmarshal(entry.Payload, &apply); err != nil {
			return err
		}
		_, err := s.Milestones.CompleteMilestone(ctx, apply, entry.TxHash)
		return err
	case models.OpApproveCompletion, models.OpCancelBounty:
		var transition models.BountyTransitionApply
		if err := json.Unmarshal(entry.Payload, &transition); err != nil {
			return err
		}
		_, err := s.Bounties.TransitionBounty(ctx, transition, entry.TxHash, entry.Operation)
		return err
	}
	return fmt.Errorf("unknown operation %q", entry.Operation)
}
