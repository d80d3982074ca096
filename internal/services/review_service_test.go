package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approval() models.ApprovalRequest {
	return models.ApprovalRequest{CallerAddress: creatorAddr, TechnicalReviewer: techAddr, FinalApprover: finalAddr}
}

func recipients(sent []models.Notification, kind models.NotificationKind) []string {
	var out []string
	for _, n := range sent {
		if n.Kind == kind {
			out = append(out, strings.ToLower(n.Recipient))
		}
	}
	return out
}

func TestApproveBid_AssignsAndMovesBountyInProgress(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	k2 := h.seedBid(b1.ID, otherBidder, models.OptionCompletion, 90)

	bid, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.NoError(t, err)

	assert.Equal(t, models.ApprovedBid, bid.Status)
	assert.True(t, strings.EqualFold(techAddr, bid.ReviewerAddress))
	assert.True(t, strings.EqualFold(finalAddr, bid.FinalApproverAddress))
	require.NotNil(t, bid.ReviewedAt)
	assert.Equal(t, testNow, *bid.ReviewedAt)

	bounty := h.store.bounties[b1.ID]
	assert.Equal(t, models.InProgressBounty, bounty.Status)
	assert.Equal(t, int32(2), bounty.Version)
	assert.Equal(t, models.ArchivedBid, h.store.bids[k2.ID].Status)

	reviews, err := h.facade.GetBidReviews(context.Background(), k1.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, models.FinalReview, reviews[0].ReviewType)
	assert.Equal(t, models.ApprovedReview, reviews[0].Status)

	require.Equal(t, 1, h.gateway.count("assignBounty"))
	args := h.gateway.args["assignBounty"]
	assert.Equal(t, b1.OnchainID, args[0])
	assert.True(t, strings.EqualFold(bidderAddr, args[1].(string)))

	assert.Equal(t, []string{strings.ToLower(bidderAddr)}, recipients(h.sink.sent, models.BidApproved))
	assert.ElementsMatch(t, []string{strings.ToLower(techAddr), strings.ToLower(finalAddr)}, recipients(h.sink.sent, models.ReviewRequested))
}

func TestApproveBid_SelfReviewRejectedWithoutContractCall(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)

	req := approval()
	req.TechnicalReviewer = strings.ToLower(bidderAddr)
	_, err := h.facade.ApproveBid(context.Background(), k1.ID, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))

	req = approval()
	req.FinalApprover = bidderAddr
	_, err = h.facade.ApproveBid(context.Background(), k1.ID, req)
	assert.True(t, errors.Is(err, models.ErrValidation))

	assert.Empty(t, h.gateway.calls)
	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)
}

func TestApproveBid_InvalidReviewers(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)

	tests := []struct {
		name string
		edit func(r *models.ApprovalRequest)
	}{
		{"same reviewer twice", func(r *models.ApprovalRequest) { r.FinalApprover = strings.ToLower(r.TechnicalReviewer) }},
		{"malformed technical reviewer", func(r *models.ApprovalRequest) { r.TechnicalReviewer = "0x123" }},
		{"missing final approver", func(r *models.ApprovalRequest) { r.FinalApprover = "" }},
		{"not the creator", func(r *models.ApprovalRequest) { r.CallerAddress = otherBidder }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := approval()
			tt.edit(&req)
			_, err := h.facade.ApproveBid(context.Background(), k1.ID, req)
			assert.True(t, errors.Is(err, models.ErrValidation), err)
		})
	}
	assert.Empty(t, h.gateway.calls)
}

func TestApproveBid_GatewayFailureLeavesBidPending(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	h.gateway.errs["assignBounty"] = &models.WorkflowError{Kind: models.KindContract, Op: "escrow.assignBounty", Message: "insufficient_allowance: ERC20: insufficient allowance"}

	_, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrContract))
	assert.Contains(t, err.Error(), "insufficient allowance")

	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)
	assert.Equal(t, models.OpenBounty, h.store.bounties[b1.ID].Status)
	assert.Empty(t, h.store.reviews)
	assert.Empty(t, h.sink.sent)
	assert.Empty(t, h.store.journal)

	// повторная попытка после исправления проходит
	delete(h.gateway.errs, "assignBounty")
	_, err = h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.NoError(t, err)
}

func TestApproveBid_AtMostOneApprovedBid(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	k2 := h.seedBid(b1.ID, otherBidder, models.OptionCompletion, 100)

	_, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.NoError(t, err)

	_, err = h.facade.ApproveBid(context.Background(), k2.ID, approval())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, 1, h.gateway.count("assignBounty"))

	approved, err := h.facade.GetBountyBids(context.Background(), b1.ID, []string{"Approved"}, "", "")
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestApproveBid_ContractConflictPassesThrough(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	h.gateway.errs["assignBounty"] = models.NewConflictError("escrow.assignBounty", "already_done: Bounty already assigned")

	_, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)
}

func TestApproveBid_SplitMismatchIsValidation(t *testing.T) {
	h := newHarness(t)
	b := h.seedBounty(models.PaymentSplit, 100)
	stored := h.store.bounties[b.ID]
	stored.UpfrontAmount, stored.CompletionAmount = 30, 60
	h.store.bounties[b.ID] = stored
	k := h.seedBid(b.ID, bidderAddr, models.OptionSplit, 100)

	_, err := h.facade.ApproveBid(context.Background(), k.ID, approval())
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Empty(t, h.gateway.calls)
}

func TestApproveBid_StoreFailureAfterConfirmIsConsistencyError(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	h.store.failConfirmed = errors.New("connection reset by peer")

	_, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConsistency))
	assert.False(t, errors.Is(err, models.ErrStorage))
	txHash := models.TxHashOf(err)
	require.NotEmpty(t, txHash)

	entry := h.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "consistency", entry.Data["severity"])
	assert.Equal(t, txHash, entry.Data["tx_hash"])

	pending := h.store.journal[txHash]
	assert.Equal(t, models.PendingApply, pending.Status)
	assert.Equal(t, models.OpApproveBid, pending.Operation)
	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)
	assert.Empty(t, recipients(h.sink.sent, models.BidApproved))

	h.store.failConfirmed = nil
	require.NoError(t, h.facade.ApplyConfirmed(context.Background(), txHash))
	assert.Equal(t, models.ApprovedBid, h.store.bids[k1.ID].Status)
	assert.Equal(t, models.InProgressBounty, h.store.bounties[b1.ID].Status)
	assert.Equal(t, models.AppliedApply, h.store.journal[txHash].Status)

	// повторное применение ничего не меняет
	require.NoError(t, h.facade.ApplyConfirmed(context.Background(), txHash))
	assert.Len(t, h.store.reviews, 1)
	assert.Equal(t, 1, h.gateway.count("assignBounty"))
}

func TestRejectBid(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)

	_, err := h.facade.RejectBid(context.Background(), k1.ID, models.RejectionRequest{CallerAddress: creatorAddr, Reason: "   "})
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)
	assert.Empty(t, h.store.reviews)

	bid, err := h.facade.RejectBid(context.Background(), k1.ID, models.RejectionRequest{CallerAddress: creatorAddr, Reason: "Timeline too long"})
	require.NoError(t, err)
	assert.Equal(t, models.RejectedBid, bid.Status)

	require.Len(t, h.store.reviews, 1)
	review := h.store.reviews[0]
	assert.Equal(t, models.FinalReview, review.ReviewType)
	assert.Equal(t, models.RejectedReview, review.Status)
	assert.Equal(t, "Timeline too long", review.Comments)

	assert.Equal(t, []string{strings.ToLower(bidderAddr)}, recipients(h.sink.sent, models.BidRejected))
	assert.Empty(t, h.gateway.calls)
	assert.Equal(t, models.OpenBounty, h.store.bounties[b1.ID].Status)

	_, err = h.facade.RejectBid(context.Background(), k1.ID, models.RejectionRequest{CallerAddress: creatorAddr, Reason: "again"})
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestApproveBid_PaymentOptionMustMatchBounty(t *testing.T) {
	h := newHarness(t)
	b := h.seedBounty(models.PaymentMilestones, 300)
	k := h.seedBid(b.ID, bidderAddr, models.OptionCompletion, 300)

	_, err := h.facade.ApproveBid(context.Background(), k.ID, approval())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation), err)
	assert.Zero(t, h.gateway.count("assignBounty"))
	assert.Equal(t, models.PendingBid, h.store.bids[k.ID].Status)
	assert.Equal(t, models.OpenBounty, h.store.bounties[b.ID].Status)
}

func TestApproveBid_UnconfirmedAssignmentIsReconciled(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)
	h.gateway.unconfirmed["assignBounty"] = true

	_, err := h.facade.ApproveBid(context.Background(), k1.ID, approval())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTimeout), err)
	txHash := models.TxHashOf(err)
	require.NotEmpty(t, txHash)

	pending, ok := h.store.journal[txHash]
	require.True(t, ok)
	assert.Equal(t, models.PendingApply, pending.Status)
	assert.Equal(t, models.OpApproveBid, pending.Operation)
	assert.Equal(t, models.PendingBid, h.store.bids[k1.ID].Status)

	report, err := h.facade.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{txHash}, report.Applied)
	assert.Equal(t, models.ApprovedBid, h.store.bids[k1.ID].Status)
	assert.Equal(t, models.InProgressBounty, h.store.bounties[b1.ID].Status)
	assert.Equal(t, models.AppliedApply, h.store.journal[txHash].Status)
	assert.Equal(t, 1, h.gateway.count("assignBounty"))
}

func TestApproveBid_WriteSurvivesCallerCancel(t *testing.T) {
	h := newHarness(t)
	b1 := h.seedBounty(models.PaymentCompletion, 100)
	k1 := h.seedBid(b1.ID, bidderAddr, models.OptionCompletion, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gateway.afterSend = cancel

	approved, err := h.facade.ApproveBid(ctx, k1.ID, approval())
	require.NoError(t, err)
	assert.Equal(t, models.ApprovedBid, approved.Status)
	assert.Equal(t, models.InProgressBounty, h.store.bounties[b1.ID].Status)
	for _, e := range h.store.journal {
		assert.Equal(t, models.AppliedApply, e.Status)
	}
}
