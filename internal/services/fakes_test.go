package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	creatorAddr = "0xC0000000000000000000000000000000000000C1"
	bidderAddr  = "0xB0000000000000000000000000000000000000B1"
	otherBidder = "0xB0000000000000000000000000000000000000B2"
	techAddr    = "0x7000000000000000000000000000000000000071"
	finalAddr   = "0xF0000000000000000000000000000000000000F1"
	tokenAddr   = "0x4444444444444444444444444444444444444444"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// memStore - хранилище в памяти с теми же условиями записи, что и Postgres.
type memStore struct {
	mu         sync.Mutex
	bounties   map[string]models.Bounty
	bids       map[string]models.Bid
	reviews    []models.BidReview
	milestones map[string]models.Milestone
	journal    map[string]models.AppliedTransaction
	// failConfirmed возвращается всеми записями, привязанными к транзакции.
	failConfirmed error
}

func newMemStore() *memStore {
	return &memStore{
		bounties:   map[string]models.Bounty{},
		bids:       map[string]models.Bid{},
		milestones: map[string]models.Milestone{},
		journal:    map[string]models.AppliedTransaction{},
	}
}

func (s *memStore) markApplied(txHash string, op models.ApplyOperation, subject string) bool {
	if txHash == "" {
		return false
	}
	if e, ok := s.journal[txHash]; ok && e.Status == models.AppliedApply {
		return true
	}
	now := testNow
	s.journal[txHash] = models.AppliedTransaction{TxHash: txHash, Operation: op, SubjectID: subject, Status: models.AppliedApply, AppliedAt: &now}
	return false
}

func (s *memStore) CreateBounty(_ context.Context, b models.Bounty, txHash string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfirmed != nil {
		return nil, s.failConfirmed
	}
	s.markApplied(txHash, models.OpPublishBounty, b.OnchainID)
	for _, existing := range s.bounties {
		if existing.OnchainID == b.OnchainID {
			return &existing, nil
		}
	}
	s.bounties[b.ID] = b
	return &b, nil
}

func (s *memStore) GetBounty(_ context.Context, id string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bounties[id]
	if !ok {
		return nil, models.NewNotFoundError("mem.getBounty", "bounty not found")
	}
	return &b, nil
}

func (s *memStore) GetBounties(_ context.Context, statuses []string, limit, offset int) ([]models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bounty
	for _, b := range s.bounties {
		if matches(string(b.Status), statuses) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *memStore) TransitionBounty(_ context.Context, t models.BountyTransitionApply, txHash string, op models.ApplyOperation) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfirmed != nil {
		return nil, s.failConfirmed
	}
	b, ok := s.bounties[t.BountyID]
	if !ok {
		return nil, models.NewNotFoundError("mem.transitionBounty", "bounty not found")
	}
	if s.markApplied(txHash, op, t.BountyID) {
		return &b, nil
	}
	allowed := false
	for _, from := range t.From {
		allowed = allowed || b.Status == from
	}
	if !allowed || b.Version != t.ExpectedVersion {
		delete(s.journal, txHash)
		return nil, models.NewConflictError("mem.transitionBounty", "bounty was modified concurrently")
	}
	b.Status = t.To
	b.Version++
	s.bounties[b.ID] = b
	return &b, nil
}

func (s *memStore) CreateBid(_ context.Context, bid models.Bid, txHash string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txHash != "" && s.failConfirmed != nil {
		return nil, s.failConfirmed
	}
	s.markApplied(txHash, models.OpSubmitBid, bid.ID)
	if _, ok := s.bids[bid.ID]; !ok {
		s.bids[bid.ID] = bid
	}
	return &bid, nil
}

func (s *memStore) GetBid(_ context.Context, id string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[id]
	if !ok {
		return nil, models.NewNotFoundError("mem.getBid", "bid not found")
	}
	return &bid, nil
}

func (s *memStore) GetBountyBids(_ context.Context, bountyID string, statuses []string, limit, offset int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for _, bid := range s.bids {
		if bid.BountyID == bountyID && matches(string(bid.Status), statuses) {
			out = append(out, bid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return page(out, limit, offset), nil
}

func (s *memStore) ApplyApproval(ctx context.Context, a models.BidApprovalApply, txHash string) (*models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfirmed != nil {
		return nil, s.failConfirmed
	}
	if s.markApplied(txHash, models.OpApproveBid, a.BidID) {
		bid := s.bids[a.BidID]
		return &bid, nil
	}
	b := s.bounties[a.BountyID]
	if b.Version != a.ExpectedVersion || b.Status != models.OpenBounty {
		delete(s.journal, txHash)
		return nil, models.NewConflictError("mem.applyApproval", "bounty is no longer open or was modified concurrently")
	}
	bid := s.bids[a.BidID]
	if bid.Status != models.PendingBid {
		delete(s.journal, txHash)
		return nil, models.NewConflictError("mem.applyApproval", "bid is no longer pending")
	}
	b.Status = models.InProgressBounty
	b.Version++
	s.bounties[b.ID] = b

	reviewedAt := a.ReviewedAt
	bid.Status = models.ApprovedBid
	bid.ReviewerAddress = a.TechnicalReviewer
	bid.FinalApproverAddress = a.FinalApprover
	bid.ReviewedAt = &reviewedAt
	bid.ReviewedBy = a.ReviewedBy
	s.bids[bid.ID] = bid

	for id, other := range s.bids {
		if other.BountyID == b.ID && other.Status == models.PendingBid && id != bid.ID {
			other.Status = models.ArchivedBid
			s.bids[id] = other
		}
	}
	s.reviews = append(s.reviews, models.BidReview{
		ID: a.ReviewID, BidID: bid.ID, ReviewerAddress: a.ReviewedBy,
		ReviewType: models.FinalReview, Status: models.ApprovedReview,
		CreatedAt: a.ReviewedAt, UpdatedAt: a.ReviewedAt,
	})
	return &bid, nil
}

func (s *memStore) ApplyRejection(_ context.Context, review models.BidReview) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid := s.bids[review.BidID]
	if bid.Status != models.PendingBid {
		return nil, models.NewConflictError("mem.applyRejection", "bid is no longer pending")
	}
	at := review.CreatedAt
	bid.Status = models.RejectedBid
	bid.ReviewedAt = &at
	bid.ReviewedBy = review.ReviewerAddress
	s.bids[bid.ID] = bid
	s.reviews = append(s.reviews, review)
	return &bid, nil
}

func (s *memStore) GetBidReviews(_ context.Context, bidID string) ([]models.BidReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BidReview
	for _, r := range s.reviews {
		if r.BidID == bidID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) CreateMilestones(_ context.Context, apply models.MilestonesApply, txHash string) ([]models.Milestone, error) {
	s.mu.Lock()
	if s.failConfirmed != nil {
		s.mu.Unlock()
		return nil, s.failConfirmed
	}
	if !s.markApplied(txHash, models.OpCreateMilestones, apply.BidID) {
		for _, m := range apply.Milestones {
			s.milestones[m.ID] = m
		}
	}
	s.mu.Unlock()
	return s.GetBidMilestones(context.Background(), apply.BidID)
}

func (s *memStore) GetMilestone(_ context.Context, id string) (*models.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, models.NewNotFoundError("mem.getMilestone", "milestone not found")
	}
	return &m, nil
}

func (s *memStore) GetBidMilestones(_ context.Context, bidID string) ([]models.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Milestone
	for _, m := range s.milestones {
		if m.BidID == bidID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *memStore) CompleteMilestone(_ context.Context, apply models.MilestoneCompletionApply, txHash string) (*models.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfirmed != nil {
		return nil, s.failConfirmed
	}
	m := s.milestones[apply.MilestoneID]
	if s.markApplied(txHash, models.OpApproveMilestone, m.ID) {
		return &m, nil
	}
	if m.Status == models.CompletedMilestone {
		delete(s.journal, txHash)
		return nil, models.NewConflictError("mem.completeMilestone", "milestone is already completed")
	}
	at := apply.CompletedAt
	m.Status = models.CompletedMilestone
	m.CompletedAt = &at
	m.CompletedBy = apply.CompletedBy
	m.ReviewComments = apply.Comments
	s.milestones[m.ID] = m
	return &m, nil
}

func (s *memStore) RecordPending(_ context.Context, entry models.AppliedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.journal[entry.TxHash]; ok {
		return nil
	}
	entry.Status = models.PendingApply
	entry.CreatedAt = testNow
	s.journal[entry.TxHash] = entry
	return nil
}

func (s *memStore) GetAppliedTx(_ context.Context, txHash string) (*models.AppliedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.journal[txHash]
	if !ok {
		return nil, models.NewNotFoundError("mem.getAppliedTx", "transaction not recorded")
	}
	return &e, nil
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]models.AppliedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AppliedTransaction
	for _, e := range s.journal {
		if e.Status == models.PendingApply {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxHash < out[j].TxHash })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(status string, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeGateway записывает вызовы контракта и возвращает заданные ошибки.
type fakeGateway struct {
	mu         sync.Mutex
	calls      []string
	args       map[string][]interface{}
	errs       map[string]error
	confirmErr error
	seq        int
	// unconfirmed - методы, чья транзакция уходит в сеть, но подтверждение не дожидается.
	unconfirmed map[string]bool
	issued      map[string]escrow.Receipt
	// afterSend вызывается после каждой отправленной транзакции.
	afterSend func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		args:        map[string][]interface{}{},
		errs:        map[string]error{},
		unconfirmed: map[string]bool{},
		issued:      map[string]escrow.Receipt{},
	}
}

func (g *fakeGateway) call(method string, args ...interface{}) (escrow.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, method)
	g.args[method] = args
	if err := g.errs[method]; err != nil {
		return escrow.Receipt{}, err
	}
	g.seq++
	r := escrow.Receipt{TxHash: fmt.Sprintf("0x%064x", g.seq), BlockNumber: uint64(100 + g.seq)}
	if method == "createBounty" {
		r.BountyID = fmt.Sprintf("%d", r.BlockNumber)
	}
	g.issued[r.TxHash] = r
	if g.afterSend != nil {
		g.afterSend()
	}
	if g.unconfirmed[method] {
		return escrow.Receipt{}, &models.WorkflowError{Kind: models.KindTimeout, Op: "escrow." + method, Message: "timeout: confirmation not observed", TxHash: r.TxHash}
	}
	return r, nil
}

func (g *fakeGateway) count(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (g *fakeGateway) CreateBounty(_ context.Context, p escrow.CreateBountyParams) (string, escrow.Receipt, error) {
	r, err := g.call("createBounty", p)
	if err != nil {
		return "", r, err
	}
	return r.BountyID, r, nil
}

func (g *fakeGateway) CreateMilestones(_ context.Context, onchainID string, dueDates []time.Time, amounts []float64) (escrow.Receipt, error) {
	return g.call("createMilestones", onchainID, dueDates, amounts)
}

func (g *fakeGateway) PlaceBid(_ context.Context, onchainID string) (escrow.Receipt, error) {
	return g.call("placeBid", onchainID)
}

func (g *fakeGateway) AssignBounty(_ context.Context, onchainID, bidder, technical, final string) (escrow.Receipt, error) {
	return g.call("assignBounty", onchainID, bidder, technical, final)
}

func (g *fakeGateway) ApproveMilestone(_ context.Context, onchainID string, index int) (escrow.Receipt, error) {
	return g.call("approveMilestone", onchainID, index)
}

func (g *fakeGateway) ApproveCompletion(_ context.Context, onchainID string) (escrow.Receipt, error) {
	return g.call("approveCompletion", onchainID)
}

func (g *fakeGateway) CancelBounty(_ context.Context, onchainID string) (escrow.Receipt, error) {
	return g.call("cancelBounty", onchainID)
}

func (g *fakeGateway) Confirmed(_ context.Context, txHash string) (escrow.Receipt, error) {
	if g.confirmErr != nil {
		return escrow.Receipt{}, g.confirmErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.issued[txHash]; ok {
		return r, nil
	}
	return escrow.Receipt{TxHash: txHash, BlockNumber: 1}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSink) Send(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) kinds() map[string]models.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]models.NotificationKind{}
	for _, n := range s.sent {
		out[n.Recipient] = n.Kind
	}
	return out
}

type harness struct {
	facade  *Facade
	store   *memStore
	gateway *fakeGateway
	sink    *recordingSink
	logs    *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := newMemStore()
	gateway := newFakeGateway()
	sink := &recordingSink{}
	facade := NewFacade(Deps{
		Bounties:   store,
		Bids:       store,
		Milestones: store,
		Journal:    store,
		Gateway:    gateway,
		Notifier:   notify.NewEmitter(sink, nil, logger),
		Logger:     logger,
		Now:        func() time.Time { return testNow },
	})
	return &harness{facade: facade, store: store, gateway: gateway, sink: sink, logs: hook}
}

func (h *harness) seedBounty(structure models.PaymentStructure, value float64) models.Bounty {
	b := models.Bounty{
		ID:               uuid.New().String(),
		OnchainID:        fmt.Sprintf("%d", len(h.store.bounties)+1),
		Title:            "Audit the escrow contract",
		Value:            models.Money{Amount: value, Token: "USDC"},
		PaymentStructure: structure,
		Status:           models.OpenBounty,
		CreatorAddress:   creatorAddr,
		Version:          1,
		CreatedAt:        testNow.Add(-time.Hour),
	}
	if structure == models.PaymentCompletion {
		b.CompletionAmount = value
	}
	h.store.bounties[b.ID] = b
	return b
}

func (h *harness) seedBid(bountyID, bidder string, option models.PaymentOption, amount float64) models.Bid {
	bid := models.Bid{
		ID:             uuid.New().String(),
		BountyID:       bountyID,
		BidderAddress:  bidder,
		ProposedAmount: amount,
		PaymentOption:  option,
		PaymentDetails: models.PaymentDetails{Kind: string(option)},
		Answers:        map[string]string{},
		Status:         models.PendingBid,
		SubmittedAt:    testNow.Add(-time.Duration(len(h.store.bids)+1) * time.Minute),
	}
	h.store.bids[bid.ID] = bid
	return bid
}

func rawJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
