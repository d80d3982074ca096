package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	sent []models.Notification
	err  error
}

func (s *recordingSink) Send(_ context.Context, n models.Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

type mapNamer map[string]string

func (m mapNamer) Name(_ context.Context, address string) string {
	if name, ok := m[address]; ok {
		return name
	}
	return address
}

var (
	bounty = models.Bounty{Title: "Audit", CreatorAddress: "0xcreator", Value: models.Money{Amount: 300, Token: "USDC"}}
	bid    = models.Bid{BidderAddress: "0xbidder", ProposedAmount: 300, ReviewerAddress: "0xtech", FinalApproverAddress: "0xfinal"}
)

func TestEmitter_BidSubmittedGoesToCreator(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, mapNamer{"0xbidder": "Bob"}, logrus.New())

	e.BidSubmitted(context.Background(), bounty, bid)

	require.Len(t, sink.sent, 1)
	n := sink.sent[0]
	assert.Equal(t, "0xcreator", n.Recipient)
	assert.Equal(t, models.BidSubmitted, n.Kind)
	assert.Contains(t, n.Message, "Bob")
	assert.Contains(t, n.Message, "300 USDC")
	assert.False(t, n.CreatedAt.IsZero())
}

func TestEmitter_DeliveryFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{err: errors.New("redis down")}
	e := NewEmitter(sink, nil, logger)

	e.BidRejected(context.Background(), bounty, bid, "scope too narrow")

	require.Len(t, sink.sent, 1)
	assert.Contains(t, sink.sent[0].Message, "scope too narrow")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestEmitter_SkipsEmptyRecipient(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, nil, logrus.New())

	e.BountyCancelled(context.Background(), bounty, "")
	assert.Empty(t, sink.sent)

	var nilEmitter *Emitter
	nilEmitter.BountyCompleted(context.Background(), bounty, bid)
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "100 USDC", amount(100, "USDC"))
	assert.Equal(t, "0.5", amount(0.5, ""))
}
