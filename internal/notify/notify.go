// Package notify доставляет уведомления о переходах рабочего процесса.
// Ошибка доставки никогда не отменяет уже выполненную операцию.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Sink - получатель уведомлений.
type Sink interface {
	Send(ctx context.Context, n models.Notification) error
}

// Namer возвращает отображаемое имя адреса.
type Namer interface {
	Name(ctx context.Context, address string) string
}

// RedisSink публикует уведомления в канал Redis в виде JSON.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink создает RedisSink.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Send публикует уведомление.
func (s *RedisSink) Send(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// LogSink пишет уведомления в лог. Используется, когда Redis не настроен.
type LogSink struct {
	Logger *logrus.Logger
}

// Send пишет уведомление в лог.
func (s LogSink) Send(_ context.Context, n models.Notification) error {
	s.Logger.WithFields(logrus.Fields{
		"recipient": n.Recipient,
		"kind":      n.Kind,
	}).Info(n.Title)
	return nil
}

// Emitter формирует тексты уведомлений и передает их в Sink.
type Emitter struct {
	sink   Sink
	names  Namer
	logger *logrus.Logger
	now    func() time.Time
}

// NewEmitter создает Emitter. names может быть nil.
func NewEmitter(sink Sink, names Namer, logger *logrus.Logger) *Emitter {
	return &Emitter{sink: sink, names: names, logger: logger, now: time.Now}
}

// BidSubmitted уведомляет создателя баунти о новом предложении.
func (e *Emitter) BidSubmitted(ctx context.Context, bounty models.Bounty, bid models.Bid) {
	e.emit(ctx, bounty.CreatorAddress, models.BidSubmitted,
		"New bid received",
		fmt.Sprintf("%s submitted a bid of %s for %q.", e.name(ctx, bid.BidderAddress), amount(bid.ProposedAmount, bounty.Value.Token), bounty.Title))
}

// BidApproved уведомляет исполнителя об одобрении.
func (e *Emitter) BidApproved(ctx context.Context, bounty models.Bounty, bid models.Bid) {
	e.emit(ctx, bid.BidderAddress, models.BidApproved,
		"Your bid was approved",
		fmt.Sprintf("Your bid for %q was approved. Technical reviewer: %s, final approver: %s.",
			bounty.Title, e.name(ctx, bid.ReviewerAddress), e.name(ctx, bid.FinalApproverAddress)))
}

// ReviewRequested уведомляет ревьюера о назначении.
func (e *Emitter) ReviewRequested(ctx context.Context, bounty models.Bounty, bid models.Bid, reviewer string, role models.ReviewType) {
	e.emit(ctx, reviewer, models.ReviewRequested,
		"Review requested",
		fmt.Sprintf("You were assigned as %s reviewer for the work of %s on %q.", role, e.name(ctx, bid.BidderAddress), bounty.Title))
}

// BidRejected уведомляет исполнителя об отклонении с причиной.
func (e *Emitter) BidRejected(ctx context.Context, bounty models.Bounty, bid models.Bid, reason string) {
	e.emit(ctx, bid.BidderAddress, models.BidRejected,
		"Your bid was rejected",
		fmt.Sprintf("Your bid for %q was rejected: %s", bounty.Title, reason))
}

// MilestoneCompleted уведомляет исполнителя о приемке этапа.
func (e *Emitter) MilestoneCompleted(ctx context.Context, bounty models.Bounty, bid models.Bid, m models.Milestone) {
	e.emit(ctx, bid.BidderAddress, models.MilestoneCompleted,
		"Milestone approved",
		fmt.Sprintf("Milestone %q of %q was approved by %s; %s released.",
			m.Description, bounty.Title, e.name(ctx, m.CompletedBy), amount(m.PaymentAmount, bounty.Value.Token)))
}

// BountyCompleted уведомляет исполнителя о закрытии баунти.
func (e *Emitter) BountyCompleted(ctx context.Context, bounty models.Bounty, bid models.Bid) {
	e.emit(ctx, bid.BidderAddress, models.BountyCompleted,
		"Bounty completed",
		fmt.Sprintf("%q was marked complete and the escrow was released.", bounty.Title))
}

// BountyCancelled уведомляет получателя об отмене баунти.
func (e *Emitter) BountyCancelled(ctx context.Context, bounty models.Bounty, recipient string) {
	e.emit(ctx, recipient, models.BountyCancelled,
		"Bounty cancelled",
		fmt.Sprintf("%q was cancelled by %s.", bounty.Title, e.name(ctx, bounty.CreatorAddress)))
}

func (e *Emitter) emit(ctx context.Context, recipient string, kind models.NotificationKind, title, message string) {
	if e == nil || e.sink == nil || strings.TrimSpace(recipient) == "" {
		return
	}
	n := models.Notification{
		Recipient: recipient,
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: e.now().UTC(),
	}
	if err := e.sink.Send(ctx, n); err != nil && e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"recipient": recipient,
			"kind":      kind,
		}).WithError(err).Warn("notification delivery failed")
	}
}

func (e *Emitter) name(ctx context.Context, address string) string {
	if e.names == nil {
		return address
	}
	return e.names.Name(ctx, address)
}

func amount(v float64, token string) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
	if token == "" {
		return s
	}
	return s + " " + token
}
