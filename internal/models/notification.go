package models

import "time"

// NotificationKind - тип уведомления.
type NotificationKind string

const (
	BidSubmitted       NotificationKind = "bid_submitted"
	BidApproved        NotificationKind = "bid_approved"
	BidRejected        NotificationKind = "bid_rejected"
	ReviewRequested    NotificationKind = "review_requested"
	MilestoneCompleted NotificationKind = "milestone_completed"
	BountyCompleted    NotificationKind = "bounty_completed"
	BountyCancelled    NotificationKind = "bounty_cancelled"
)

// Notification - сообщение для подсистемы уведомлений.
type Notification struct {
	Recipient string           `json:"recipient"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"createdAt"`
}
