package models

import (
	"encoding/json"
	"time"
)

type (
	ApplyOperation string // Операция, применяемая после подтверждения транзакции
	ApplyStatus    string
)

const (
	OpPublishBounty     ApplyOperation = "publish_bounty"
	OpSubmitBid         ApplyOperation = "submit_bid"
	OpApproveBid        ApplyOperation = "approve_bid"
	OpCreateMilestones  ApplyOperation = "create_milestones"
	OpApproveMilestone  ApplyOperation = "approve_milestone"
	OpApproveCompletion ApplyOperation = "approve_completion"
	OpCancelBounty      ApplyOperation = "cancel_bounty"

	PendingApply ApplyStatus = "pending"
	AppliedApply ApplyStatus = "applied"
)

// AppliedTransaction - запись журнала подтвержденных транзакций.
// Payload хранит все, что нужно для повторной записи без обращения к контракту.
type AppliedTransaction struct {
	TxHash    string          `json:"txHash"`
	Operation ApplyOperation  `json:"operation"`
	SubjectID string          `json:"subjectId"`
	Payload   json.RawMessage `json:"payload"`
	Status    ApplyStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	AppliedAt *time.Time      `json:"appliedAt,omitempty"`
}

// BidApprovalApply - данные для записи одобрения предложения.
type BidApprovalApply struct {
	BidID             string    `json:"bidId"`
	BountyID          string    `json:"bountyId"`
	ExpectedVersion   int32     `json:"expectedVersion"`
	TechnicalReviewer string    `json:"technicalReviewer"`
	FinalApprover     string    `json:"finalApprover"`
	ReviewedBy        string    `json:"reviewedBy"`
	ReviewID          string    `json:"reviewId"`
	ReviewedAt        time.Time `json:"reviewedAt"`
}

// MilestonesApply - данные для записи графика этапов.
type MilestonesApply struct {
	BidID      string      `json:"bidId"`
	Milestones []Milestone `json:"milestones"`
}

// MilestoneCompletionApply - данные для записи приемки этапа.
type MilestoneCompletionApply struct {
	MilestoneID string    `json:"milestoneId"`
	CompletedBy string    `json:"completedBy"`
	Comments    string    `json:"comments"`
	CompletedAt time.Time `json:"completedAt"`
}

// BountyTransitionApply - данные для смены статуса баунти.
type BountyTransitionApply struct {
	BountyID        string         `json:"bountyId"`
	From            []BountyStatus `json:"from"`
	To              BountyStatus   `json:"to"`
	ExpectedVersion int32          `json:"expectedVersion"`
}
