package models

import (
	"encoding/json"
	"time"
)

type (
	BidStatus     string // Статус предложения
	PaymentOption string // Способ оплаты, выбранный исполнителем
	ReviewType    string // Тип ревью
	ReviewStatus  string // Статус ревью
)

const (
	PendingBid  BidStatus = "Pending"  // Предложение ожидает решения
	ApprovedBid BidStatus = "Approved" // Предложение одобрено
	RejectedBid BidStatus = "Rejected" // Предложение отклонено
	ArchivedBid BidStatus = "Archived" // Баунти ушло другому исполнителю

	OptionCompletion PaymentOption = "completion"
	OptionMilestones PaymentOption = "milestones"
	OptionSplit      PaymentOption = "split"

	TechnicalReview ReviewType = "technical"
	FinalReview     ReviewType = "final"

	PendingReview  ReviewStatus = "Pending"
	ApprovedReview ReviewStatus = "Approved"
	RejectedReview ReviewStatus = "Rejected"
)

// Deliverable - результат работы, заявленный в предложении.
type Deliverable struct {
	Description   string    `json:"description"`
	DueDate       time.Time `json:"dueDate"`
	PaymentAmount float64   `json:"paymentAmount"`
}

// PaymentDetails - каноническое представление деталей оплаты.
// Kind повторяет PaymentOption, либо "legacy" для неразобранных старых записей.
type PaymentDetails struct {
	Kind             string        `json:"kind"`
	Milestones       []Deliverable `json:"milestones,omitempty"`
	UpfrontAmount    float64       `json:"upfrontAmount,omitempty"`
	CompletionAmount float64       `json:"completionAmount,omitempty"`
	Raw              string        `json:"raw,omitempty"`
}

// LegacyPaymentKind помечает детали оплаты, которые не удалось разобрать.
const LegacyPaymentKind = "legacy"

// Bid представляет модель предложения.
type Bid struct {
	ID                   string            `json:"id"`
	BountyID             string            `json:"bountyId"`
	BidderAddress        string            `json:"bidderAddress"`
	Experience           string            `json:"experience"`
	PlanOfAction         string            `json:"planOfAction"`
	Timeline             string            `json:"timeline"`
	AdditionalNotes      string            `json:"additionalNotes"`
	Deliverables         []Deliverable     `json:"deliverables"`
	ProposedAmount       float64           `json:"proposedAmount"`
	PaymentOption        PaymentOption     `json:"paymentOption"`
	PaymentDetails       PaymentDetails    `json:"paymentDetails"`
	Answers              map[string]string `json:"answers"`
	Status               BidStatus         `json:"status"`
	ReviewerAddress      string            `json:"reviewerAddress,omitempty"`
	FinalApproverAddress string            `json:"finalApproverAddress,omitempty"`
	SubmittedAt          time.Time         `json:"submittedAt"`
	ReviewedAt           *time.Time        `json:"reviewedAt,omitempty"`
	ReviewedBy           string            `json:"reviewedBy,omitempty"`
}

// BidRequest представляет структуру запроса для подачи предложения.
// Deliverables и PaymentDetails принимаются в любом историческом формате.
type BidRequest struct {
	BountyID        string            `json:"bountyId"`
	BidderAddress   string            `json:"bidderAddress"`
	Experience      string            `json:"experience"`
	PlanOfAction    string            `json:"planOfAction"`
	Timeline        string            `json:"timeline"`
	AdditionalNotes string            `json:"additionalNotes"`
	Deliverables    json.RawMessage   `json:"deliverables"`
	ProposedAmount  float64           `json:"proposedAmount"`
	PaymentOption   PaymentOption     `json:"paymentOption"`
	PaymentDetails  json.RawMessage   `json:"paymentDetails"`
	Answers         map[string]string `json:"answers"`
}

// BidReview представляет модель ревью по предложению.
type BidReview struct {
	ID              string       `json:"id"`
	BidID           string       `json:"bidId"`
	ReviewerAddress string       `json:"reviewerAddress"`
	ReviewType      ReviewType   `json:"reviewType"`
	Status          ReviewStatus `json:"status"`
	Comments        string       `json:"comments"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ApprovalRequest - запрос на одобрение предложения создателем баунти.
type ApprovalRequest struct {
	CallerAddress     string `json:"callerAddress"`
	TechnicalReviewer string `json:"technicalReviewer"`
	FinalApprover     string `json:"finalApprover"`
}

// RejectionRequest - запрос на отклонение предложения.
type RejectionRequest struct {
	CallerAddress string `json:"callerAddress"`
	Reason        string `json:"reason"`
}

// ValidPaymentOption проверяет, что способ оплаты известен.
func ValidPaymentOption(o PaymentOption) bool {
	switch o {
	case OptionCompletion, OptionMilestones, OptionSplit:
		return true
	}
	return false
}

// OptionFor возвращает способ оплаты, совместимый со схемой выплаты баунти.
func OptionFor(p PaymentStructure) PaymentOption {
	switch p {
	case PaymentMilestones:
		return OptionMilestones
	case PaymentSplit:
		return OptionSplit
	}
	return OptionCompletion
}

// MilestoneBased сообщает, выплачивается ли баунти по графику этапов.
func MilestoneBased(p PaymentStructure) bool {
	return p == PaymentMilestones
}
