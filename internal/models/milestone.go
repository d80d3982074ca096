package models

import "time"

// MilestoneStatus - статус этапа.
type MilestoneStatus string

const (
	PendingMilestone   MilestoneStatus = "Pending"
	CompletedMilestone MilestoneStatus = "Completed"
	OverdueMilestone   MilestoneStatus = "Overdue" // не хранится, вычисляется при чтении
)

// Milestone представляет модель этапа работы по предложению.
type Milestone struct {
	ID             string          `json:"id"`
	BidID          string          `json:"bidId"`
	Index          int             `json:"index"`
	Description    string          `json:"description"`
	DueDate        time.Time       `json:"dueDate"`
	PaymentAmount  float64         `json:"paymentAmount"`
	Status         MilestoneStatus `json:"status"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	CompletedBy    string          `json:"completedBy,omitempty"`
	ReviewComments string          `json:"reviewComments,omitempty"`
}

// MilestoneRequest - один этап в запросе на создание графика.
type MilestoneRequest struct {
	Description   string    `json:"description"`
	DueDate       time.Time `json:"dueDate"`
	PaymentAmount float64   `json:"paymentAmount"`
}

// MilestoneApproval - запрос на приемку этапа.
type MilestoneApproval struct {
	ApproverAddress string `json:"approverAddress"`
	Comments        string `json:"comments"`
}

// EffectiveStatus возвращает статус с учетом просрочки на момент now.
func (m Milestone) EffectiveStatus(now time.Time) MilestoneStatus {
	if m.Status == CompletedMilestone {
		return CompletedMilestone
	}
	if !m.DueDate.IsZero() && m.DueDate.Before(now) {
		return OverdueMilestone
	}
	return PendingMilestone
}
