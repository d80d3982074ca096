package models

import "time"

type (
	PaymentStructure string // Схема выплаты по баунти
	BountyStatus     string // Статус баунти
)

const (
	PaymentCompletion PaymentStructure = "Completion" // Вся сумма после завершения
	PaymentMilestones PaymentStructure = "Milestones" // Выплата по этапам
	PaymentSplit      PaymentStructure = "Split"      // Аванс плюс выплата после завершения

	OpenBounty       BountyStatus = "Open"       // Баунти открыто для предложений
	InProgressBounty BountyStatus = "InProgress" // Исполнитель назначен
	CompletedBounty  BountyStatus = "Completed"  // Работа принята, эскроу закрыт
	CancelledBounty  BountyStatus = "Cancelled"  // Баунти отменено создателем
)

// AmountTolerance - допустимое расхождение сумм при округлении.
const AmountTolerance = 0.01

// Money представляет сумму в токене.
type Money struct {
	Amount float64 `json:"amount"`
	Token  string  `json:"token"`
}

// Bounty представляет модель баунти.
type Bounty struct {
	ID               string           `json:"id"`
	OnchainID        string           `json:"onchainId"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	Value            Money            `json:"value"`
	Requirements     []string         `json:"requirements"`
	Questions        []string         `json:"questions"`
	PaymentStructure PaymentStructure `json:"paymentStructure"`
	UpfrontAmount    float64          `json:"upfrontAmount"`
	CompletionAmount float64          `json:"completionAmount"`
	Status           BountyStatus     `json:"status"`
	CreatorAddress   string           `json:"creatorAddress"`
	Version          int32            `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// BountyRequest представляет структуру запроса для публикации баунти.
type BountyRequest struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	Value            Money            `json:"value"`
	TokenAddress     string           `json:"tokenAddress"`
	Requirements     []string         `json:"requirements"`
	Questions        []string         `json:"questions"`
	PaymentStructure PaymentStructure `json:"paymentStructure"`
	UpfrontAmount    float64          `json:"upfrontAmount"`
	CompletionAmount float64          `json:"completionAmount"`
	CreatorAddress   string           `json:"creatorAddress"`
}

// EscrowSplit - распределение суммы эскроу между авансом и финальной выплатой.
type EscrowSplit struct {
	Upfront    float64 `json:"upfront"`
	Completion float64 `json:"completion"`
}

// ValidPaymentStructure проверяет, что схема выплаты известна.
func ValidPaymentStructure(p PaymentStructure) bool {
	switch p {
	case PaymentCompletion, PaymentMilestones, PaymentSplit:
		return true
	}
	return false
}

// AmountsEqual сравнивает суммы с учетом AmountTolerance.
func AmountsEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= AmountTolerance+1e-9
}
