// Package escrow - типизированный клиент контракта эскроу баунти.
// Клиент не хранит бизнес-состояния и является единственным местом,
// где ожидается подтверждение транзакций в сети.
package escrow

import (
	"context"
	"strings"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt - подтвержденная транзакция.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	BountyID    string `json:"bountyId,omitempty"` // из события BountyCreated, если оно есть в логах
}

// CreateBountyParams - аргументы createBounty.
type CreateBountyParams struct {
	Title            string
	Category         string
	Value            float64
	TokenAddress     string
	PaymentStructure models.PaymentStructure
	UpfrontAmount    float64
	CompletionAmount float64
}

// Gateway - операции контракта эскроу. Каждый вызов либо подтвержден в сети,
// либо возвращает *models.WorkflowError с классом Contract, Conflict или Timeout.
type Gateway interface {
	CreateBounty(ctx context.Context, p CreateBountyParams) (string, Receipt, error)
	CreateMilestones(ctx context.Context, onchainID string, dueDates []time.Time, amounts []float64) (Receipt, error)
	PlaceBid(ctx context.Context, onchainID string) (Receipt, error)
	AssignBounty(ctx context.Context, onchainID, bidder, technicalReviewer, finalApprover string) (Receipt, error)
	ApproveMilestone(ctx context.Context, onchainID string, milestoneIndex int) (Receipt, error)
	ApproveCompletion(ctx context.Context, onchainID string) (Receipt, error)
	CancelBounty(ctx context.Context, onchainID string) (Receipt, error)
	Confirmed(ctx context.Context, txHash string) (Receipt, error)
}

// ValidAddress проверяет формат адреса 0x + 40 hex-символов.
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// SameAddress сравнивает адреса без учета регистра контрольной суммы.
func SameAddress(a, b string) bool {
	if !ValidAddress(a) || !ValidAddress(b) {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// CanonicalAddress возвращает адрес в формате EIP-55.
func CanonicalAddress(addr string) string {
	if !ValidAddress(addr) {
		return strings.TrimSpace(addr)
	}
	return common.HexToAddress(addr).Hex()
}
