package escrow

import (
	"context"
	"errors"
	"strings"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Причины отката, означающие, что операция уже выполнена кем-то другим.
var conflictReasons = []string{
	"already assigned",
	"already approved",
	"already completed",
	"already cancelled",
	"already canceled",
	"already exists",
	"not open",
	"invalid status",
}

// Reason - нормализованная категория ошибки контракта.
type Reason string

const (
	ReasonReverted            Reason = "reverted"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonInsufficientAllow   Reason = "insufficient_allowance"
	ReasonRejectedByWallet    Reason = "rejected_by_wallet"
	ReasonNetwork             Reason = "network"
	ReasonAlreadyDone         Reason = "already_done"
	ReasonTimeout             Reason = "timeout"
)

// Classify переводит ошибку клиента сети в закрытую таксономию ошибок.
// Причина отката сохраняется в сообщении без изменений.
func Classify(op, txHash string, err error) error {
	if err == nil {
		return nil
	}
	var we *models.WorkflowError
	if errors.As(err, &we) {
		return err
	}

	reason, message := Explain(err)
	kind := models.KindContract
	switch reason {
	case ReasonAlreadyDone:
		kind = models.KindConflict
	case ReasonTimeout:
		kind = models.KindTimeout
		message = "confirmation wait timed out"
	case ReasonNetwork:
		// после отправки отмена ожидания не означает, что в сети ничего не произошло
		if txHash != "" && errors.Is(err, context.Canceled) {
			kind = models.KindTimeout
			message = "confirmation wait cancelled"
		}
	}
	return &models.WorkflowError{
		Kind:    kind,
		Op:      op,
		Message: string(reason) + ": " + message,
		TxHash:  txHash,
		Err:     err,
	}
}

// notConfirmed - транзакция отправлена, но подтверждение не получено.
// Исход в сети неизвестен, поэтому это всегда Timeout с хэшем.
func notConfirmed(op, txHash string, err error) error {
	var we *models.WorkflowError
	if errors.As(err, &we) && we.Kind == models.KindTimeout {
		return err
	}
	return &models.WorkflowError{
		Kind:    models.KindTimeout,
		Op:      op,
		Message: string(ReasonTimeout) + ": confirmation not observed",
		TxHash:  txHash,
		Err:     err,
	}
}

// Explain определяет категорию ошибки и извлекает причину отката, если она есть.
func Explain(err error) (Reason, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, err.Error()
	}

	message := err.Error()
	if reverted, ok := RevertReason(err); ok {
		message = reverted
	}
	lower := strings.ToLower(message)

	for _, r := range conflictReasons {
		if strings.Contains(lower, r) {
			return ReasonAlreadyDone, message
		}
	}
	switch {
	case strings.Contains(lower, "insufficient funds"), strings.Contains(lower, "insufficient balance"),
		strings.Contains(lower, "exceeds balance"):
		return ReasonInsufficientBalance, message
	case strings.Contains(lower, "allowance"):
		return ReasonInsufficientAllow, message
	case strings.Contains(lower, "user rejected"), strings.Contains(lower, "user denied"),
		strings.Contains(lower, "rejected by user"):
		return ReasonRejectedByWallet, message
	case strings.Contains(lower, "revert"):
		return ReasonReverted, message
	case errors.Is(err, context.Canceled), strings.Contains(lower, "connection"),
		strings.Contains(lower, "eof"), strings.Contains(lower, "no such host"),
		strings.Contains(lower, "i/o timeout"):
		return ReasonNetwork, message
	}
	return ReasonReverted, message
}

// RevertReason извлекает строку Error(string) из данных ошибки JSON-RPC.
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok || hexData == "" {
		return "", false
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
