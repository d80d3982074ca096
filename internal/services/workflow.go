package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/senyabanana/bounty-service/internal/metrics"
	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/repository"

	"github.com/sirupsen/logrus"
)

// confirmedWriter сопровождает запись в хранилище после подтвержденной транзакции.
type confirmedWriter struct {
	journal repository.AppliedTxRepository
	logger  *logrus.Logger
	metrics *metrics.Workflow
}

// storeTimeout ограничивает запись в хранилище после подтверждения транзакции.
const storeTimeout = 30 * time.Second

// detached возвращает контекст для записи после подтверждения: отмена запроса
// не должна прерывать запись эффекта, который уже есть в сети.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// failed фиксирует неудачную запись после подтверждения и возвращает ConsistencyError.
func (w confirmedWriter) failed(ctx context.Context, op models.ApplyOperation, subjectID, txHash string, payload interface{}, cause error) error {
	entry := w.logger.WithFields(logrus.Fields{
		"severity":   "consistency",
		"op":         op,
		"subject_id": subjectID,
		"tx_hash":    txHash,
	}).WithError(cause)
	entry.Error("consistency_error: transaction confirmed but record not saved")
	w.metrics.RecordConsistencyError(string(op))

	if err := w.record(ctx, op, subjectID, txHash, payload); err != nil {
		entry.WithField("journal_error", err.Error()).Error("pending apply was not recorded")
	}
	return models.NewConsistencyError(string(op), txHash, cause)
}

// unconfirmed журналирует транзакцию, которая ушла в сеть, но не дождалась
// подтверждения. Ошибка шлюза возвращается без изменений.
func (w confirmedWriter) unconfirmed(ctx context.Context, op models.ApplyOperation, subjectID string, payload interface{}, cause error) error {
	txHash := models.TxHashOf(cause)
	if txHash == "" || models.KindOf(cause) != models.KindTimeout {
		return cause
	}
	entry := w.logger.WithFields(logrus.Fields{
		"op":         op,
		"subject_id": subjectID,
		"tx_hash":    txHash,
	}).WithError(cause)
	entry.Warn("transaction sent but not confirmed, recorded for reconcile")

	if err := w.record(ctx, op, subjectID, txHash, payload); err != nil {
		entry.WithField("journal_error", err.Error()).Error("pending apply was not recorded")
	}
	return cause
}

// record пишет отложенную запись журнала даже при отмененном ctx.
func (w confirmedWriter) record(ctx context.Context, op models.ApplyOperation, subjectID, txHash string, payload interface{}) error {
	if w.journal == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return w.journal.RecordPending(ctx, models.AppliedTransaction{
		TxHash:    txHash,
		Operation: op,
		SubjectID: subjectID,
		Payload:   body,
		Status:    models.PendingApply,
	})
}

// observe учитывает результат операции в метриках.
func (w confirmedWriter) observe(op string, err error) {
	if err == nil {
		w.metrics.ObserveTransition(op, "")
		return
	}
	w.metrics.ObserveTransition(op, string(models.KindOf(err)))
}

// storageErr оборачивает ошибки хранилища, не меняя уже классифицированные.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *models.WorkflowError
	if errors.As(err, &we) {
		return err
	}
	return models.NewStorageError(op, err)
}
