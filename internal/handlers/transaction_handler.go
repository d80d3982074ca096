package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/senyabanana/bounty-service/internal/services"
	"github.com/senyabanana/bounty-service/internal/utils"

	"github.com/sirupsen/logrus"
)

// Reconciler - повторное применение подтвержденных транзакций.
type Reconciler interface {
	ApplyConfirmed(ctx context.Context, txHash string) error
	ReconcilePending(ctx context.Context, limit int) (services.ReconcileReport, error)
}

type TransactionHandler struct {
	Service Reconciler
	Logger  *logrus.Logger
	Timeout time.Duration
}

func NewTransactionHandler(service Reconciler, logger *logrus.Logger, timeout time.Duration) *TransactionHandler {
	return &TransactionHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// ApplyTransaction дописывает в хранилище эффект уже подтвержденной транзакции.
func (h *TransactionHandler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	txHash := r.PathValue("txHash")
	if err := h.Service.ApplyConfirmed(ctx, txHash); err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"txHash": txHash, "status": "applied"})
}

// ReconcilePending прогоняет журнал неприменённых транзакций.
func (h *TransactionHandler) ReconcilePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			utils.SendErrorResponse(w, http.StatusBadRequest, "invalid limit parameter, must be a positive integer")
			return
		}
	}

	report, err := h.Service.ReconcilePending(ctx, limit)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}
