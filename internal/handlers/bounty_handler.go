package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"
	"github.com/senyabanana/bounty-service/internal/utils"

	"github.com/sirupsen/logrus"
)

// BountyWorkflow - операции с баунти, доступные обработчикам.
type BountyWorkflow interface {
	PublishBounty(ctx context.Context, req models.BountyRequest) (*models.Bounty, error)
	GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error)
	GetBounties(ctx context.Context, statuses []string, limitStr, offsetStr string) ([]models.Bounty, error)
	ApproveCompletion(ctx context.Context, bountyId, approver string) (*models.Bounty, error)
	CancelBounty(ctx context.Context, bountyId, caller string) (*models.Bounty, error)
}

// CallerRequest - тело запросов, где нужен только адрес вызывающего.
type CallerRequest struct {
	CallerAddress string `json:"callerAddress"`
}

// BountyHandler - структура для обработки HTTP-запросов.
type BountyHandler struct {
	Service BountyWorkflow
	Logger  *logrus.Logger
	Timeout time.Duration
}

// NewBountyHandler создает новый экземпляр BountyHandler.
func NewBountyHandler(service BountyWorkflow, logger *logrus.Logger, timeout time.Duration) *BountyHandler {
	return &BountyHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// CreateBounty обрабатывает запросы для публикации баунти.
func (h *BountyHandler) CreateBounty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var bountyReq models.BountyRequest
	if err := json.NewDecoder(r.Body).Decode(&bountyReq); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bounty, err := h.Service.PublishBounty(ctx, bountyReq)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bounty)
}

// GetBounties обрабатывает запросы для получения списка баунти.
func (h *BountyHandler) GetBounties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	query := r.URL.Query()
	bounties, err := h.Service.GetBounties(ctx, utils.ParseStatuses(query["status"]), query.Get("limit"), query.Get("offset"))
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	if bounties == nil {
		bounties = []models.Bounty{}
	}
	utils.SendJSON(w, http.StatusOK, bounties)
}

// GetBounty обрабатывает запросы для получения баунти.
func (h *BountyHandler) GetBounty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bounty, err := h.Service.GetBounty(ctx, r.PathValue("bountyId"))
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bounty)
}

// ApproveCompletion обрабатывает финальную приемку работы.
func (h *BountyHandler) ApproveCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bounty, err := h.Service.ApproveCompletion(ctx, r.PathValue("bountyId"), req.CallerAddress)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bounty)
}

// CancelBounty обрабатывает отмену баунти создателем.
func (h *BountyHandler) CancelBounty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bounty, err := h.Service.CancelBounty(ctx, r.PathValue("bountyId"), req.CallerAddress)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bounty)
}
