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

// MilestoneWorkflow - операции с этапами, доступные обработчикам.
type MilestoneWorkflow interface {
	CreateMilestones(ctx context.Context, bidId, caller string, reqs []models.MilestoneRequest) ([]models.Milestone, error)
	ApproveMilestone(ctx context.Context, milestoneId string, req models.MilestoneApproval) (*models.Milestone, error)
	GetBidMilestones(ctx context.Context, bidId string) ([]models.Milestone, error)
}

// MilestoneScheduleRequest - тело запроса на создание графика этапов.
type MilestoneScheduleRequest struct {
	CallerAddress string                    `json:"callerAddress"`
	Milestones    []models.MilestoneRequest `json:"milestones"`
}

type MilestoneHandler struct {
	Service MilestoneWorkflow
	Logger  *logrus.Logger
	Timeout time.Duration
}

func NewMilestoneHandler(service MilestoneWorkflow, logger *logrus.Logger, timeout time.Duration) *MilestoneHandler {
	return &MilestoneHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// BidMilestones создает график этапов (POST) или возвращает его (GET).
func (h *MilestoneHandler) BidMilestones(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidId := r.PathValue("bidId")

	switch r.Method {
	case http.MethodGet:
		milestones, err := h.Service.GetBidMilestones(ctx, bidId)
		if err != nil {
			utils.SendWorkflowError(w, h.Logger, err)
			return
		}
		if milestones == nil {
			milestones = []models.Milestone{}
		}
		utils.SendJSON(w, http.StatusOK, milestones)
	case http.MethodPost:
		var req MilestoneScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
		milestones, err := h.Service.CreateMilestones(ctx, bidId, req.CallerAddress, req.Milestones)
		if err != nil {
			utils.SendWorkflowError(w, h.Logger, err)
			return
		}
		utils.SendJSON(w, http.StatusOK, milestones)
	default:
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET and POST are allowed")
	}
}

// ApproveMilestone обрабатывает приемку этапа техническим ревьюером.
func (h *MilestoneHandler) ApproveMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.MilestoneApproval
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	milestone, err := h.Service.ApproveMilestone(ctx, r.PathValue("milestoneId"), req)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, milestone)
}
