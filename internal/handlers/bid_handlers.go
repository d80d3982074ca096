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

// BidWorkflow - операции с предложениями, доступные обработчикам.
type BidWorkflow interface {
	SubmitBid(ctx context.Context, req models.BidRequest) (*models.Bid, error)
	GetBid(ctx context.Context, bidId string) (*models.Bid, error)
	GetBountyBids(ctx context.Context, bountyId string, statuses []string, limitStr, offsetStr string) ([]models.Bid, error)
	GetBidReviews(ctx context.Context, bidId string) ([]models.BidReview, error)
	ApproveBid(ctx context.Context, bidId string, req models.ApprovalRequest) (*models.Bid, error)
	RejectBid(ctx context.Context, bidId string, req models.RejectionRequest) (*models.Bid, error)
}

// BidHandler - структура для обработки HTTP-запросов.
type BidHandler struct {
	Service BidWorkflow
	Logger  *logrus.Logger
	Timeout time.Duration
}

// NewBidHandler создает новый экземпляр BidHandler.
func NewBidHandler(service BidWorkflow, logger *logrus.Logger, timeout time.Duration) *BidHandler {
	return &BidHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// CreateBid обрабатывает запросы для подачи предложения.
func (h *BidHandler) CreateBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var bidReq models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&bidReq); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newBid, err := h.Service.SubmitBid(ctx, bidReq)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, newBid)
}

// GetBid обрабатывает запросы для получения предложения.
func (h *BidHandler) GetBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bid, err := h.Service.GetBid(ctx, r.PathValue("bidId"))
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// GetBountyBids обрабатывает запросы для получения списка предложений по баунти.
func (h *BidHandler) GetBountyBids(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	query := r.URL.Query()
	bids, err := h.Service.GetBountyBids(ctx, r.PathValue("bountyId"), utils.ParseStatuses(query["status"]), query.Get("limit"), query.Get("offset"))
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	utils.SendJSON(w, http.StatusOK, bids)
}

// GetBidReviews обрабатывает запросы для получения ревью по предложению.
func (h *BidHandler) GetBidReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	reviews, err := h.Service.GetBidReviews(ctx, r.PathValue("bidId"))
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	if reviews == nil {
		reviews = []models.BidReview{}
	}
	utils.SendJSON(w, http.StatusOK, reviews)
}

// ApproveBid обрабатывает одобрение предложения создателем баунти.
func (h *BidHandler) ApproveBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.Service.ApproveBid(ctx, r.PathValue("bidId"), req)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}

// RejectBid обрабатывает отклонение предложения.
func (h *BidHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.RejectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.Service.RejectBid(ctx, r.PathValue("bidId"), req)
	if err != nil {
		utils.SendWorkflowError(w, h.Logger, err)
		return
	}
	utils.SendJSON(w, http.StatusOK, bid)
}
