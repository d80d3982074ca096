package router

import (
	"net/http"

	"github.com/senyabanana/bounty-service/internal/handlers"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func InitRoutes(
	bountyHandler *handlers.BountyHandler,
	bidHandler *handlers.BidHandler,
	milestoneHandler *handlers.MilestoneHandler,
	transactionHandler *handlers.TransactionHandler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ping", handlers.PingHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/bounties", bountyHandler.GetBounties)
	mux.HandleFunc("/api/bounties/new", bountyHandler.CreateBounty)
	mux.HandleFunc("/api/bounties/{bountyId}", bountyHandler.GetBounty)
	mux.HandleFunc("/api/bounties/{bountyId}/complete", bountyHandler.ApproveCompletion)
	mux.HandleFunc("/api/bounties/{bountyId}/cancel", bountyHandler.CancelBounty)
	mux.HandleFunc("/api/bounties/{bountyId}/bids", bidHandler.GetBountyBids)

	mux.HandleFunc("/api/bids/new", bidHandler.CreateBid)
	mux.HandleFunc("/api/bids/{bidId}", bidHandler.GetBid)
	mux.HandleFunc("/api/bids/{bidId}/approve", bidHandler.ApproveBid)
	mux.HandleFunc("/api/bids/{bidId}/reject", bidHandler.RejectBid)
	mux.HandleFunc("/api/bids/{bidId}/reviews", bidHandler.GetBidReviews)
	mux.HandleFunc("/api/bids/{bidId}/milestones", milestoneHandler.BidMilestones)

	mux.HandleFunc("/api/milestones/{milestoneId}/approve", milestoneHandler.ApproveMilestone)

	mux.HandleFunc("/api/transactions/reconcile", transactionHandler.ReconcilePending)
	mux.HandleFunc("/api/transactions/{txHash}/apply", transactionHandler.ApplyTransaction)

	return mux
}
