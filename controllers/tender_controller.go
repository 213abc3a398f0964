package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/shopspring/decimal"
)

// OpenTenderRequest posts a tender
type OpenTenderRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Quantity    int        `json:"quantity" binding:"gte=0"`
	Deadline    *time.Time `json:"deadline"`
	OrderID     *string    `json:"order_id"`
}

// PlaceBidRequest is a shop's offer
type PlaceBidRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

// AcceptBidRequest optionally picks the workshop that takes the award task
type AcceptBidRequest struct {
	WorkshopID *string `json:"workshop_id"`
}

// loadOwnedTender loads :id and renders 403 unless the caller posted it
func loadOwnedTender(c *gin.Context, svc *services.Core, actor services.Actor) (*models.Tender, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	tender, err := svc.Tenders.GetTender(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if tender.CustomerID != actor.UserID && !actor.HasRole(models.RoleOperator) {
		respondFailure(c, http.StatusForbidden, string(services.CodeForbidden), "Only the customer who posted the tender can do this")
		return nil, false
	}
	return tender, true
}

// OpenTender handles POST /api/v1/tenders
func OpenTender(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req OpenTenderRequest
	if !bindJSON(c, &req) {
		return
	}
	orderID, ok := parseOptionalUUID(c, req.OrderID, "order_id")
	if !ok {
		return
	}
	tender, err := svc.Tenders.OpenTender(c.Request.Context(), actor, services.OpenTenderParams{
		CustomerID:  actor.UserID,
		OrderID:     orderID,
		Title:       req.Title,
		Description: req.Description,
		Quantity:    req.Quantity,
		Deadline:    req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, tender)
}

// ListOpenTenders handles GET /api/v1/tenders
func ListOpenTenders(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	tenders, err := svc.Tenders.ListOpenTenders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tenders)
}

// GetTender handles GET /api/v1/tenders/:id
func GetTender(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tender, err := svc.Tenders.GetTender(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tender)
}

// PlaceBid handles POST /api/v1/tenders/:id/bids - bids for the caller's business
func PlaceBid(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	if actor.BusinessID == nil {
		respondFailure(c, http.StatusForbidden, string(services.CodeForbidden), "Only print shops can bid")
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req PlaceBidRequest
	if !bindJSON(c, &req) {
		return
	}
	bid, err := svc.Tenders.PlaceBid(c.Request.Context(), actor, id, *actor.BusinessID, req.Amount, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, bid)
}

// AcceptBid handles POST /api/v1/tenders/:id/bids/:bid_id/accept
func AcceptBid(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	tender, ok := loadOwnedTender(c, svc, actor)
	if !ok {
		return
	}
	bidID, ok := uuidParam(c, "bid_id")
	if !ok {
		return
	}
	var req AcceptBidRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	workshopID, ok := parseOptionalUUID(c, req.WorkshopID, "workshop_id")
	if !ok {
		return
	}
	awarded, err := svc.Tenders.AcceptBid(c.Request.Context(), actor, tender.ID, bidID, workshopID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, awarded)
}

// CloseTender handles POST /api/v1/tenders/:id/close
func CloseTender(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	tender, ok := loadOwnedTender(c, svc, actor)
	if !ok {
		return
	}
	closed, err := svc.Tenders.CloseTender(c.Request.Context(), actor, tender.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, closed)
}

// CancelTender handles POST /api/v1/tenders/:id/cancel
func CancelTender(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	tender, ok := loadOwnedTender(c, svc, actor)
	if !ok {
		return
	}
	cancelled, err := svc.Tenders.CancelTender(c.Request.Context(), actor, tender.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, cancelled)
}
