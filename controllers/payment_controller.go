package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/shopspring/decimal"
)

// BeginPaymentRequest starts a payment attempt on a stage
type BeginPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Provider    string          `json:"provider" binding:"required"`
	ExternalRef string          `json:"external_ref"`
}

// FinalizePaymentRequest records the provider's outcome
type FinalizePaymentRequest struct {
	Outcome     string `json:"outcome" binding:"required,oneof=SUCCESS FAIL"`
	ExternalRef string `json:"external_ref"`
}

// stageOrder resolves :stage_id and the order behind it, rendering 404 when the
// caller may not see that order
func stageOrder(c *gin.Context, svc *services.Core, actor services.Actor) (*models.OrderStage, bool) {
	stageID, ok := uuidParam(c, "stage_id")
	if !ok {
		return nil, false
	}
	stage, err := svc.Payments.GetStage(c.Request.Context(), stageID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if _, ok := visibleOrder(c, svc, actor, stage.OrderID); !ok {
		return nil, false
	}
	return stage, true
}

// BeginPayment handles POST /api/v1/stages/:stage_id/payments
func BeginPayment(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	stage, ok := stageOrder(c, svc, actor)
	if !ok {
		return
	}
	var req BeginPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := svc.Payments.BeginPayment(c.Request.Context(), actor, services.BeginPaymentParams{
		StageID:     stage.ID,
		Amount:      req.Amount,
		Provider:    req.Provider,
		ExternalRef: req.ExternalRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, txn)
}

// ListStagePayments handles GET /api/v1/stages/:stage_id/payments
func ListStagePayments(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	stage, ok := stageOrder(c, svc, actor)
	if !ok {
		return
	}
	txns, err := svc.Payments.GetStagePayments(c.Request.Context(), stage.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, txns)
}

// FinalizePayment handles POST /api/v1/payments/:id/finalize
// Only the paying customer or an operator records the outcome. Repeating the
// call with the same external_ref returns the recorded outcome
func FinalizePayment(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	current, err := svc.Payments.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	order, ok := visibleOrder(c, svc, actor, current.OrderID)
	if !ok {
		return
	}
	if order.CustomerID != actor.UserID && !actor.HasRole(models.RoleOperator) {
		respondFailure(c, http.StatusForbidden, string(services.CodeForbidden), "Only the order's customer can settle its payments")
		return
	}
	var req FinalizePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := svc.Payments.FinalizePayment(c.Request.Context(), actor, id, models.TransactionStatus(req.Outcome), req.ExternalRef)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, txn)
}
