package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	Size          string          `json:"size" binding:"required"`
	WidthCM       *int            `json:"width_cm"`
	LengthCM      *int            `json:"length_cm"`
	FabricType    string          `json:"fabric_type" binding:"required"`
	Color         string          `json:"color"`
	Material      string          `json:"material"`
	WeightGSM     *int            `json:"weight_gsm"`
	DeliveryDate  *time.Time      `json:"delivery_date"`
	CustomerNotes string          `json:"customer_notes"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
}

// AddItemRequest adds a priced line to an order
type AddItemRequest struct {
	Title     string          `json:"title" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// AddSectionRequest places a catalog design at a print location
type AddSectionRequest struct {
	PrintLocationID string  `json:"print_location_id" binding:"required,uuid"`
	DesignID        string  `json:"design_id" binding:"required,uuid"`
	OrderItemID     *string `json:"order_item_id"`
	Quantity        int     `json:"quantity" binding:"required,gt=0"`
	Orientation     string  `json:"orientation"`
	CustomWidth     *int    `json:"custom_width"`
	CustomHeight    *int    `json:"custom_height"`
	Instructions    string  `json:"instructions"`
}

// UpdateSectionRequest changes a placed section; omitted fields are kept
type UpdateSectionRequest struct {
	Quantity     *int    `json:"quantity"`
	Orientation  *string `json:"orientation"`
	CustomWidth  *int    `json:"custom_width"`
	CustomHeight *int    `json:"custom_height"`
	Instructions *string `json:"instructions"`
}

// ConfirmOrderRequest optionally names the business to bind; shop staff default to their own
type ConfirmOrderRequest struct {
	BusinessID *string `json:"business_id"`
}

// ReasonRequest carries the free-text reason of a cancel or return
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// AdvanceStageRequest moves one stage
type AdvanceStageRequest struct {
	Status     string  `json:"status" binding:"required"`
	AssigneeID *string `json:"assignee_id"`
}

// StagePaymentRequest sets the amount due on a stage
type StagePaymentRequest struct {
	AmountDue decimal.Decimal `json:"amount_due"`
	DueDate   *time.Time      `json:"due_date"`
}

// canSeeOrder applies the same visibility rules as ListOrders
func canSeeOrder(actor services.Actor, order *models.Order) bool {
	switch {
	case actor.HasRole(models.RoleOperator):
		return true
	case actor.BusinessID != nil:
		return order.BusinessID != nil && *order.BusinessID == *actor.BusinessID
	default:
		return order.CustomerID == actor.UserID
	}
}

// visibleOrder loads orderID and renders 404 unless canSeeOrder holds
func visibleOrder(c *gin.Context, svc *services.Core, actor services.Actor, orderID uuid.UUID) (*models.Order, bool) {
	order, err := svc.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !canSeeOrder(actor, order) {
		respondFailure(c, http.StatusNotFound, string(services.CodeNotFound), "Order not found")
		return nil, false
	}
	return order, true
}

// loadVisibleOrder loads the :id order and renders 404 when the caller may not see it
func loadVisibleOrder(c *gin.Context, svc *services.Core, actor services.Actor) (*models.Order, bool) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	order, err := svc.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	// pending orders are open to every shop so one can pick them up
	if !canSeeOrder(actor, order) && !(order.Status == models.OrderPending && actor.BusinessID != nil) {
		respondFailure(c, http.StatusNotFound, string(services.CodeNotFound), "Order not found")
		return nil, false
	}
	return order, true
}

// CreateOrder handles POST /api/v1/orders - creates a draft order for the calling customer
func CreateOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := svc.Orders.CreateOrder(c.Request.Context(), actor, services.CreateOrderParams{
		CustomerID:    actor.UserID,
		Size:          req.Size,
		WidthCM:       req.WidthCM,
		LengthCM:      req.LengthCM,
		FabricType:    req.FabricType,
		Color:         req.Color,
		Material:      req.Material,
		WeightGSM:     req.WeightGSM,
		DeliveryDate:  req.DeliveryDate,
		CustomerNotes: req.CustomerNotes,
		DepositAmount: req.DepositAmount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, order)
}

// ListOrders handles GET /api/v1/orders
// Customers see their own orders, shop staff the orders bound to their business
func ListOrders(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	orders, err := svc.Orders.ListOrders(c.Request.Context(), actor, services.OrderFilter{
		Status: models.OrderStatus(c.Query("status")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, orders)
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, order)
}

// AddOrderItem handles POST /api/v1/orders/:id/items
func AddOrderItem(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := svc.Orders.AddItem(c.Request.Context(), actor, order.ID, req.Title, req.Quantity, req.UnitPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, item)
}

// RemoveOrderItem handles DELETE /api/v1/orders/:id/items/:item_id
func RemoveOrderItem(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	updated, err := svc.Orders.RemoveItem(c.Request.Context(), actor, order.ID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// AddOrderSection handles POST /api/v1/orders/:id/sections
func AddOrderSection(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req AddSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	itemID, ok := parseOptionalUUID(c, req.OrderItemID, "order_item_id")
	if !ok {
		return
	}
	section, err := svc.Orders.AddSection(c.Request.Context(), actor, services.AddSectionParams{
		OrderID:         order.ID,
		PrintLocationID: uuid.MustParse(req.PrintLocationID),
		DesignID:        uuid.MustParse(req.DesignID),
		OrderItemID:     itemID,
		Quantity:        req.Quantity,
		Orientation:     req.Orientation,
		CustomWidth:     req.CustomWidth,
		CustomHeight:    req.CustomHeight,
		Instructions:    req.Instructions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, section)
}

// UpdateOrderSection handles PATCH /api/v1/orders/:id/sections/:section_id
func UpdateOrderSection(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	sectionID, ok := uuidParam(c, "section_id")
	if !ok {
		return
	}
	var req UpdateSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := svc.Orders.UpdateSection(c.Request.Context(), actor, order.ID, sectionID, services.UpdateSectionParams{
		Quantity:     req.Quantity,
		Orientation:  req.Orientation,
		CustomWidth:  req.CustomWidth,
		CustomHeight: req.CustomHeight,
		Instructions: req.Instructions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, section)
}

// RemoveOrderSection handles DELETE /api/v1/orders/:id/sections/:section_id
func RemoveOrderSection(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	sectionID, ok := uuidParam(c, "section_id")
	if !ok {
		return
	}
	updated, err := svc.Orders.RemoveSection(c.Request.Context(), actor, order.ID, sectionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// SubmitOrder handles POST /api/v1/orders/:id/submit
func SubmitOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	updated, err := svc.Orders.Submit(c.Request.Context(), actor, order.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// ConfirmOrder handles POST /api/v1/orders/:id/confirm - a shop accepts a pending order
func ConfirmOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req ConfirmOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	businessID, ok := parseOptionalUUID(c, req.BusinessID, "business_id")
	if !ok {
		return
	}
	if businessID == nil {
		businessID = actor.BusinessID
	}
	if !actor.HasRole(models.RoleOperator) && businessID != nil && actor.BusinessID != nil && *businessID != *actor.BusinessID {
		respondFailure(c, http.StatusForbidden, string(services.CodeForbidden), "Orders can only be confirmed for your own business")
		return
	}
	updated, err := svc.Orders.Confirm(c.Request.Context(), actor, order.ID, businessID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req ReasonRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	updated, err := svc.Orders.Cancel(c.Request.Context(), actor, order.ID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// ReturnOrder handles POST /api/v1/orders/:id/return
func ReturnOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req ReasonRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	updated, err := svc.Orders.Return(c.Request.Context(), actor, order.ID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// CompleteOrder handles POST /api/v1/orders/:id/complete
func CompleteOrder(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	updated, err := svc.Orders.MarkCompleted(c.Request.Context(), actor, order.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// AdvanceOrderStage handles POST /api/v1/orders/:id/stages/:stage/advance
func AdvanceOrderStage(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req AdvanceStageRequest
	if !bindJSON(c, &req) {
		return
	}
	assignee, ok := parseOptionalUUID(c, req.AssigneeID, "assignee_id")
	if !ok {
		return
	}
	updated, err := svc.Orders.AdvanceStage(c.Request.Context(), actor, order.ID,
		models.StageType(c.Param("stage")), models.StageStatus(req.Status), assignee)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// SetOrderStagePayment handles PUT /api/v1/orders/:id/stages/:stage/payment
func SetOrderStagePayment(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	order, ok := loadVisibleOrder(c, svc, actor)
	if !ok {
		return
	}
	var req StagePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	stage, err := svc.Orders.SetStagePayment(c.Request.Context(), actor, order.ID,
		models.StageType(c.Param("stage")), req.AmountDue, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, stage)
}
