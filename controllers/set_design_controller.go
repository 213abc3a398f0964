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

// OpenSetRequest opens version 1 of an item's set design
type OpenSetRequest struct {
	OrderItemID         string          `json:"order_item_id" binding:"required,uuid"`
	SourceFiles         []string        `json:"source_files"`
	Complexity          int             `json:"complexity"`
	Price               decimal.Decimal `json:"price"`
	EstimatedCompletion *time.Time      `json:"estimated_completion"`
}

// AssignSetRequest names the designer of a waiting set
type AssignSetRequest struct {
	DesignerID string `json:"designer_id" binding:"required,uuid"`
}

// SubmitSetRequest attaches uploaded file keys for review
type SubmitSetRequest struct {
	FileKey    string `json:"file_key" binding:"required"`
	PreviewKey string `json:"preview_key"`
}

// ReviewSetRequest carries reviewer notes
type ReviewSetRequest struct {
	Notes string `json:"notes"`
}

// NewVersionRequest starts the follow-up version after a revision request
type NewVersionRequest struct {
	FileKey     string   `json:"file_key"`
	DesignerID  *string  `json:"designer_id"`
	SourceFiles []string `json:"source_files"`
}

// OpenSetDesign handles POST /api/v1/set-designs
func OpenSetDesign(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req OpenSetRequest
	if !bindJSON(c, &req) {
		return
	}
	set, err := svc.SetDesigns.OpenSet(c.Request.Context(), actor, services.OpenSetParams{
		OrderItemID:         uuid.MustParse(req.OrderItemID),
		SourceFiles:         req.SourceFiles,
		Complexity:          req.Complexity,
		Price:               req.Price,
		EstimatedCompletion: req.EstimatedCompletion,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, set)
}

// GetSetDesign handles GET /api/v1/set-designs/:id
func GetSetDesign(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	set, ok := loadSetFor(c, svc, actor, false)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, set)
}

// ListItemSetDesigns handles GET /api/v1/order-items/:item_id/set-designs
func ListItemSetDesigns(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	sets, err := svc.SetDesigns.ListSetsForItem(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	// every version of an item belongs to the same order
	if len(sets) > 0 {
		if _, ok := visibleOrder(c, svc, actor, sets[0].OrderID); !ok {
			return
		}
	}
	respondData(c, http.StatusOK, sets)
}

// loadSetFor loads the :id set design and renders 404 unless the caller is a
// party to its order. Outside a review the designer working the set also qualifies.
func loadSetFor(c *gin.Context, svc *services.Core, actor services.Actor, reviewing bool) (*models.SetDesign, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	set, err := svc.SetDesigns.GetSet(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !reviewing && (isActor(set.DesignerID, actor) || isActor(set.AssigneeID, actor)) {
		return set, true
	}
	if _, ok := visibleOrder(c, svc, actor, set.OrderID); !ok {
		return nil, false
	}
	return set, true
}

func isActor(id *uuid.UUID, actor services.Actor) bool {
	return id != nil && *id == actor.UserID
}

// setCommand runs one set design transition on :id and renders the result
func setCommand(c *gin.Context, status int, run func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error)) {
	runSetCommand(c, status, false, run)
}

// reviewCommand is setCommand for the customer's verdict on a submitted set
func reviewCommand(c *gin.Context, run func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error)) {
	runSetCommand(c, http.StatusOK, true, run)
}

func runSetCommand(c *gin.Context, status int, reviewing bool, run func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error)) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	current, ok := loadSetFor(c, svc, actor, reviewing)
	if !ok {
		return
	}
	set, err := run(svc, actor, current.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, status, set)
}

// AssignSetDesign handles POST /api/v1/set-designs/:id/assign
func AssignSetDesign(c *gin.Context) {
	var req AssignSetRequest
	if !bindJSON(c, &req) {
		return
	}
	setCommand(c, http.StatusOK, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.Assign(c.Request.Context(), actor, id, uuid.MustParse(req.DesignerID))
	})
}

// BeginSetDesign handles POST /api/v1/set-designs/:id/begin
func BeginSetDesign(c *gin.Context) {
	setCommand(c, http.StatusOK, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.Begin(c.Request.Context(), actor, id)
	})
}

// SubmitSetDesign handles POST /api/v1/set-designs/:id/submit
func SubmitSetDesign(c *gin.Context) {
	var req SubmitSetRequest
	if !bindJSON(c, &req) {
		return
	}
	setCommand(c, http.StatusOK, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.SubmitForReview(c.Request.Context(), actor, id, req.FileKey, req.PreviewKey)
	})
}

// ApproveSetDesign handles POST /api/v1/set-designs/:id/approve
func ApproveSetDesign(c *gin.Context) {
	reviewCommand(c, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.Approve(c.Request.Context(), actor, id, actor.UserID)
	})
}

// RejectSetDesign handles POST /api/v1/set-designs/:id/reject
func RejectSetDesign(c *gin.Context) {
	var req ReviewSetRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	reviewCommand(c, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.Reject(c.Request.Context(), actor, id, actor.UserID, req.Notes)
	})
}

// RequestSetRevision handles POST /api/v1/set-designs/:id/revision
func RequestSetRevision(c *gin.Context) {
	var req ReviewSetRequest
	if !bindJSON(c, &req) {
		return
	}
	reviewCommand(c, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.RequestRevision(c.Request.Context(), actor, id, actor.UserID, req.Notes)
	})
}

// NewSetDesignVersion handles POST /api/v1/set-designs/:id/new-version
func NewSetDesignVersion(c *gin.Context) {
	var req NewVersionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	designerID, ok := parseOptionalUUID(c, req.DesignerID, "designer_id")
	if !ok {
		return
	}
	setCommand(c, http.StatusCreated, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.NewVersion(c.Request.Context(), actor, id, services.NewVersionParams{
			FileKey:     req.FileKey,
			DesignerID:  designerID,
			SourceFiles: req.SourceFiles,
		})
	})
}

// CompleteSetDesign handles POST /api/v1/set-designs/:id/complete
func CompleteSetDesign(c *gin.Context) {
	setCommand(c, http.StatusOK, func(svc *services.Core, actor services.Actor, id uuid.UUID) (*models.SetDesign, error) {
		return svc.SetDesigns.Complete(c.Request.Context(), actor, id)
	})
}
