package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
)

// CreateWorkshopRequest registers a workshop for the caller's business
type CreateWorkshopRequest struct {
	Name          string  `json:"name" binding:"required"`
	DailyCapacity int     `json:"daily_capacity" binding:"gte=0"`
	ManagerID     *string `json:"manager_id"`
	BusinessID    *string `json:"business_id"`
	Primary       bool    `json:"primary"`
}

// CapacityRequest sets a workshop's daily capacity
type CapacityRequest struct {
	DailyCapacity int `json:"daily_capacity" binding:"required,gt=0"`
}

// CreateTaskRequest reserves capacity for a piece of work
type CreateTaskRequest struct {
	WorkshopID string     `json:"workshop_id" binding:"required,uuid"`
	Title      string     `json:"title" binding:"required"`
	Quantity   int        `json:"quantity" binding:"required,gt=0"`
	DueDate    *time.Time `json:"due_date"`
	OrderID    *string    `json:"order_id"`
}

// ResizeTaskRequest changes the quantity of an open task
type ResizeTaskRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// ReportRequest appends a progress report
type ReportRequest struct {
	Progress int    `json:"progress" binding:"gte=0,lte=100"`
	Note     string `json:"note"`
}

// managesWorkshop reports whether the actor may run commands on ws
func managesWorkshop(actor services.Actor, ws *models.Workshop) bool {
	if actor.HasRole(models.RoleOperator) {
		return true
	}
	return actor.BusinessID != nil && ws.BusinessID != nil && *ws.BusinessID == *actor.BusinessID
}

func loadManagedWorkshop(c *gin.Context, svc *services.Core, actor services.Actor, id uuid.UUID) (*models.Workshop, bool) {
	ws, err := svc.Workshops.GetWorkshop(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !managesWorkshop(actor, ws) {
		respondFailure(c, http.StatusForbidden, string(services.CodeForbidden), "Workshop belongs to another business")
		return nil, false
	}
	return ws, true
}

func loadManagedTask(c *gin.Context, svc *services.Core, actor services.Actor) (*models.WorkshopTask, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	task, err := svc.Workshops.GetTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if _, ok := loadManagedWorkshop(c, svc, actor, task.WorkshopID); !ok {
		return nil, false
	}
	return task, true
}

// CreateWorkshop handles POST /api/v1/workshops
func CreateWorkshop(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req CreateWorkshopRequest
	if !bindJSON(c, &req) {
		return
	}
	managerID, ok := parseOptionalUUID(c, req.ManagerID, "manager_id")
	if !ok {
		return
	}
	businessID, ok := parseOptionalUUID(c, req.BusinessID, "business_id")
	if !ok {
		return
	}
	if businessID == nil || !actor.HasRole(models.RoleOperator) {
		businessID = actor.BusinessID
	}
	capacity := req.DailyCapacity
	if capacity == 0 {
		if cfg := config.GetConfig(); cfg != nil {
			capacity = cfg.DefaultDailyCapacity
		}
	}
	ws, err := svc.Workshops.CreateWorkshop(c.Request.Context(), actor, services.CreateWorkshopParams{
		BusinessID:    businessID,
		Name:          req.Name,
		ManagerID:     managerID,
		DailyCapacity: capacity,
		Primary:       req.Primary,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, ws)
}

// GetWorkshopCapacity handles GET /api/v1/workshops/:id/capacity
func GetWorkshopCapacity(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	snap, err := svc.Workshops.CapacitySnapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, snap)
}

// SetWorkshopCapacity handles PUT /api/v1/workshops/:id/capacity
func SetWorkshopCapacity(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadManagedWorkshop(c, svc, actor, id); !ok {
		return
	}
	var req CapacityRequest
	if !bindJSON(c, &req) {
		return
	}
	ws, err := svc.Workshops.SetDailyCapacity(c.Request.Context(), actor, id, req.DailyCapacity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, ws)
}

func setWorkshopActive(c *gin.Context, active bool) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadManagedWorkshop(c, svc, actor, id); !ok {
		return
	}
	ws, err := svc.Workshops.SetActive(c.Request.Context(), actor, id, active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, ws)
}

// ActivateWorkshop handles POST /api/v1/workshops/:id/activate
func ActivateWorkshop(c *gin.Context) {
	setWorkshopActive(c, true)
}

// DeactivateWorkshop handles POST /api/v1/workshops/:id/deactivate
func DeactivateWorkshop(c *gin.Context) {
	setWorkshopActive(c, false)
}

// AuditWorkshopCapacity handles POST /api/v1/workshops/:id/audit
// The report is informational; the ledger is never corrected here
func AuditWorkshopCapacity(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadManagedWorkshop(c, svc, actor, id); !ok {
		return
	}
	audit, err := svc.Workshops.AuditCapacity(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, audit)
}

// ListWorkshopTasks handles GET /api/v1/workshops/:id/tasks
func ListWorkshopTasks(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadManagedWorkshop(c, svc, actor, id); !ok {
		return
	}
	tasks, err := svc.Workshops.ListTasks(c.Request.Context(), id, c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tasks)
}

// CreateTask handles POST /api/v1/tasks
func CreateTask(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	orderID, ok := parseOptionalUUID(c, req.OrderID, "order_id")
	if !ok {
		return
	}
	workshopID := uuid.MustParse(req.WorkshopID)
	if _, ok := loadManagedWorkshop(c, svc, actor, workshopID); !ok {
		return
	}
	task, err := svc.Workshops.CreateTask(c.Request.Context(), actor, services.CreateTaskParams{
		WorkshopID: workshopID,
		Quantity:   req.Quantity,
		Title:      req.Title,
		DueDate:    req.DueDate,
		OrderID:    orderID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, task)
}

// GetTask handles GET /api/v1/tasks/:id
func GetTask(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	task, ok := loadManagedTask(c, svc, actor)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, task)
}

// ResizeTask handles PATCH /api/v1/tasks/:id
func ResizeTask(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	task, ok := loadManagedTask(c, svc, actor)
	if !ok {
		return
	}
	var req ResizeTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := svc.Workshops.ResizeTask(c.Request.Context(), actor, task.ID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// ReportTaskProgress handles POST /api/v1/tasks/:id/reports
func ReportTaskProgress(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	task, ok := loadManagedTask(c, svc, actor)
	if !ok {
		return
	}
	var req ReportRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := svc.Workshops.ReportProgress(c.Request.Context(), actor, task.ID, actor.UserID, req.Progress, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// CompleteTask handles POST /api/v1/tasks/:id/complete
func CompleteTask(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	task, ok := loadManagedTask(c, svc, actor)
	if !ok {
		return
	}
	updated, err := svc.Workshops.CompleteTask(c.Request.Context(), actor, task.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// CancelTask handles POST /api/v1/tasks/:id/cancel
func CancelTask(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	task, ok := loadManagedTask(c, svc, actor)
	if !ok {
		return
	}
	updated, err := svc.Workshops.CancelTask(c.Request.Context(), actor, task.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}
