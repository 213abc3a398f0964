package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListCoordinatorFailures handles GET /api/v1/coordinator/failures
// Pass all=true to include resolved failures
func ListCoordinatorFailures(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	rows, err := svc.Coordinator.ListFailures(c.Request.Context(), c.Query("all") == "true", queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}

// ReplayEvent handles POST /api/v1/coordinator/replay/:event_id
func ReplayEvent(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	eventID, ok := uuidParam(c, "event_id")
	if !ok {
		return
	}
	if err := svc.Coordinator.Replay(c.Request.Context(), eventID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Event replayed",
	})
}

// ListAggregateEvents handles GET /api/v1/events/:aggregate_id
func ListAggregateEvents(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "aggregate_id")
	if !ok {
		return
	}
	events, err := svc.Coordinator.Events(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, events)
}

// ListNotificationFailures handles GET /api/v1/notifications/failures
func ListNotificationFailures(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	rows, err := svc.Runtime.Dispatcher.ListNotificationFailures(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}
