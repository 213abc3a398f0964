package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/middleware"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/kendall-kelly/printhouse-api/utils"
)

// statusFor maps a service error code to its HTTP status
func statusFor(code services.ErrorCode) int {
	switch code {
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeValidationFailed:
		return http.StatusBadRequest
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeDuplicateBid, services.CodeDuplicateSection, services.CodeVersionConflict,
		services.CodeConflict, services.CodeIllegalTransition:
		return http.StatusConflict
	case services.CodePreconditionNotMet, services.CodeInsufficientCapacity, services.CodeWorkshopInactive,
		services.CodeTenderClosed, services.CodeNotAssigned:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondFailure(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondError renders a service error. Internal failures are logged and
// reported with a generic message.
func respondError(c *gin.Context, err error) {
	var uploadErr *utils.FileUploadError
	if errors.As(err, &uploadErr) {
		respondFailure(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
		return
	}

	code := services.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		if core := services.GetCore(); core != nil {
			core.Runtime.Log.Error("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"error", err,
			)
		}
		respondFailure(c, status, string(services.CodeInternal), "An internal error occurred")
		return
	}

	var svcErr *services.ServiceError
	message := err.Error()
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		message = svcErr.Message
	}
	respondFailure(c, status, string(code), message)
}

// bindJSON parses the request body and renders a validation error on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    string(services.CodeValidationFailed),
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return false
	}
	return true
}

// uuidParam reads a path parameter as a UUID
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(c *gin.Context, raw *string, field string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+field+" format")
		return nil, false
	}
	return &id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// core returns the process-wide core or renders a 500
func core(c *gin.Context) (*services.Core, bool) {
	svc := services.GetCore()
	if svc == nil {
		respondFailure(c, http.StatusInternalServerError, string(services.CodeInternal), "Service is not initialized")
		return nil, false
	}
	return svc, true
}

// actorAndCore returns what every command handler needs
func actorAndCore(c *gin.Context) (services.Actor, *services.Core, bool) {
	actor, err := middleware.GetActor(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return services.Actor{}, nil, false
	}
	svc, ok := core(c)
	if !ok {
		return services.Actor{}, nil, false
	}
	return actor, svc, true
}
