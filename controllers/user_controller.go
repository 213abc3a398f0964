package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/middleware"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateBusinessRequest represents the request body for registering a print shop
type CreateBusinessRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddStaffRequest binds an existing user to the caller's business
type AddStaffRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   string `json:"role" binding:"required"`
}

// CreateUser handles POST /api/v1/users - creates a new user from Auth0 userinfo
// This endpoint requires authentication and fetches user data from Auth0's /userinfo endpoint
func CreateUser(c *gin.Context) {
	// Get the Auth0 user ID from the validated JWT
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}

	// Get the access token to call Auth0's /userinfo endpoint
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	svc, ok := core(c)
	if !ok {
		return
	}
	user, err := svc.Identity.RegisterUser(c.Request.Context(), auth0ID, accessToken, middleware.GetRoleClaim(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, user)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, err := middleware.GetUser(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}
	respondData(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := svc.Identity.UpdateProfile(c.Request.Context(), actor.UserID, req.Name, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, user)
}

// CreateBusiness handles POST /api/v1/businesses - the caller becomes its owner
func CreateBusiness(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req CreateBusinessRequest
	if !bindJSON(c, &req) {
		return
	}
	biz, err := svc.Identity.CreateBusiness(c.Request.Context(), actor, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, biz)
}

// AddStaff handles POST /api/v1/businesses/staff
func AddStaff(c *gin.Context) {
	actor, svc, ok := actorAndCore(c)
	if !ok {
		return
	}
	var req AddStaffRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := parseOptionalUUID(c, &req.UserID, "user_id")
	if !ok {
		return
	}
	user, err := svc.Identity.AddStaff(c.Request.Context(), actor, *userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, user)
}
