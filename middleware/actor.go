package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
)

const (
	actorKey = "actor"
	userKey  = "user"
)

// LoadActor resolves the caller's profile and stores it as the command actor.
// It must run after EnsureValidToken.
func LoadActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := GetUserID(c)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}

		core := services.GetCore()
		if core == nil {
			abortWith(c, http.StatusInternalServerError, "INTERNAL", "Service is not initialized")
			return
		}
		actor, user, err := core.Identity.ResolveActor(c.Request.Context(), auth0ID)
		if err != nil {
			if services.CodeOf(err) == services.CodeNotFound {
				abortWith(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
				return
			}
			abortWith(c, http.StatusInternalServerError, "INTERNAL", "Failed to load user profile")
			return
		}

		c.Set(actorKey, actor)
		c.Set(userKey, user)
		c.Next()
	}
}

// GetActor returns the actor stored by LoadActor
func GetActor(c *gin.Context) (services.Actor, error) {
	v, exists := c.Get(actorKey)
	if !exists {
		return services.Actor{}, &AuthError{Code: "MISSING_ACTOR", Message: "Actor not found in context"}
	}
	actor, ok := v.(services.Actor)
	if !ok {
		return services.Actor{}, &AuthError{Code: "INVALID_ACTOR", Message: "Actor is not in the expected format"}
	}
	return actor, nil
}

// GetUser returns the profile stored by LoadActor
func GetUser(c *gin.Context) (*models.User, error) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}
	return user, nil
}

// SetActor stores actor and user in the context (primarily for testing)
func SetActor(c *gin.Context, user *models.User) {
	c.Set(actorKey, services.ActorFor(user))
	c.Set(userKey, user)
}

// RequireRole lets the request through only if the actor carries one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}
		for _, r := range roles {
			if actor.HasRole(r) {
				c.Next()
				return
			}
		}
		abortWith(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions to access this resource")
	}
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
