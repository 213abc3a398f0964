package testutil

import (
	"net/http"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/middleware"
)

// TestIssuer is the issuer placed on mocked tokens
const TestIssuer = "https://test.auth0.com/"

// RoleHeader carries the role claim of a MockAuth request
const RoleHeader = "X-Test-Role"

// MockValidatedClaims builds the claims EnsureValidToken would store for subject
func MockValidatedClaims(subject, role string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  TestIssuer,
			Subject: subject,
		},
		CustomClaims: &middleware.TokenClaims{Role: role},
	}
}

// SetMockAuthContext marks c as authenticated for subject
func SetMockAuthContext(c *gin.Context, subject, role string) {
	c.Set(middleware.SubjectKey, subject)
	c.Set(middleware.ClaimsKey, MockValidatedClaims(subject, role))
}

// MockAuth stands in for EnsureValidToken. The bearer token is taken as the
// Auth0 subject and the RoleHeader as the role claim.
func MockAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := middleware.GetAccessToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Failed to validate JWT.",
				},
			})
			return
		}
		SetMockAuthContext(c, subject, c.GetHeader(RoleHeader))
		c.Next()
	}
}
