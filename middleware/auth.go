package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/kendall-kelly/printhouse-api/logger"
)

// Context keys written by EnsureValidToken (and by test doubles of it).
const (
	SubjectKey = "auth0_subject"
	ClaimsKey  = "token_claims"
)

// RoleClaim is the namespaced Auth0 claim carrying the requested role.
const RoleClaim = "https://printhouse.app/role"

const jwksCacheTTL = 5 * time.Minute

// TokenClaims are the non-registered claims read from access tokens.
// Only Role is used: it seeds the role of a profile created on first login.
type TokenClaims struct {
	Role string `json:"https://printhouse.app/role"`
}

// Validate accepts any role value here; RegisterUser rejects unknown ones.
func (TokenClaims) Validate(context.Context) error {
	return nil
}

func newTokenValidator(cfg *config.Config) (*validator.Validator, error) {
	issuer, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer url: %w", err)
	}
	keys := jwks.NewCachingProvider(issuer, jwksCacheTTL)
	return validator.New(
		keys.KeyFunc,
		validator.RS256,
		issuer.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &TokenClaims{} }),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken rejects requests without a valid Auth0 access token and
// stores the token subject and claims for LoadActor.
func EnsureValidToken(cfg *config.Config, log *logger.Logger) gin.HandlerFunc {
	v, err := newTokenValidator(cfg)
	if err != nil {
		log.Fatal("Failed to set up the jwt validator", "error", err)
	}

	checker := jwtmiddleware.New(
		v.ValidateToken,
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("Rejected access token", "error", err, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			if _, werr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); werr != nil {
				log.Error("Failed to write error response", "error", werr)
			}
		}),
	)

	return func(c *gin.Context) {
		next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			c.Set(SubjectKey, claims.RegisteredClaims.Subject)
			c.Set(ClaimsKey, claims)
			c.Next()
		})
		checker.CheckJWT(next).ServeHTTP(c.Writer, c.Request)
	}
}

// GetUserID returns the Auth0 subject of the authenticated request
func GetUserID(c *gin.Context) (string, error) {
	v, exists := c.Get(SubjectKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}
	subject, ok := v.(string)
	if !ok || subject == "" {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}
	return subject, nil
}

// GetAccessToken returns the raw bearer token; the userinfo endpoint needs it.
func GetAccessToken(c *gin.Context) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", &AuthError{Code: "MISSING_TOKEN", Message: "Access token not found"}
	}
	return token, nil
}

// GetClaims returns the validated token claims
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}
	claims, ok := v.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}
	return claims, nil
}

// GetRoleClaim returns the role carried by the token, or "" when absent
func GetRoleClaim(c *gin.Context) string {
	claims, err := GetClaims(c)
	if err != nil {
		return ""
	}
	if tc, ok := claims.CustomClaims.(*TokenClaims); ok {
		return tc.Role
	}
	return ""
}

// AuthError is returned by the context accessors of this package
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
