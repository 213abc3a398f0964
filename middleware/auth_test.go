package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	return c
}

func TestGetUserID(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		set      bool
		wantID   string
		wantCode string
	}{
		{name: "subject present", value: "auth0|alice", set: true, wantID: "auth0|alice"},
		{name: "not authenticated", wantCode: "MISSING_USER_ID"},
		{name: "wrong type", value: 42, set: true, wantCode: "INVALID_USER_ID"},
		{name: "empty subject", value: "", set: true, wantCode: "INVALID_USER_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContext(t)
			if tt.set {
				c.Set(SubjectKey, tt.value)
			}

			id, err := GetUserID(c)
			if tt.wantCode != "" {
				var authErr *AuthError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, tt.wantCode, authErr.Code)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestGetClaims(t *testing.T) {
	c := newContext(t)
	_, err := GetClaims(c)
	assert.EqualError(t, err, "Claims not found in context")

	c.Set(ClaimsKey, "not claims")
	_, err = GetClaims(c)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "INVALID_CLAIMS", authErr.Code)

	want := &validator.ValidatedClaims{RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|bob"}}
	c.Set(ClaimsKey, want)
	got, err := GetClaims(c)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestGetAccessToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   bool
	}{
		{name: "bearer token", header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", wantToken: "abc"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcg==", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContext(t)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}

			token, err := GetAccessToken(c)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestGetRoleClaim(t *testing.T) {
	c := newContext(t)
	assert.Equal(t, "", GetRoleClaim(c))

	// claims of another shape carry no role
	c.Set(ClaimsKey, &validator.ValidatedClaims{})
	assert.Equal(t, "", GetRoleClaim(c))

	c.Set(ClaimsKey, &validator.ValidatedClaims{CustomClaims: &TokenClaims{Role: "designer"}})
	assert.Equal(t, "designer", GetRoleClaim(c))
}

func TestNewTokenValidator(t *testing.T) {
	v, err := newTokenValidator(&config.Config{Auth0Domain: "printhouse.eu.auth0.com", Auth0Audience: "https://api.printhouse.app"})
	require.NoError(t, err)
	assert.NotNil(t, v)

	_, err = newTokenValidator(&config.Config{Auth0Domain: "bad host:%zz"})
	assert.Error(t, err)
}

func TestAuthError(t *testing.T) {
	err := &AuthError{Code: "MISSING_TOKEN", Message: "Access token not found"}
	assert.Equal(t, "Access token not found", err.Error())
}
