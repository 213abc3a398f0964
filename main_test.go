package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthCheck is a unit test for the healthCheck handler function
func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status code 200")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"], "Expected success to be true")
	assert.Equal(t, "Printhouse API is running", response["message"], "Expected correct message")
	assert.Len(t, response, 2, "Response should have exactly 2 fields")
}

func TestDatabaseStatusOnSQLite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testutil.NewFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/database/status", nil)

	databaseStatus(c)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response struct {
		Success bool     `json:"success"`
		Tables  []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Contains(t, response.Tables, "orders")
	assert.Contains(t, response.Tables, "domain_events")
}

func TestDatabaseStatusWithoutDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prev := config.GetDB()
	config.SetDB(nil)
	t.Cleanup(func() { config.SetDB(prev) })

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/database/status", nil)

	databaseStatus(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "DATABASE_ERROR")
}

func TestCORSConfig(t *testing.T) {
	open := corsConfig(&config.Config{})
	assert.True(t, open.AllowAllOrigins)
	assert.Empty(t, open.AllowOrigins)

	restricted := corsConfig(&config.Config{CORSAllowedOrigins: []string{"https://shop.example.com"}})
	assert.False(t, restricted.AllowAllOrigins)
	assert.Equal(t, []string{"https://shop.example.com"}, restricted.AllowOrigins)
	assert.Contains(t, restricted.AllowHeaders, "Authorization")
}

func TestCoreOptionsFromEnvironment(t *testing.T) {
	testutil.SetTestEnvironment(t)
	t.Setenv("AWS_S3_ENDPOINT", "http://localhost:9000")
	prev := config.GetConfig()
	t.Cleanup(func() { config.SetConfig(prev) })

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://memory", cfg.DatabaseURL)
	assert.True(t, cfg.MediaStoreEnabled())
	assert.False(t, cfg.RedisEnabled())

	opts := coreOptions(t.Context(), cfg, logger.NewNop())
	assert.NotNil(t, opts.UserInfo)
	assert.NotNil(t, opts.Artwork, "S3 credentials are configured")
	assert.Nil(t, opts.Sink, "no Redis means the default log sink")
	assert.Nil(t, opts.CatalogCache)
	assert.Equal(t, cfg.CatalogCacheTTL, opts.CatalogCacheTTL)
}
