package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// APISuite drives the full route table against a fresh fixture per test
type APISuite struct {
	suite.Suite
	f      *testutil.Fixture
	router *gin.Engine
}

func (s *APISuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *APISuite) SetupTest() {
	s.f = testutil.NewFixture(s.T())
	s.router = gin.New()
	RegisterRoutes(s.router.Group("/api/v1"), testutil.MockAuth())
}

// envelope is the decoded response body
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends body as JSON on behalf of user; a nil user sends no token
func (s *APISuite) do(user *models.User, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(user, req)
}

func (s *APISuite) send(user *models.User, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.Auth0ID)
		req.Header.Set(testutil.RoleHeader, user.Role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return w, env
}

// decode unmarshals the data of a successful response into out
func (s *APISuite) decode(env envelope, out interface{}) {
	s.Require().True(env.Success, "expected success, got %s: %s", env.Error.Code, env.Error.Message)
	s.Require().NoError(json.Unmarshal(env.Data, out))
}

// expectError asserts a failure envelope with status and code
func (s *APISuite) expectError(w *httptest.ResponseRecorder, env envelope, status int, code string) {
	s.Equal(status, w.Code, "body: %s", w.Body.String())
	s.False(env.Success)
	s.Equal(code, env.Error.Code)
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
