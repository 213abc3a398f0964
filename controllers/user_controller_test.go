package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/kendall-kelly/printhouse-api/testutil"
	"github.com/stretchr/testify/suite"
)

type UserAPISuite struct {
	APISuite
}

func TestUserAPISuite(t *testing.T) {
	suite.Run(t, new(UserAPISuite))
}

// withToken sends a request for a subject that has no profile yet
func (s *UserAPISuite) withToken(subject, role, method, path string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+subject)
	req.Header.Set(testutil.RoleHeader, role)
	return s.send(nil, req)
}

func (s *UserAPISuite) TestCreateUserFromUserInfo() {
	s.f.UserInfo.Add("auth0|newbie", services.Auth0UserInfo{Sub: "auth0|newbie", Email: "newbie@example.com", Name: "New Bie"})

	// no profile yet
	w, env := s.withToken("auth0|newbie", "", http.MethodGet, "/api/v1/users/me")
	s.expectError(w, env, http.StatusNotFound, "USER_NOT_FOUND")

	w, env = s.withToken("auth0|newbie", "", http.MethodPost, "/api/v1/users")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var user models.User
	s.decode(env, &user)
	s.Equal("auth0|newbie", user.Auth0ID)
	s.Equal("newbie@example.com", user.Email)
	s.Equal(models.RoleCustomer, user.Role)

	w, env = s.withToken("auth0|newbie", "", http.MethodPost, "/api/v1/users")
	s.expectError(w, env, http.StatusConflict, "CONFLICT")

	w, env = s.withToken("auth0|newbie", "", http.MethodGet, "/api/v1/users/me")
	s.Equal(http.StatusOK, w.Code)
	s.decode(env, &user)
	s.Equal("New Bie", user.Name)
}

func (s *UserAPISuite) TestCreateUserWithRoleClaim() {
	s.f.UserInfo.Add("auth0|owner", services.Auth0UserInfo{Sub: "auth0|owner", Email: "owner@example.com", Name: "Owner"})

	w, env := s.withToken("auth0|owner", models.RoleBusinessOwner, http.MethodPost, "/api/v1/users")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var user models.User
	s.decode(env, &user)
	s.Equal(models.RoleBusinessOwner, user.Role)

	w, env = s.withToken("auth0|ghost", "wizard", http.MethodPost, "/api/v1/users")
	s.expectError(w, env, http.StatusBadRequest, "VALIDATION_FAILED")
}

func (s *UserAPISuite) TestUserInfoFailureIsInternal() {
	w, env := s.withToken("auth0|unknown", "", http.MethodPost, "/api/v1/users")
	s.expectError(w, env, http.StatusInternalServerError, "INTERNAL")
	s.Equal("An internal error occurred", env.Error.Message)
}

func (s *UserAPISuite) TestUpdateMyProfile() {
	alice := s.f.SeedUser(s.T(), "alice", models.RoleCustomer)
	s.f.SeedUser(s.T(), "bob", models.RoleCustomer)

	w, env := s.do(alice, http.MethodPut, "/api/v1/users/me", map[string]string{"name": "Alice Liddell"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var user models.User
	s.decode(env, &user)
	s.Equal("Alice Liddell", user.Name)
	s.Equal("alice@example.com", user.Email)

	w, env = s.do(alice, http.MethodPut, "/api/v1/users/me", map[string]string{"email": "not-an-email"})
	s.expectError(w, env, http.StatusBadRequest, "VALIDATION_FAILED")

	w, env = s.do(alice, http.MethodPut, "/api/v1/users/me", map[string]string{"email": "bob@example.com"})
	s.expectError(w, env, http.StatusConflict, "CONFLICT")
}

func (s *UserAPISuite) TestBusinessRegistrationAndStaff() {
	owner := s.f.SeedUser(s.T(), "olga", models.RoleBusinessOwner)
	designer := s.f.SeedUser(s.T(), "dana", models.RoleDesigner)

	w, env := s.do(owner, http.MethodPost, "/api/v1/businesses", map[string]string{"name": "Olga Prints"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var biz models.Business
	s.decode(env, &biz)
	s.Equal(owner.ID, biz.OwnerID)

	w, env = s.do(owner, http.MethodPost, "/api/v1/businesses/staff", map[string]string{
		"user_id": designer.ID.String(),
		"role":    models.RoleDesigner,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(designer, http.MethodGet, "/api/v1/users/me", nil)
	var me models.User
	s.decode(env, &me)
	s.Require().NotNil(me.BusinessID)
	s.Equal(biz.ID, *me.BusinessID)

	// staff cannot hire
	w, env = s.do(designer, http.MethodPost, "/api/v1/businesses/staff", map[string]string{
		"user_id": owner.ID.String(),
		"role":    models.RoleDesigner,
	})
	s.expectError(w, env, http.StatusForbidden, "FORBIDDEN")
}
