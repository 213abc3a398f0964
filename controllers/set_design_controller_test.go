package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/stretchr/testify/suite"
)

type SetDesignAPISuite struct {
	APISuite
}

func TestSetDesignAPISuite(t *testing.T) {
	suite.Run(t, new(SetDesignAPISuite))
}

func (s *SetDesignAPISuite) TestSetDesignFlowAndReplay() {
	f := s.f
	catalog := f.SeedCatalog(s.T())
	shop := f.SeedShop(s.T(), "inkwell", 100)
	designer := f.SeedStaff(s.T(), shop, "dana", models.RoleDesigner)
	customer := f.SeedUser(s.T(), "alice", models.RoleCustomer)
	operator := f.SeedUser(s.T(), "ops", models.RoleOperator)
	order := f.SeedConfirmedOrder(s.T(), customer, shop, catalog, catalog.Composite, 10)

	// confirming opened one set for the composite section
	var opened []models.SetDesign
	s.Require().NoError(f.DB.Where("order_id = ?", order.ID).Find(&opened).Error)
	s.Require().Len(opened, 1)
	set := opened[0]

	w, env := s.do(customer, http.MethodGet, fmt.Sprintf("/api/v1/order-items/%s/set-designs", set.OrderItemID), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var listed []models.SetDesign
	s.decode(env, &listed)
	s.Len(listed, 1)

	base := fmt.Sprintf("/api/v1/set-designs/%s", set.ID)

	w, env = s.do(designer, http.MethodPost, base+"/begin", nil)
	s.expectError(w, env, http.StatusUnprocessableEntity, "NOT_ASSIGNED")

	w, env = s.do(designer, http.MethodPost, base+"/assign", map[string]string{"designer_id": designer.ID.String()})
	s.expectError(w, env, http.StatusForbidden, "FORBIDDEN")

	w, env = s.do(shop.Owner, http.MethodPost, base+"/assign", map[string]string{"designer_id": designer.ID.String()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetAssigned, set.Status)

	w, env = s.do(designer, http.MethodPost, base+"/begin", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.Require().NoError(f.S3.PutObject(s.T().Context(), "artwork/team.png", []byte("png"), "image/png"))
	w, env = s.do(designer, http.MethodPost, base+"/submit", map[string]string{"file_key": "artwork/team.png"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetPendingApproval, set.Status)
	s.Contains(set.FileURL, "artwork/team.png")

	w, env = s.do(customer, http.MethodPost, base+"/approve", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetApproved, set.Status)
	s.Require().NotNil(set.ReviewerID)
	s.Equal(customer.ID, *set.ReviewerID)

	// design_approval is still open, so moving the set_design stage fails and is recorded
	w, env = s.do(designer, http.MethodPost, base+"/complete", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetCompleted, set.Status)

	w, env = s.do(operator, http.MethodGet, "/api/v1/coordinator/failures", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var failures []models.CoordinatorFailure
	s.decode(env, &failures)
	s.Require().Len(failures, 1)
	s.Equal(string(services.EventSetDesignCompleted), failures[0].EventType)

	w, env = s.do(shop.Owner, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/stages/design_approval/advance", order.ID), map[string]string{"status": "completed"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(operator, http.MethodPost, fmt.Sprintf("/api/v1/coordinator/replay/%s", failures[0].EventID), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(operator, http.MethodGet, "/api/v1/coordinator/failures", nil)
	s.decode(env, &failures)
	s.Empty(failures)

	w, env = s.do(customer, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s", order.ID), nil)
	var reloaded models.Order
	s.decode(env, &reloaded)
	s.Equal(models.OrderInProgress, reloaded.Status)
	s.Equal(models.StageCompleted, reloaded.Stage(models.StageSetDesign).Status)

	w, env = s.do(operator, http.MethodGet, fmt.Sprintf("/api/v1/events/%s", set.ID), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var events []services.Event
	s.decode(env, &events)
	s.NotEmpty(events)
	for _, evt := range events {
		s.Equal(set.ID, evt.AggregateID)
	}
}

func (s *SetDesignAPISuite) TestReplayUnknownEvent() {
	operator := s.f.SeedUser(s.T(), "ops", models.RoleOperator)

	w, env := s.do(operator, http.MethodPost, fmt.Sprintf("/api/v1/coordinator/replay/%s", operator.ID), nil)
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")
}

func (s *SetDesignAPISuite) TestReviewIsLimitedToOrderParties() {
	f := s.f
	catalog := f.SeedCatalog(s.T())
	shop := f.SeedShop(s.T(), "inkwell", 100)
	rival := f.SeedShop(s.T(), "rival", 100)
	designer := f.SeedStaff(s.T(), shop, "dana", models.RoleDesigner)
	outsider := f.SeedStaff(s.T(), rival, "otto", models.RoleDesigner)
	alice := f.SeedUser(s.T(), "alice", models.RoleCustomer)
	mallory := f.SeedUser(s.T(), "mallory", models.RoleCustomer)
	order := f.SeedConfirmedOrder(s.T(), alice, shop, catalog, catalog.Composite, 4)

	var opened []models.SetDesign
	s.Require().NoError(f.DB.Where("order_id = ?", order.ID).Find(&opened).Error)
	s.Require().Len(opened, 1)
	set := opened[0]
	base := fmt.Sprintf("/api/v1/set-designs/%s", set.ID)

	w, env := s.do(mallory, http.MethodGet, base, nil)
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")
	w, env = s.do(mallory, http.MethodGet, fmt.Sprintf("/api/v1/order-items/%s/set-designs", set.OrderItemID), nil)
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")

	w, _ = s.do(shop.Owner, http.MethodPost, base+"/assign", map[string]string{"designer_id": designer.ID.String()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w, env = s.do(outsider, http.MethodPost, base+"/begin", nil)
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")
	w, _ = s.do(designer, http.MethodPost, base+"/begin", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Require().NoError(f.S3.PutObject(s.T().Context(), "artwork/crest.png", []byte("png"), "image/png"))
	w, _ = s.do(designer, http.MethodPost, base+"/submit", map[string]string{"file_key": "artwork/crest.png"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(mallory, http.MethodPost, base+"/approve", nil)
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")
	w, env = s.do(mallory, http.MethodPost, base+"/reject", map[string]string{"notes": "no"})
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")
	w, env = s.do(rival.Owner, http.MethodPost, base+"/revision", map[string]string{"notes": "bigger"})
	s.expectError(w, env, http.StatusNotFound, "NOT_FOUND")

	w, env = s.do(alice, http.MethodGet, base, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetPendingApproval, set.Status, "rejected callers leave the set untouched")

	w, env = s.do(alice, http.MethodPost, base+"/approve", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &set)
	s.Equal(models.SetApproved, set.Status)
}
