package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compositeOrder confirms an order with one composition section and returns
// the set design the coordinator opened for it
func compositeOrder(t *testing.T, f *fixture) (*models.Order, *seededShop, *models.SetDesign) {
	t.Helper()
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.front, cat.composite, 10)

	var sets []models.SetDesign
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&sets).Error)
	require.Len(t, sets, 1, "confirming should open one set design per composition section")
	return order, shop, &sets[0]
}

func TestSetDesignRevisionLoop(t *testing.T) {
	f := newFixture(t)
	_, shop, v1 := compositeOrder(t, f)
	owner := ActorFor(shop.owner)
	designer := f.user(t, "designer", models.RoleDesigner)
	assert.Equal(t, models.SetWaiting, v1.Status)
	assert.Equal(t, 1, v1.Version)

	set, err := f.core.SetDesigns.Assign(f.ctx, owner, v1.ID, designer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetAssigned, set.Status)
	_, err = f.core.SetDesigns.Begin(f.ctx, owner, v1.ID)
	require.NoError(t, err)
	require.NoError(t, f.s3.PutObject(f.ctx, "artwork/v1.png", []byte("png"), "image/png"))
	set, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, v1.ID, "artwork/v1.png", "previews/v1.png")
	require.NoError(t, err)
	assert.Equal(t, models.SetPendingApproval, set.Status)
	assert.Contains(t, set.FileURL, "artwork/v1.png")

	_, err = f.core.SetDesigns.RequestRevision(f.ctx, owner, v1.ID, shop.owner.ID, "")
	requireCode(t, err, CodeValidationFailed)
	set, err = f.core.SetDesigns.RequestRevision(f.ctx, owner, v1.ID, shop.owner.ID, "swap colours")
	require.NoError(t, err)
	assert.Equal(t, models.SetRevisionNeeded, set.Status)

	v2, err := f.core.SetDesigns.NewVersion(f.ctx, owner, v1.ID, NewVersionParams{FileKey: "artwork/v2.png"})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, models.SetInProgress, v2.Status)
	require.NotNil(t, v2.ParentID)
	assert.Equal(t, v1.ID, *v2.ParentID)
	require.NotNil(t, v2.DesignerID)
	assert.Equal(t, designer.ID, *v2.DesignerID)

	parent, err := f.core.SetDesigns.GetSet(f.ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetRevisionNeeded, parent.Status)

	_, err = f.core.SetDesigns.NewVersion(f.ctx, owner, v1.ID, NewVersionParams{})
	requireCode(t, err, CodeVersionConflict)

	_, err = f.core.SetDesigns.Approve(f.ctx, owner, v2.ID, shop.owner.ID)
	requireCode(t, err, CodeIllegalTransition)

	_, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, v2.ID, "artwork/v2.png", "")
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Approve(f.ctx, owner, v2.ID, shop.owner.ID)
	require.NoError(t, err)
	done, err := f.core.SetDesigns.Complete(f.ctx, owner, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetCompleted, done.Status)
	assert.NotNil(t, done.ActualCompletion)

	versions, err := f.core.SetDesigns.ListSetsForItem(f.ctx, v1.OrderItemID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.SetRevisionNeeded, versions[0].Status)
	assert.Equal(t, models.SetCompleted, versions[1].Status)

	assert.Subset(t, f.sink.Types(), []EventType{
		EventSetDesignAssigned, EventSetDesignReviewReady, EventSetDesignRevisionRequested, EventSetDesignCompleted,
	})
}

func TestSetDesignNeedsDesigner(t *testing.T) {
	f := newFixture(t)
	_, shop, v1 := compositeOrder(t, f)
	owner := ActorFor(shop.owner)

	_, err := f.core.SetDesigns.Begin(f.ctx, owner, v1.ID)
	requireCode(t, err, CodeNotAssigned)

	_, err = f.core.SetDesigns.Assign(f.ctx, owner, v1.ID, shop.owner.ID)
	requireCode(t, err, CodeValidationFailed)

	_, err = f.core.SetDesigns.Assign(f.ctx, owner, v1.ID, uuid.Nil)
	requireCode(t, err, CodeValidationFailed)

	_, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, v1.ID, "", "")
	requireCode(t, err, CodeValidationFailed)
}

func TestRejectIsFinal(t *testing.T) {
	f := newFixture(t)
	_, shop, v1 := compositeOrder(t, f)
	owner := ActorFor(shop.owner)
	designer := f.user(t, "designer", models.RoleDesigner)

	_, err := f.core.SetDesigns.Assign(f.ctx, owner, v1.ID, designer.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Begin(f.ctx, owner, v1.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, v1.ID, "artwork/v1.png", "")
	require.NoError(t, err)
	rejected, err := f.core.SetDesigns.Reject(f.ctx, owner, v1.ID, shop.owner.ID, "off brand")
	require.NoError(t, err)
	assert.Equal(t, models.SetRejected, rejected.Status)

	_, err = f.core.SetDesigns.NewVersion(f.ctx, owner, v1.ID, NewVersionParams{})
	requireCode(t, err, CodeIllegalTransition)
	_, err = f.core.SetDesigns.Approve(f.ctx, owner, v1.ID, shop.owner.ID)
	requireCode(t, err, CodeIllegalTransition)
}

func TestOpenSetRefusesSecondSet(t *testing.T) {
	f := newFixture(t)
	_, shop, v1 := compositeOrder(t, f)

	_, err := f.core.SetDesigns.OpenSet(f.ctx, ActorFor(shop.owner), OpenSetParams{OrderItemID: v1.OrderItemID})
	requireCode(t, err, CodeVersionConflict)

	_, err = f.core.SetDesigns.OpenSet(f.ctx, ActorFor(shop.owner), OpenSetParams{OrderItemID: v1.OrderItemID, Complexity: 9})
	requireCode(t, err, CodeValidationFailed)

	again, created, err := f.core.SetDesigns.EnsureOpenForItem(f.ctx, SystemActor, v1.OrderItemID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v1.ID, again.ID)
}
