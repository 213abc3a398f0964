package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyOrderCompletesWhenSettled(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.front, cat.plain, 10)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(1500)), "total %s", order.TotalPrice)
	owner := ActorFor(shop.owner)

	f.payStage(t, ActorFor(customer), order.ID, models.StagePrinting, decimal.NewFromInt(1000), "pay-printing")
	f.payStage(t, ActorFor(customer), order.ID, models.StageShipping, decimal.NewFromInt(500), "pay-shipping")

	f.advanceAll(t, owner, order.ID)

	done, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, done.Status)
	assert.True(t, done.Paid)
	require.NotNil(t, done.CompletedAt)

	paid := decimal.Zero
	for _, st := range done.Stages {
		assert.Equal(t, models.StageCompleted, st.Status, "stage %s", st.StageType)
		paid = paid.Add(st.AmountPaid)
	}
	assert.True(t, paid.Equal(done.TotalPrice), "paid %s of %s", paid, done.TotalPrice)

	types := f.sink.Types()
	assert.Contains(t, types, EventOrderCompleted)
	failures, err := f.core.Coordinator.ListFailures(f.ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestLastPaymentCompletesOrder(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.back, cat.plain, 3)
	owner := ActorFor(shop.owner)

	stage, err := f.core.Orders.SetStagePayment(f.ctx, owner, order.ID, models.StageDelivered, decimal.NewFromInt(300), nil)
	require.NoError(t, err)
	f.advanceAll(t, owner, order.ID)

	pending, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderInProgress, pending.Status, "unpaid stage keeps the order open")
	_, err = f.core.Orders.MarkCompleted(f.ctx, owner, order.ID)
	requireCode(t, err, CodePreconditionNotMet)

	txn, err := f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), BeginPaymentParams{
		StageID: stage.ID, Amount: decimal.NewFromInt(300), Provider: "card", ExternalRef: "final",
	})
	require.NoError(t, err)
	_, err = f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), txn.ID, models.TransactionSuccess, "final")
	require.NoError(t, err)

	done, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, done.Status)

	events, err := f.core.Coordinator.Events(f.ctx, order.ID)
	require.NoError(t, err)
	var types []EventType
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, EventStagePaid)
	assert.Contains(t, types, EventOrderCompleted)
}

func TestSetDesignStageCatchesUpWhenDesignApprovalCompletes(t *testing.T) {
	f := newFixture(t)
	order, shop, v1 := compositeOrder(t, f)
	owner := ActorFor(shop.owner)
	designer := f.user(t, "designer", models.RoleDesigner)

	_, err := f.core.SetDesigns.Assign(f.ctx, owner, v1.ID, designer.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Begin(f.ctx, owner, v1.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, v1.ID, "artwork/v1.png", "")
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Approve(f.ctx, owner, v1.ID, shop.owner.ID)
	require.NoError(t, err)

	// design approval is still open, so the set_design stage cannot start yet
	_, err = f.core.SetDesigns.Complete(f.ctx, owner, v1.ID)
	require.NoError(t, err, "the set itself completes regardless of follow-ups")

	failures, err := f.core.Coordinator.ListFailures(f.ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, RuleAdvanceSetDesignStage, failures[0].Rule)
	assert.Equal(t, string(EventSetDesignCompleted), failures[0].EventType)

	_, err = f.core.Orders.AdvanceStage(f.ctx, owner, order.ID, models.StageDesignApproval, models.StageCompleted, nil)
	require.NoError(t, err)

	loaded, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, loaded.Stage(models.StageSetDesign).Status, "no replay needed")
	assert.Equal(t, models.StageInProgress, loaded.Stage(models.StagePrintingPrep).Status)
	assert.Equal(t, models.OrderInProgress, loaded.Status)

	// the earlier failure is stale; replaying it finds the work done and resolves it
	require.NoError(t, f.core.Coordinator.Replay(f.ctx, failures[0].EventID))
	open, err := f.core.Coordinator.ListFailures(f.ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := f.core.Coordinator.ListFailures(f.ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].ResolvedAt)

	require.NoError(t, f.core.Coordinator.Replay(f.ctx, failures[0].EventID))
}

func TestRemovedCompositeSectionDoesNotBlockSetDesignStage(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	owner := ActorFor(shop.owner)
	designer := f.user(t, "designer", models.RoleDesigner)

	order := f.draftOrder(t, customer, cat.front, cat.composite, 2)
	back, err := f.core.Orders.AddSection(f.ctx, ActorFor(customer), AddSectionParams{
		OrderID: order.ID, PrintLocationID: cat.back.ID, DesignID: cat.composite.ID, Quantity: 2, Orientation: "outside",
	})
	require.NoError(t, err)
	_, err = f.core.Orders.Submit(f.ctx, ActorFor(customer), order.ID)
	require.NoError(t, err)
	_, err = f.core.Orders.Confirm(f.ctx, owner, order.ID, &shop.business.ID)
	require.NoError(t, err)

	var sets []models.SetDesign
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&sets).Error)
	require.Len(t, sets, 2, "one set per composite section")
	var items int64
	require.NoError(t, f.db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	require.Equal(t, int64(2), items)

	_, err = f.core.Orders.RemoveSection(f.ctx, owner, order.ID, back.ID)
	require.NoError(t, err)

	var remaining []models.SetDesign
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&remaining).Error)
	require.Len(t, remaining, 1, "the removed section's set goes with it")
	require.NoError(t, f.db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	assert.Equal(t, int64(1), items)
	front := remaining[0]

	_, err = f.core.Orders.AdvanceStage(f.ctx, owner, order.ID, models.StageDesignApproval, models.StageCompleted, nil)
	require.NoError(t, err)

	_, err = f.core.SetDesigns.Assign(f.ctx, owner, front.ID, designer.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Begin(f.ctx, owner, front.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.SubmitForReview(f.ctx, owner, front.ID, "artwork/front.png", "")
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Approve(f.ctx, owner, front.ID, customer.ID)
	require.NoError(t, err)
	_, err = f.core.SetDesigns.Complete(f.ctx, owner, front.ID)
	require.NoError(t, err)

	loaded, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, loaded.Stage(models.StageSetDesign).Status)
	failures, err := f.core.Coordinator.ListFailures(f.ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestRemoveSectionKeepsPricedItem(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	cat := f.catalog(t)
	actor := ActorFor(customer)

	order := f.draftOrder(t, customer, cat.front, cat.plain, 1)
	item, err := f.core.Orders.AddItem(f.ctx, actor, order.ID, "Hoodie", 1, decimal.NewFromInt(20))
	require.NoError(t, err)
	back, err := f.core.Orders.AddSection(f.ctx, actor, AddSectionParams{
		OrderID: order.ID, PrintLocationID: cat.back.ID, DesignID: cat.plain.ID, OrderItemID: &item.ID, Quantity: 1, Orientation: "outside",
	})
	require.NoError(t, err)

	_, err = f.core.Orders.RemoveSection(f.ctx, actor, order.ID, back.ID)
	require.NoError(t, err)
	var kept models.OrderItem
	assert.NoError(t, f.db.First(&kept, "id = ?", item.ID).Error, "items with a price were added by hand")

	_, err = f.core.Orders.RemoveSection(f.ctx, actor, order.ID, back.ID)
	requireCode(t, err, CodeNotFound)
}

func TestSectionAddedAfterConfirmOpensSet(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.front, cat.plain, 1)

	var count int64
	require.NoError(t, f.db.Model(&models.SetDesign{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err := f.core.Orders.AddSection(f.ctx, ActorFor(shop.owner), AddSectionParams{
		OrderID: order.ID, PrintLocationID: cat.back.ID, DesignID: cat.composite.ID, Quantity: 1, Orientation: "outside",
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.SetDesign{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReplayUnknownEvent(t *testing.T) {
	f := newFixture(t)
	err := f.core.Coordinator.Replay(f.ctx, uuid.New())
	requireCode(t, err, CodeNotFound)
}

func TestNotificationFailureDoesNotUndoCommand(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	cat := f.catalog(t)
	order := f.draftOrder(t, customer, cat.front, cat.plain, 1)

	f.sink.Fail = true
	submitted, err := f.core.Orders.Submit(f.ctx, ActorFor(customer), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, submitted.Status)

	failures, err := f.core.Runtime.Dispatcher.ListNotificationFailures(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, string(EventOrderSubmitted), failures[0].EventType)
	assert.Contains(t, failures[0].Error, ErrSinkUnavailable.Error())
	assert.Empty(t, f.sink.Sent())
}
