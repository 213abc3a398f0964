package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotentPayment(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.back, cat.plain, 2)
	owner := ActorFor(shop.owner)

	stage, err := f.core.Orders.SetStagePayment(f.ctx, owner, order.ID, models.StagePrinting, decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	assert.Nil(t, stage.PaidAt)

	params := BeginPaymentParams{StageID: stage.ID, Amount: decimal.NewFromInt(100), Provider: "card", ExternalRef: "R1"}
	first, err := f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), params)
	require.NoError(t, err)
	again, err := f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	for i := 0; i < 2; i++ {
		txn, err := f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), first.ID, models.TransactionSuccess, "R1")
		require.NoError(t, err)
		assert.Equal(t, models.TransactionSuccess, txn.Status)
	}

	loaded, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	printing := loaded.Stage(models.StagePrinting)
	assert.True(t, printing.AmountPaid.Equal(decimal.NewFromInt(100)), "amount paid %s", printing.AmountPaid)
	require.NotNil(t, printing.PaidAt)
	assert.True(t, testEpoch.Equal(*printing.PaidAt))

	txns, err := f.core.Payments.GetStagePayments(f.ctx, stage.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	paid := 0
	for _, typ := range f.sink.Types() {
		if typ == EventStagePaid {
			paid++
		}
	}
	assert.Equal(t, 1, paid)

	// a second finalize with a different reference is not the same call
	_, err = f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), first.ID, models.TransactionSuccess, "R2")
	requireCode(t, err, CodeIllegalTransition)
}

func TestFailedPaymentLeavesStageUnpaid(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.back, cat.plain, 1)

	stage, err := f.core.Orders.SetStagePayment(f.ctx, ActorFor(shop.owner), order.ID, models.StageShipping, decimal.NewFromInt(20), nil)
	require.NoError(t, err)
	txn, err := f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), BeginPaymentParams{
		StageID: stage.ID, Amount: decimal.NewFromInt(20), Provider: "card",
	})
	require.NoError(t, err)

	_, err = f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), txn.ID, models.TransactionFail, "")
	requireCode(t, err, CodeValidationFailed)

	failed, err := f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), txn.ID, models.TransactionFail, "declined-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFail, failed.Status)
	require.NotNil(t, failed.FinalizedAt)

	loaded, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	shipping := loaded.Stage(models.StageShipping)
	assert.True(t, shipping.AmountPaid.IsZero())
	assert.Nil(t, shipping.PaidAt)
	assert.False(t, loaded.Paid)
	assert.NotContains(t, f.sink.Types(), EventStagePaid)

	_, err = f.core.Payments.FinalizePayment(f.ctx, ActorFor(customer), txn.ID, models.TransactionSuccess, "declined-1")
	require.NoError(t, err, "same reference replays the recorded outcome")
	got, err := f.core.Payments.GetTransaction(f.ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFail, got.Status)
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.back, cat.plain, 1)
	actor := ActorFor(customer)

	stage, err := f.core.Orders.SetStagePayment(f.ctx, ActorFor(shop.owner), order.ID, models.StagePrinting, decimal.NewFromInt(90), nil)
	require.NoError(t, err)

	for i, ref := range []string{"P1", "P2"} {
		txn, err := f.core.Payments.BeginPayment(f.ctx, actor, BeginPaymentParams{
			StageID: stage.ID, Amount: decimal.NewFromInt(45), Provider: "card", ExternalRef: ref,
		})
		require.NoError(t, err)
		_, err = f.core.Payments.FinalizePayment(f.ctx, actor, txn.ID, models.TransactionSuccess, ref)
		require.NoError(t, err)

		loaded, err := f.core.Orders.GetOrder(f.ctx, order.ID)
		require.NoError(t, err)
		printing := loaded.Stage(models.StagePrinting)
		if i == 0 {
			assert.Nil(t, printing.PaidAt)
		} else {
			assert.NotNil(t, printing.PaidAt)
			assert.True(t, printing.IsPaid())
		}
	}

	_, err = f.core.Orders.SetStagePayment(f.ctx, ActorFor(shop.owner), order.ID, models.StagePrinting, decimal.NewFromInt(80), nil)
	requireCode(t, err, CodePreconditionNotMet)

	raised, err := f.core.Orders.SetStagePayment(f.ctx, ActorFor(shop.owner), order.ID, models.StagePrinting, decimal.NewFromInt(120), nil)
	require.NoError(t, err)
	assert.Nil(t, raised.PaidAt)
}

func TestBeginPaymentValidation(t *testing.T) {
	f := newFixture(t)
	customer := f.user(t, "c1", models.RoleCustomer)
	shop := f.shop(t, "b1", 100)
	cat := f.catalog(t)
	order := f.confirmedOrder(t, customer, shop, cat.back, cat.plain, 1)
	order, err := f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	stage := order.Stage(models.StagePrinting)
	require.NotNil(t, stage)

	tests := []struct {
		name   string
		params BeginPaymentParams
		code   ErrorCode
	}{
		{"no provider", BeginPaymentParams{StageID: stage.ID, Amount: decimal.NewFromInt(1)}, CodeValidationFailed},
		{"zero amount", BeginPaymentParams{StageID: stage.ID, Provider: "card"}, CodeValidationFailed},
		{"unknown stage", BeginPaymentParams{StageID: uuid.New(), Amount: decimal.NewFromInt(1), Provider: "card"}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), tt.params)
			requireCode(t, err, tt.code)
		})
	}

	_, err = f.core.Orders.Cancel(f.ctx, ActorFor(customer), order.ID, "changed mind")
	require.NoError(t, err)
	_, err = f.core.Payments.BeginPayment(f.ctx, ActorFor(customer), BeginPaymentParams{StageID: stage.ID, Amount: decimal.NewFromInt(1), Provider: "card"})
	requireCode(t, err, CodePreconditionNotMet)
}
