package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderDraft, OrderPending, true},
		{OrderPending, OrderConfirmed, true},
		{OrderConfirmed, OrderInProgress, true},
		{OrderInProgress, OrderCompleted, true},
		{OrderCompleted, OrderReturned, true},
		{OrderDraft, OrderCancelled, true},
		{OrderPending, OrderCancelled, true},
		{OrderConfirmed, OrderCancelled, true},
		{OrderInProgress, OrderCancelled, true},
		{OrderDraft, OrderConfirmed, false},
		{OrderCompleted, OrderCancelled, false},
		{OrderCancelled, OrderDraft, false},
		{OrderReturned, OrderCompleted, false},
		{OrderConfirmed, OrderReturned, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderCompleted.IsTerminal())
	assert.True(t, OrderCancelled.IsTerminal())
	assert.True(t, OrderReturned.IsTerminal())
	assert.False(t, OrderInProgress.IsTerminal())
}

func TestSectionCost(t *testing.T) {
	cost := SectionCost(decimal.NewFromInt(100), decimal.RequireFromString("1.5"), 10)
	assert.True(t, cost.Equal(decimal.NewFromInt(1500)), "got %s", cost)

	// no implicit rounding
	cost = SectionCost(decimal.RequireFromString("33"), decimal.RequireFromString("1.25"), 3)
	assert.Equal(t, "123.75", cost.String())
}

func TestComputeTotal(t *testing.T) {
	order := Order{
		Sections: []OrderSection{{Cost: decimal.NewFromInt(1500)}, {Cost: decimal.NewFromInt(250)}},
		Items:    []OrderItem{{LineTotal: decimal.NewFromInt(40)}},
	}
	assert.True(t, order.ComputeTotal().Equal(decimal.NewFromInt(1790)))
	assert.True(t, Order{}.ComputeTotal().IsZero())
}

func TestOrderStageLookup(t *testing.T) {
	order := Order{Stages: []OrderStage{{StageType: StageOrderReceived}, {StageType: StagePrinting}}}
	assert.NotNil(t, order.Stage(StagePrinting))
	assert.Nil(t, order.Stage(StageShipping))
}
