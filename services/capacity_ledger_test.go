package services

import (
	"testing"

	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerReleaseClampsAtZero(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "b1", 10)

	require.NoError(t, f.core.Ledger.Reserve(f.db, shop.workshop.ID, 4))
	require.NoError(t, f.core.Ledger.Release(f.db, shop.workshop.ID, 9))
	assert.Equal(t, 0, f.workshopRow(t, shop.workshop.ID).UsedCapacity)

	requireCode(t, f.core.Ledger.Reserve(f.db, shop.workshop.ID, 0), CodeValidationFailed)
	require.NoError(t, f.core.Ledger.Release(f.db, shop.workshop.ID, 0))
}

func TestLedgerAuditReportsDriftWithoutCorrecting(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "b1", 50)
	actor := ActorFor(shop.owner)

	_, err := f.core.Workshops.CreateTask(f.ctx, actor, CreateTaskParams{WorkshopID: shop.workshop.ID, Quantity: 12, Title: "x"})
	require.NoError(t, err)

	audit, err := f.core.Ledger.Audit(f.ctx, shop.workshop.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, audit.UsedCapacity)
	assert.Equal(t, 12, audit.OpenTaskSum)
	assert.Zero(t, audit.Drift)

	// simulate an out-of-band write
	require.NoError(t, f.db.Model(&models.Workshop{}).Where("id = ?", shop.workshop.ID).
		UpdateColumn("used_capacity", 20).Error)

	audit, err = f.core.Ledger.Audit(f.ctx, shop.workshop.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, audit.Drift)
	assert.Equal(t, 20, f.workshopRow(t, shop.workshop.ID).UsedCapacity, "audit never corrects the ledger")
}
