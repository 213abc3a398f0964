package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	db    *gorm.DB
	core  *Core
	clock *ManualClock
	sink  *RecordingSink
	s3    *MockS3Service
	info  *MockUserInfo
}

type seededShop struct {
	owner    *models.User
	business *models.Business
	workshop *models.Workshop
}

type seededCatalog struct {
	front     *models.PrintLocation
	back      *models.PrintLocation
	plain     *models.Design
	composite *models.Design
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "Failed to connect to test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...), "Failed to migrate test database")
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSink(t, nil)
}

// newFixtureWithSink delivers notifications to sink instead of the recording sink
func newFixtureWithSink(t *testing.T, sink NotificationSink) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		ctx:   context.Background(),
		db:    db,
		clock: NewManualClock(testEpoch),
		sink:  NewRecordingSink(),
		s3:    NewMockS3Service(),
		info:  NewMockUserInfo(),
	}
	if sink == nil {
		sink = f.sink
	}
	f.core = NewCore(db, logger.NewNop(), CoreOptions{
		Clock:    f.clock,
		Sink:     sink,
		Artwork:  NewS3ArtworkStore(f.s3),
		UserInfo: f.info,
	})
	return f
}

func (f *fixture) user(t *testing.T, handle, role string) *models.User {
	t.Helper()
	u := models.User{Auth0ID: "auth0|" + handle, Name: handle, Email: handle + "@example.com", Role: role}
	require.NoError(t, f.db.Create(&u).Error)
	return &u
}

func (f *fixture) shop(t *testing.T, handle string, capacity int) *seededShop {
	t.Helper()
	owner := f.user(t, handle, models.RoleBusinessOwner)
	biz, err := f.core.Identity.CreateBusiness(f.ctx, ActorFor(owner), handle+" prints")
	require.NoError(t, err)
	owner.BusinessID = &biz.ID
	owner.Role = models.RoleBusinessOwner
	ws, err := f.core.Workshops.CreateWorkshop(f.ctx, ActorFor(owner), CreateWorkshopParams{
		BusinessID: &biz.ID, Name: handle + " floor", DailyCapacity: capacity, Primary: true,
	})
	require.NoError(t, err)
	biz.PrimaryWorkshopID = &ws.ID
	return &seededShop{owner: owner, business: biz, workshop: ws}
}

func (f *fixture) catalog(t *testing.T) *seededCatalog {
	t.Helper()
	front := models.PrintLocation{Code: "front", Name: "Front", PriceModifier: decimal.RequireFromString("1.5"), MaxWidth: 300, MaxHeight: 400}
	back := models.PrintLocation{Code: "back", Name: "Back", PriceModifier: decimal.NewFromInt(1), MaxWidth: 350, MaxHeight: 450}
	plain := models.Design{Title: "D1", BasePrice: decimal.NewFromInt(100), IsActive: true}
	composite := models.Design{Title: "Team set", BasePrice: decimal.NewFromInt(40), RequiresComposition: true, IsActive: true}
	for _, row := range []interface{}{&front, &back, &plain, &composite} {
		require.NoError(t, f.db.Create(row).Error)
	}
	return &seededCatalog{front: &front, back: &back, plain: &plain, composite: &composite}
}

func (f *fixture) draftOrder(t *testing.T, customer *models.User, loc *models.PrintLocation, design *models.Design, qty int) *models.Order {
	t.Helper()
	actor := ActorFor(customer)
	order, err := f.core.Orders.CreateOrder(f.ctx, actor, CreateOrderParams{
		CustomerID: customer.ID, Size: models.SizeM, FabricType: models.FabricCotton,
	})
	require.NoError(t, err)
	_, err = f.core.Orders.AddSection(f.ctx, actor, AddSectionParams{
		OrderID: order.ID, PrintLocationID: loc.ID, DesignID: design.ID, Quantity: qty, Orientation: "outside",
	})
	require.NoError(t, err)
	order, err = f.core.Orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	return order
}

func (f *fixture) confirmedOrder(t *testing.T, customer *models.User, shop *seededShop, loc *models.PrintLocation, design *models.Design, qty int) *models.Order {
	t.Helper()
	order := f.draftOrder(t, customer, loc, design, qty)
	_, err := f.core.Orders.Submit(f.ctx, ActorFor(customer), order.ID)
	require.NoError(t, err)
	order, err = f.core.Orders.Confirm(f.ctx, ActorFor(shop.owner), order.ID, &shop.business.ID)
	require.NoError(t, err)
	return order
}

// payStage sets amount due on a stage and pays it in full with one transaction
func (f *fixture) payStage(t *testing.T, actor Actor, orderID uuid.UUID, st models.StageType, amount decimal.Decimal, ref string) {
	t.Helper()
	stage, err := f.core.Orders.SetStagePayment(f.ctx, actor, orderID, st, amount, nil)
	require.NoError(t, err)
	if !amount.IsPositive() {
		return
	}
	txn, err := f.core.Payments.BeginPayment(f.ctx, actor, BeginPaymentParams{
		StageID: stage.ID, Amount: amount, Provider: "card", ExternalRef: ref,
	})
	require.NoError(t, err)
	_, err = f.core.Payments.FinalizePayment(f.ctx, actor, txn.ID, models.TransactionSuccess, ref)
	require.NoError(t, err)
}

// advanceAll walks every open stage to completed in workflow order
func (f *fixture) advanceAll(t *testing.T, actor Actor, orderID uuid.UUID) {
	t.Helper()
	for _, st := range models.StageTypes {
		order, err := f.core.Orders.GetOrder(f.ctx, orderID)
		require.NoError(t, err)
		if order.Status.IsTerminal() {
			return
		}
		stage := order.Stage(st)
		if stage.Status == models.StagePending || stage.Status == models.StageOnHold {
			_, err = f.core.Orders.AdvanceStage(f.ctx, actor, orderID, st, models.StageInProgress, nil)
			require.NoError(t, err, "start %s", st)
		}
		if stage.Status != models.StageCompleted {
			_, err = f.core.Orders.AdvanceStage(f.ctx, actor, orderID, st, models.StageCompleted, nil)
			require.NoError(t, err, "complete %s", st)
		}
	}
}

func (f *fixture) workshopRow(t *testing.T, id uuid.UUID) models.Workshop {
	t.Helper()
	var ws models.Workshop
	require.NoError(t, f.db.First(&ws, "id = ?", id).Error)
	return ws
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "unexpected error: %v", err)
}
