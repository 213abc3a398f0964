package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/kendall-kelly/printhouse-api/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Catalog is the seeded catalog shared by order tests
type Catalog struct {
	Front     *models.PrintLocation
	Back      *models.PrintLocation
	Plain     *models.Design // priced 10.00, no composition
	Composite *models.Design // priced 25.00, needs a set design
}

// Shop is a seeded business with its owner and primary workshop
type Shop struct {
	Owner    *models.User
	Business *models.Business
	Workshop *models.Workshop
}

// SeedUser creates a user whose Auth0 subject is "auth0|<handle>"
func (f *Fixture) SeedUser(t *testing.T, handle, role string) *models.User {
	t.Helper()

	user := models.User{
		Auth0ID: "auth0|" + handle,
		Name:    handle,
		Email:   handle + "@example.com",
		Role:    role,
	}
	require.NoError(t, f.DB.Create(&user).Error)
	return &user
}

// SeedShop creates a business owned by a new user with one active primary workshop
func (f *Fixture) SeedShop(t *testing.T, handle string, dailyCapacity int) *Shop {
	t.Helper()

	owner := f.SeedUser(t, handle, models.RoleBusinessOwner)
	biz := models.Business{Name: handle + " prints", OwnerID: owner.ID}
	require.NoError(t, f.DB.Create(&biz).Error)
	require.NoError(t, f.DB.Model(owner).Update("business_id", biz.ID).Error)
	owner.BusinessID = &biz.ID

	ws, err := f.Core.Workshops.CreateWorkshop(context.Background(), services.ActorFor(owner), services.CreateWorkshopParams{
		BusinessID:    &biz.ID,
		Name:          handle + " floor",
		DailyCapacity: dailyCapacity,
		Primary:       true,
	})
	require.NoError(t, err)
	biz.PrimaryWorkshopID = &ws.ID
	return &Shop{Owner: owner, Business: &biz, Workshop: ws}
}

// SeedStaff creates a designer or workshop manager bound to shop
func (f *Fixture) SeedStaff(t *testing.T, shop *Shop, handle, role string) *models.User {
	t.Helper()

	user := f.SeedUser(t, handle, role)
	require.NoError(t, f.DB.Model(user).Update("business_id", shop.Business.ID).Error)
	user.BusinessID = &shop.Business.ID
	return user
}

// SeedCatalog creates two print locations and two active designs
func (f *Fixture) SeedCatalog(t *testing.T) *Catalog {
	t.Helper()

	section := models.ClothingSection{Code: "torso", Name: "Torso"}
	require.NoError(t, f.DB.Create(&section).Error)

	front := models.PrintLocation{
		Code: "front", Name: "Front", ClothingSectionID: &section.ID,
		PriceModifier: decimal.NewFromInt(1), MaxWidth: 300, MaxHeight: 400,
	}
	back := models.PrintLocation{
		Code: "back", Name: "Back", ClothingSectionID: &section.ID,
		PriceModifier: decimal.RequireFromString("1.5"), MaxWidth: 350, MaxHeight: 450,
	}
	require.NoError(t, f.DB.Create(&front).Error)
	require.NoError(t, f.DB.Create(&back).Error)

	plain := models.Design{Title: "Logo", BasePrice: decimal.RequireFromString("10.00"), IsActive: true}
	composite := models.Design{Title: "Team set", BasePrice: decimal.RequireFromString("25.00"), RequiresComposition: true, IsActive: true}
	require.NoError(t, f.DB.Create(&plain).Error)
	require.NoError(t, f.DB.Create(&composite).Error)

	return &Catalog{Front: &front, Back: &back, Plain: &plain, Composite: &composite}
}

// SeedDraftOrder creates a draft order for customer with one section of design on the front
func (f *Fixture) SeedDraftOrder(t *testing.T, customer *models.User, catalog *Catalog, design *models.Design, quantity int) *models.Order {
	t.Helper()

	ctx := context.Background()
	actor := services.ActorFor(customer)
	order, err := f.Core.Orders.CreateOrder(ctx, actor, services.CreateOrderParams{
		CustomerID: customer.ID,
		Size:       models.SizeM,
		FabricType: models.FabricCotton,
	})
	require.NoError(t, err)

	_, err = f.Core.Orders.AddSection(ctx, actor, services.AddSectionParams{
		OrderID:         order.ID,
		PrintLocationID: catalog.Front.ID,
		DesignID:        design.ID,
		Quantity:        quantity,
	})
	require.NoError(t, err)

	order, err = f.Core.Orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	return order
}

// SeedConfirmedOrder submits a draft order and confirms it for shop
func (f *Fixture) SeedConfirmedOrder(t *testing.T, customer *models.User, shop *Shop, catalog *Catalog, design *models.Design, quantity int) *models.Order {
	t.Helper()

	ctx := context.Background()
	order := f.SeedDraftOrder(t, customer, catalog, design, quantity)
	_, err := f.Core.Orders.Submit(ctx, services.ActorFor(customer), order.ID)
	require.NoError(t, err)
	order, err = f.Core.Orders.Confirm(ctx, services.ActorFor(shop.Owner), order.ID, &shop.Business.ID)
	require.NoError(t, err)
	return order
}

// Actor returns the command actor of user
func Actor(user *models.User) services.Actor {
	return services.ActorFor(user)
}

// MustUUID parses s or fails t
func MustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
