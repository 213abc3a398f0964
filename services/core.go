package services

import (
	"time"

	"github.com/kendall-kelly/printhouse-api/logger"
	"gorm.io/gorm"
)

// Core holds every aggregate service of one running instance
type Core struct {
	Runtime     *Runtime
	Ledger      *CapacityLedger
	Workshops   *WorkshopService
	Orders      *OrderService
	SetDesigns  *SetDesignService
	Tenders     *TenderService
	Payments    *PaymentService
	Catalog     *CatalogService
	Coordinator *Coordinator
	Identity    *IdentityService
	// Artwork is nil when no media store is configured
	Artwork ArtworkStore
}

// CoreOptions are the optional collaborators of NewCore; zero values fall back
// to the real clock, log-only notifications, an in-memory catalog cache and no
// artwork store.
type CoreOptions struct {
	Clock           Clock
	Sink            NotificationSink
	CatalogCache    CatalogCache
	CatalogCacheTTL time.Duration
	Artwork         ArtworkStore
	UserInfo        UserInfoFetcher
}

var core *Core

// NewCore wires the services and subscribes the coordinator to committed events
func NewCore(db *gorm.DB, log *logger.Logger, opts CoreOptions) *Core {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.CatalogCacheTTL <= 0 {
		opts.CatalogCacheTTL = 5 * time.Minute
	}
	rt := NewRuntime(db, opts.Clock, opts.Sink, log)
	ledger := NewCapacityLedger(db, log)
	workshops := NewWorkshopService(rt, ledger)
	orders := NewOrderService(rt)
	sets := NewSetDesignService(rt, opts.Artwork)
	tenders := NewTenderService(rt, workshops)

	c := &Core{
		Runtime:    rt,
		Ledger:     ledger,
		Workshops:  workshops,
		Orders:     orders,
		SetDesigns: sets,
		Tenders:    tenders,
		Payments:   NewPaymentService(rt),
		Catalog:    NewCatalogService(db, opts.CatalogCache, opts.CatalogCacheTTL, log),
		Identity:   NewIdentityService(db, opts.UserInfo, log),
		Artwork:    opts.Artwork,
	}
	c.Coordinator = NewCoordinator(rt, orders, sets, workshops, tenders)
	rt.Dispatcher.Subscribe(c.Coordinator)
	return c
}

// InitCore builds the process-wide core
func InitCore(db *gorm.DB, log *logger.Logger, opts CoreOptions) *Core {
	core = NewCore(db, log, opts)
	return core
}

// GetCore returns the process-wide core
func GetCore() *Core {
	return core
}

// SetCore replaces the process-wide core (primarily for testing)
func SetCore(c *Core) {
	core = c
}
