package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogCache stores serialized catalog listings. Entries may be stale for up to their TTL.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// RedisCatalogCache keeps catalog listings in redis
type RedisCatalogCache struct {
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisCatalogCache(rdb goredis.UniversalClient, prefix string) *RedisCatalogCache {
	if prefix == "" {
		prefix = "printhouse:catalog:"
	}
	return &RedisCatalogCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCatalogCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCatalogCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.rdb.Del(ctx, full...).Err()
}

// MemoryCatalogCache is the in-process fallback used when redis is not configured
type MemoryCatalogCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryCatalogCache() *MemoryCatalogCache {
	return &MemoryCatalogCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCatalogCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || (!e.expires.IsZero() && c.now().After(e.expires)) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCatalogCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCatalogCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

const (
	catalogKeyLocations = "locations"
	catalogKeySections  = "sections"
	catalogKeyDesigns   = "designs"
)

// CatalogEnums lists the enumerations clients render in pickers
type CatalogEnums struct {
	Sizes             []string `json:"sizes"`
	FabricTypes       []string `json:"fabric_types"`
	Orientations      []string `json:"orientations"`
	StageTypes        []string `json:"stage_types"`
	OrderStatuses     []string `json:"order_statuses"`
	SetDesignStatuses []string `json:"set_design_statuses"`
}

// CatalogService serves read-mostly catalog lookups through a cache
type CatalogService struct {
	db    *gorm.DB
	cache CatalogCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCatalogService(db *gorm.DB, cache CatalogCache, ttl time.Duration, log *logger.Logger) *CatalogService {
	if cache == nil {
		cache = NewMemoryCatalogCache()
	}
	return &CatalogService{db: db, cache: cache, ttl: ttl, log: log.With("service", "CatalogService")}
}

// cached loads key from the cache, falling back to load and repopulating.
// Cache failures only cost a database read.
func (s *CatalogService) cached(ctx context.Context, key string, dest interface{}, load func() error) error {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("catalog cache read failed", "key", key, "error", err)
	}
	if ok {
		if err := json.Unmarshal(raw, dest); err == nil {
			return nil
		}
		s.log.Warn("discarding undecodable catalog cache entry", "key", key)
	}

	if err := load(); err != nil {
		return mapDBError(err, key, CodeConflict)
	}
	if raw, err := json.Marshal(dest); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.log.Warn("catalog cache write failed", "key", key, "error", err)
		}
	}
	return nil
}

func (s *CatalogService) ListLocations(ctx context.Context) ([]models.PrintLocation, error) {
	var rows []models.PrintLocation
	err := s.cached(ctx, catalogKeyLocations, &rows, func() error {
		return s.db.WithContext(ctx).Order("code asc").Find(&rows).Error
	})
	return rows, err
}

func (s *CatalogService) ListSections(ctx context.Context) ([]models.ClothingSection, error) {
	var rows []models.ClothingSection
	err := s.cached(ctx, catalogKeySections, &rows, func() error {
		return s.db.WithContext(ctx).Order("code asc").Find(&rows).Error
	})
	return rows, err
}

// ListDesigns returns the active designs
func (s *CatalogService) ListDesigns(ctx context.Context) ([]models.Design, error) {
	var rows []models.Design
	err := s.cached(ctx, catalogKeyDesigns, &rows, func() error {
		return s.db.WithContext(ctx).Where("is_active = ?", true).Order("title asc").Find(&rows).Error
	})
	return rows, err
}

func (s *CatalogService) Enums() CatalogEnums {
	enums := CatalogEnums{
		Sizes:        append([]string(nil), models.GarmentSizes...),
		FabricTypes:  append([]string(nil), models.FabricTypes...),
		Orientations: append([]string(nil), models.Orientations...),
		OrderStatuses: []string{
			string(models.OrderDraft), string(models.OrderPending), string(models.OrderConfirmed),
			string(models.OrderInProgress), string(models.OrderCompleted), string(models.OrderCancelled),
			string(models.OrderReturned),
		},
		SetDesignStatuses: []string{
			string(models.SetWaiting), string(models.SetAssigned), string(models.SetInProgress),
			string(models.SetPendingApproval), string(models.SetRevisionNeeded), string(models.SetApproved),
			string(models.SetRejected), string(models.SetCompleted),
		},
	}
	for _, st := range models.StageTypes {
		enums.StageTypes = append(enums.StageTypes, string(st))
	}
	return enums
}

// CreatePrintLocation adds a location; pricing of existing sections is unaffected
func (s *CatalogService) CreatePrintLocation(ctx context.Context, loc *models.PrintLocation) error {
	loc.Code = strings.TrimSpace(loc.Code)
	if loc.Code == "" || strings.TrimSpace(loc.Name) == "" {
		return validationFailed("print location code and name are required")
	}
	if loc.PriceModifier.LessThanOrEqual(decimal.Zero) {
		return validationFailed("price modifier must be positive")
	}
	if loc.MaxWidth <= 0 || loc.MaxHeight <= 0 {
		return validationFailed("print location dimensions must be positive")
	}
	if err := s.db.WithContext(ctx).Create(loc).Error; err != nil {
		return mapDBError(err, "print location", CodeConflict)
	}
	s.invalidate(ctx, catalogKeyLocations)
	return nil
}

func (s *CatalogService) CreateClothingSection(ctx context.Context, sec *models.ClothingSection) error {
	sec.Code = strings.TrimSpace(sec.Code)
	if sec.Code == "" || strings.TrimSpace(sec.Name) == "" {
		return validationFailed("clothing section code and name are required")
	}
	if err := s.db.WithContext(ctx).Create(sec).Error; err != nil {
		return mapDBError(err, "clothing section", CodeConflict)
	}
	s.invalidate(ctx, catalogKeySections)
	return nil
}

func (s *CatalogService) CreateDesign(ctx context.Context, d *models.Design) error {
	if strings.TrimSpace(d.Title) == "" {
		return validationFailed("design title is required")
	}
	if d.BasePrice.IsNegative() {
		return validationFailed("design base price cannot be negative")
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return mapDBError(err, "design", CodeConflict)
	}
	s.invalidate(ctx, catalogKeyDesigns)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("catalog cache invalidation failed", "keys", keys, "error", err)
	}
}

// loadPricingInputs reads the design and location a section is priced from
func loadPricingInputs(tx *gorm.DB, designID, locationID uuid.UUID) (*models.Design, *models.PrintLocation, error) {
	var design models.Design
	if err := tx.First(&design, "id = ?", designID).Error; err != nil {
		return nil, nil, mapDBError(err, "design", CodeConflict)
	}
	if !design.IsActive {
		return nil, nil, validationFailed("design %s is not available", design.Title)
	}
	var loc models.PrintLocation
	if err := tx.First(&loc, "id = ?", locationID).Error; err != nil {
		return nil, nil, mapDBError(err, "print location", CodeConflict)
	}
	return &design, &loc, nil
}
