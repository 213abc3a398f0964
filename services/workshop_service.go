package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/gorm"
)

// WorkshopService owns workshops and the tasks executed in them
type WorkshopService struct {
	rt     *Runtime
	ledger *CapacityLedger
}

func NewWorkshopService(rt *Runtime, ledger *CapacityLedger) *WorkshopService {
	return &WorkshopService{rt: rt, ledger: ledger}
}

// Ledger exposes the capacity ledger backing this service
func (s *WorkshopService) Ledger() *CapacityLedger {
	return s.ledger
}

// CreateWorkshopParams describes a new workshop
type CreateWorkshopParams struct {
	BusinessID    *uuid.UUID
	Name          string
	ManagerID     *uuid.UUID
	DailyCapacity int
	// Primary makes this the business's primary workshop
	Primary bool
}

// CreateWorkshop registers an active workshop with an empty capacity bucket
func (s *WorkshopService) CreateWorkshop(ctx context.Context, actor Actor, p CreateWorkshopParams) (*models.Workshop, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, validationFailed("workshop name is required")
	}
	if p.DailyCapacity <= 0 {
		return nil, validationFailed("daily capacity must be positive")
	}

	ws := models.Workshop{
		BusinessID:    p.BusinessID,
		Name:          name,
		ManagerID:     p.ManagerID,
		DailyCapacity: p.DailyCapacity,
		IsActive:      true,
	}
	err := s.rt.command(ctx, "workshop.create", actor, nil, func(tx *gorm.DB, buf *eventBuffer) error {
		if p.BusinessID != nil {
			var biz models.Business
			if err := tx.First(&biz, "id = ?", *p.BusinessID).Error; err != nil {
				return mapDBError(err, "business", CodeConflict)
			}
		}
		if err := tx.Create(&ws).Error; err != nil {
			return mapDBError(err, "workshop", CodeConflict)
		}
		if p.Primary && p.BusinessID != nil {
			if err := tx.Model(&models.Business{}).Where("id = ?", *p.BusinessID).
				Update("primary_workshop_id", ws.ID).Error; err != nil {
				return mapDBError(err, "business", CodeConflict)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetWorkshop loads a workshop by id
func (s *WorkshopService) GetWorkshop(ctx context.Context, id uuid.UUID) (*models.Workshop, error) {
	var ws models.Workshop
	if err := s.rt.DB.WithContext(ctx).First(&ws, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "workshop", CodeConflict)
	}
	return &ws, nil
}

// SetDailyCapacity changes the daily bucket; it can never drop below what is reserved
func (s *WorkshopService) SetDailyCapacity(ctx context.Context, actor Actor, id uuid.UUID, capacity int) (*models.Workshop, error) {
	if capacity <= 0 {
		return nil, validationFailed("daily capacity must be positive")
	}
	var ws models.Workshop
	err := s.rt.command(ctx, "workshop.set_capacity", actor, []string{workshopKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		res := tx.Model(&models.Workshop{}).
			Where("id = ? AND used_capacity <= ?", id, capacity).
			Update("daily_capacity", capacity)
		if res.Error != nil {
			return mapDBError(res.Error, "workshop", CodeConflict)
		}
		if err := tx.First(&ws, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop", CodeConflict)
		}
		if res.RowsAffected == 0 {
			return preconditionNotMet("workshop has %d pieces reserved, cannot lower capacity to %d", ws.UsedCapacity, capacity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// SetActive activates or deactivates a workshop. Existing tasks keep their
// reservations; an inactive workshop accepts no new reservations.
func (s *WorkshopService) SetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (*models.Workshop, error) {
	var ws models.Workshop
	err := s.rt.command(ctx, "workshop.set_active", actor, []string{workshopKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&ws, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop", CodeConflict)
		}
		if ws.IsActive == active {
			return nil
		}
		ws.IsActive = active
		if err := tx.Model(&ws).Update("is_active", active).Error; err != nil {
			return mapDBError(err, "workshop", CodeConflict)
		}
		if !active {
			buf.emit(EventWorkshopDeactivated, AggregateWorkshop, ws.ID, "active", "inactive", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// CapacitySnapshot returns the ledger's view of a workshop
func (s *WorkshopService) CapacitySnapshot(ctx context.Context, id uuid.UUID) (CapacitySnapshot, error) {
	return s.ledger.Snapshot(ctx, id)
}

// AuditCapacity recomputes reserved capacity from open tasks and reports drift
func (s *WorkshopService) AuditCapacity(ctx context.Context, id uuid.UUID) (CapacityAudit, error) {
	return s.ledger.Audit(ctx, id)
}

// resolveBusinessWorkshop returns the workshop for a business: explicit when
// given (and owned by the business), otherwise the business's primary workshop
func (s *WorkshopService) resolveBusinessWorkshop(tx *gorm.DB, businessID uuid.UUID, explicit *uuid.UUID) (uuid.UUID, error) {
	if explicit != nil {
		var ws models.Workshop
		if err := tx.First(&ws, "id = ?", *explicit).Error; err != nil {
			return uuid.Nil, mapDBError(err, "workshop", CodeConflict)
		}
		if ws.BusinessID == nil || *ws.BusinessID != businessID {
			return uuid.Nil, validationFailed("workshop %s does not belong to the bidding business", ws.ID)
		}
		return ws.ID, nil
	}
	var biz models.Business
	if err := tx.First(&biz, "id = ?", businessID).Error; err != nil {
		return uuid.Nil, mapDBError(err, "business", CodeConflict)
	}
	if biz.PrimaryWorkshopID == nil {
		return uuid.Nil, preconditionNotMet("business %s has no primary workshop", biz.Name)
	}
	return *biz.PrimaryWorkshopID, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
