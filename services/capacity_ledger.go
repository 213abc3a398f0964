package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/gorm"
)

// CapacitySnapshot is the ledger's view of one workshop
type CapacitySnapshot struct {
	WorkshopID    uuid.UUID `json:"workshop_id"`
	DailyCapacity int       `json:"daily_capacity"`
	UsedCapacity  int       `json:"used_capacity"`
	Remaining     int       `json:"remaining"`
	IsActive      bool      `json:"is_active"`
}

// CapacityAudit compares the ledger with the sum of open task quantities
type CapacityAudit struct {
	WorkshopID   uuid.UUID `json:"workshop_id"`
	UsedCapacity int       `json:"used_capacity"`
	OpenTaskSum  int       `json:"open_task_sum"`
	Drift        int       `json:"drift"`
}

// CapacityLedger is the authoritative record of reserved capacity per workshop.
// Reserve and Release are single conditional UPDATEs, so concurrent callers are
// linearized by the database row lock.
type CapacityLedger struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCapacityLedger(db *gorm.DB, log *logger.Logger) *CapacityLedger {
	return &CapacityLedger{db: db, log: log.With("service", "CapacityLedger")}
}

// Reserve adds delta to used_capacity on tx when the workshop is active and the
// result stays within daily_capacity
func (l *CapacityLedger) Reserve(tx *gorm.DB, workshopID uuid.UUID, delta int) error {
	if delta <= 0 {
		return validationFailed("capacity reservation must be positive, got %d", delta)
	}

	res := tx.Model(&models.Workshop{}).
		Where("id = ? AND is_active = ? AND used_capacity + ? <= daily_capacity", workshopID, true, delta).
		UpdateColumn("used_capacity", gorm.Expr("used_capacity + ?", delta))
	if res.Error != nil {
		return mapDBError(res.Error, "workshop", CodeConflict)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Nothing matched: find out why
	var ws models.Workshop
	if err := tx.First(&ws, "id = ?", workshopID).Error; err != nil {
		return mapDBError(err, "workshop", CodeConflict)
	}
	if !ws.IsActive {
		return newError(CodeWorkshopInactive, "workshop %s is inactive", ws.Name)
	}
	return newError(CodeInsufficientCapacity, "workshop %s has %d of %d pieces left, %d requested",
		ws.Name, ws.RemainingCapacity(), ws.DailyCapacity, delta)
}

// Release subtracts delta from used_capacity, clamping at zero
func (l *CapacityLedger) Release(tx *gorm.DB, workshopID uuid.UUID, delta int) error {
	if delta <= 0 {
		return nil
	}
	res := tx.Model(&models.Workshop{}).
		Where("id = ?", workshopID).
		UpdateColumn("used_capacity", gorm.Expr("CASE WHEN used_capacity - ? < 0 THEN 0 ELSE used_capacity - ? END", delta, delta))
	if res.Error != nil {
		return mapDBError(res.Error, "workshop", CodeConflict)
	}
	if res.RowsAffected == 0 {
		l.log.Warn("release on unknown workshop", "workshop_id", workshopID, "delta", delta)
	}
	return nil
}

// Snapshot returns (daily_capacity, used_capacity) for a workshop
func (l *CapacityLedger) Snapshot(ctx context.Context, workshopID uuid.UUID) (CapacitySnapshot, error) {
	var ws models.Workshop
	if err := l.db.WithContext(ctx).First(&ws, "id = ?", workshopID).Error; err != nil {
		return CapacitySnapshot{}, mapDBError(err, "workshop", CodeConflict)
	}
	return CapacitySnapshot{
		WorkshopID:    ws.ID,
		DailyCapacity: ws.DailyCapacity,
		UsedCapacity:  ws.UsedCapacity,
		Remaining:     ws.RemainingCapacity(),
		IsActive:      ws.IsActive,
	}, nil
}

// Audit recomputes Σ quantity of open tasks and logs any drift. It never corrects.
func (l *CapacityLedger) Audit(ctx context.Context, workshopID uuid.UUID) (CapacityAudit, error) {
	db := l.db.WithContext(ctx)

	var ws models.Workshop
	if err := db.First(&ws, "id = ?", workshopID).Error; err != nil {
		return CapacityAudit{}, mapDBError(err, "workshop", CodeConflict)
	}

	var sum int64
	err := db.Model(&models.WorkshopTask{}).
		Where("workshop_id = ? AND status NOT IN ?", workshopID, []models.TaskStatus{models.TaskDone, models.TaskCancelled}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	if err != nil {
		return CapacityAudit{}, mapDBError(err, "workshop task", CodeConflict)
	}

	audit := CapacityAudit{
		WorkshopID:   ws.ID,
		UsedCapacity: ws.UsedCapacity,
		OpenTaskSum:  int(sum),
		Drift:        ws.UsedCapacity - int(sum),
	}
	if audit.Drift != 0 {
		l.log.Warn("capacity drift detected",
			"workshop_id", ws.ID,
			"used_capacity", ws.UsedCapacity,
			"open_task_sum", sum,
			"drift", audit.Drift,
		)
	}
	return audit, nil
}
