package models

import (
	"github.com/google/uuid"
)

// Business is a print shop that can be bound to orders and bid on tenders
type Business struct {
	Base
	Name              string     `gorm:"not null" json:"name"`
	OwnerID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	PrimaryWorkshopID *uuid.UUID `gorm:"type:uuid" json:"primary_workshop_id,omitempty"`
}

func (Business) TableName() string {
	return "businesses"
}

// Workshop is a production unit with a single daily capacity bucket.
// UsedCapacity is only mutated through the capacity ledger.
type Workshop struct {
	Base
	BusinessID    *uuid.UUID `gorm:"type:uuid;index" json:"business_id,omitempty"`
	Name          string     `gorm:"not null" json:"name"`
	ManagerID     *uuid.UUID `gorm:"type:uuid" json:"manager_id,omitempty"`
	DailyCapacity int        `gorm:"not null;check:daily_capacity >= 0" json:"daily_capacity"`
	UsedCapacity  int        `gorm:"not null;default:0;check:used_capacity >= 0" json:"used_capacity"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
}

func (Workshop) TableName() string {
	return "workshops"
}

// RemainingCapacity is the number of pieces that can still be reserved today
func (w Workshop) RemainingCapacity() int {
	if rem := w.DailyCapacity - w.UsedCapacity; rem > 0 {
		return rem
	}
	return 0
}
