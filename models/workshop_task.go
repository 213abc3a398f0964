package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is stored as a stable string code
type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal is true for DONE and CANCELLED; terminal tasks hold no capacity
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// WorkshopTask is a unit of work that consumes workshop capacity while open
type WorkshopTask struct {
	Base
	WorkshopID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"workshop_id"`
	TenderID    *uuid.UUID       `gorm:"type:uuid;index" json:"tender_id"`
	AwardID     *uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"award_id,omitempty"`
	OrderID     *uuid.UUID       `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Title       string           `gorm:"not null" json:"title"`
	Quantity    int              `gorm:"not null;check:quantity >= 0" json:"quantity"`
	DueDate     *time.Time       `json:"due_date"`
	Status      TaskStatus       `gorm:"not null;default:'TODO';index" json:"status"`
	Progress    int              `gorm:"not null;default:0;check:progress BETWEEN 0 AND 100" json:"progress"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
	Reports     []WorkshopReport `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"reports,omitempty"`
}

func (WorkshopTask) TableName() string {
	return "workshop_tasks"
}

// WorkshopReport is an append-only progress note on a task
type WorkshopReport struct {
	Base
	TaskID     uuid.UUID `gorm:"type:uuid;not null;index" json:"task_id"`
	ReporterID uuid.UUID `gorm:"type:uuid;not null" json:"reporter_id"`
	Note       string    `gorm:"type:text" json:"note"`
	Progress   int       `gorm:"not null;check:progress BETWEEN 0 AND 100" json:"progress"`
}

func (WorkshopReport) TableName() string {
	return "workshop_reports"
}
