package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StageType names a phase of an order. Sequence follows the slice order of StageTypes.
type StageType string

const (
	StageOrderReceived  StageType = "order_received"
	StageDesignApproval StageType = "design_approval"
	StageSetDesign      StageType = "set_design"
	StagePrintingPrep   StageType = "printing_prep"
	StagePrinting       StageType = "printing"
	StageQualityCheck   StageType = "quality_check"
	StagePackaging      StageType = "packaging"
	StageShipping       StageType = "shipping"
	StageDelivered      StageType = "delivered"
)

// StageTypes in workflow order
var StageTypes = []StageType{
	StageOrderReceived,
	StageDesignApproval,
	StageSetDesign,
	StagePrintingPrep,
	StagePrinting,
	StageQualityCheck,
	StagePackaging,
	StageShipping,
	StageDelivered,
}

// Sequence returns the zero-based position of t in StageTypes, or -1
func (t StageType) Sequence() int {
	for i, st := range StageTypes {
		if st == t {
			return i
		}
	}
	return -1
}

func (t StageType) Valid() bool {
	return t.Sequence() >= 0
}

// StageStatus is stored as a stable string code
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageOnHold     StageStatus = "on_hold"
	StageCancelled  StageStatus = "cancelled"
)

var stageTransitions = map[StageStatus][]StageStatus{
	StagePending:    {StageInProgress, StageOnHold, StageCancelled},
	StageInProgress: {StageCompleted, StageOnHold, StageCancelled},
	StageOnHold:     {StageInProgress, StageCancelled},
}

// CanTransitionTo reports whether a stage may move from s to next
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SatisfiesPredecessor is true when a stage no longer blocks its successors
func (s StageStatus) SatisfiesPredecessor() bool {
	return s == StageCompleted || s == StageOnHold
}

// OrderStage is one phase of an order together with its payment bucket
type OrderStage struct {
	Base
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_stage_type" json:"order_id"`
	StageType  StageType       `gorm:"not null;uniqueIndex:idx_order_stage_type" json:"stage_type"`
	Sequence   int             `gorm:"not null" json:"sequence"`
	Status     StageStatus     `gorm:"not null;default:'pending'" json:"status"`
	StartedAt  *time.Time      `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	AssigneeID *uuid.UUID      `gorm:"type:uuid" json:"assignee_id,omitempty"`
	AmountDue  decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"amount_due"`
	AmountPaid decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"amount_paid"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	PaidAt     *time.Time      `json:"paid_at"`
}

func (OrderStage) TableName() string {
	return "order_stages"
}

// IsPaid is derived: amount_paid >= amount_due
func (s OrderStage) IsPaid() bool {
	return s.AmountPaid.GreaterThanOrEqual(s.AmountDue)
}
