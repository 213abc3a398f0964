package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SetDesignStatus is stored as a stable string code
type SetDesignStatus string

const (
	SetWaiting         SetDesignStatus = "waiting"
	SetAssigned        SetDesignStatus = "assigned"
	SetInProgress      SetDesignStatus = "in_progress"
	SetPendingApproval SetDesignStatus = "pending_approval"
	SetRevisionNeeded  SetDesignStatus = "revision_needed"
	SetApproved        SetDesignStatus = "approved"
	SetRejected        SetDesignStatus = "rejected"
	SetCompleted       SetDesignStatus = "completed"
)

var setDesignTransitions = map[SetDesignStatus][]SetDesignStatus{
	SetWaiting:         {SetAssigned},
	SetAssigned:        {SetInProgress},
	SetInProgress:      {SetPendingApproval},
	SetPendingApproval: {SetApproved, SetRevisionNeeded, SetRejected},
	SetApproved:        {SetCompleted},
}

// CanTransitionTo reports whether the set design DAG has an edge s -> next
func (s SetDesignStatus) CanTransitionTo(next SetDesignStatus) bool {
	for _, allowed := range setDesignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true once no further transition is possible on this version
func (s SetDesignStatus) IsTerminal() bool {
	return s == SetCompleted || s == SetRejected || s == SetRevisionNeeded
}

// SetDesign is one version of the composed artwork for an order item
type SetDesign struct {
	Base
	OrderItemID         uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_set_design_item_version" json:"order_item_id"`
	OrderID             uuid.UUID                   `gorm:"type:uuid;not null;index" json:"order_id"`
	ParentID            *uuid.UUID                  `gorm:"type:uuid;index" json:"parent_id"`
	Version             int                         `gorm:"not null;uniqueIndex:idx_set_design_item_version" json:"version"`
	DesignerID          *uuid.UUID                  `gorm:"type:uuid;index" json:"designer_id"`
	AssigneeID          *uuid.UUID                  `gorm:"type:uuid" json:"assignee_id"`
	ReviewerID          *uuid.UUID                  `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	FileKey             string                      `json:"file_key"`
	PreviewKey          string                      `json:"preview_key"`
	FileURL             string                      `gorm:"-" json:"file_url,omitempty"`    // computed, presigned
	PreviewURL          string                      `gorm:"-" json:"preview_url,omitempty"` // computed, presigned
	SourceFiles         datatypes.JSONSlice[string] `json:"source_files"`
	Status              SetDesignStatus             `gorm:"not null;default:'waiting';index" json:"status"`
	Price               decimal.Decimal             `gorm:"type:numeric;not null;default:0" json:"price"`
	Paid                bool                        `gorm:"not null;default:false" json:"paid"`
	Complexity          int                         `gorm:"not null;check:complexity BETWEEN 1 AND 5" json:"complexity"`
	EstimatedCompletion *time.Time                  `json:"estimated_completion"`
	ActualCompletion    *time.Time                  `json:"actual_completion"`
	RevisionNotes       string                      `gorm:"type:text" json:"revision_notes"`
}

func (SetDesign) TableName() string {
	return "set_designs"
}
