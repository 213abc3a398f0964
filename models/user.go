package models

import (
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles a caller identity may carry
const (
	RoleCustomer        = "customer"
	RoleBusinessOwner   = "business_owner"
	RoleDesigner        = "designer"
	RoleWorkshopManager = "workshop_manager"
	RoleOperator        = "operator"
)

// ValidRoles lists every role accepted on a user profile
var ValidRoles = []string{RoleCustomer, RoleBusinessOwner, RoleDesigner, RoleWorkshopManager, RoleOperator}

// User represents a user in the system (customer, shop staff or operator)
type User struct {
	Base
	Auth0ID    string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name       string         `gorm:"not null" json:"name"`
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Role       string         `gorm:"not null;default:'customer'" json:"role"`
	BusinessID *uuid.UUID     `gorm:"type:uuid;index" json:"business_id,omitempty"` // set for shop staff
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsValidRole reports whether role is one of ValidRoles
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}
