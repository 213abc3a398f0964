package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the opaque 128-bit identifier and audit timestamps shared by every table
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random id when the caller did not pick one
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// All lists every model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Business{},
		&Workshop{},
		&ClothingSection{},
		&PrintLocation{},
		&Design{},
		&Order{},
		&OrderItem{},
		&OrderSection{},
		&OrderStage{},
		&SetDesign{},
		&WorkshopTask{},
		&WorkshopReport{},
		&Tender{},
		&Bid{},
		&Award{},
		&PaymentTransaction{},
		&DomainEvent{},
		&CoordinatorFailure{},
		&NotificationFailure{},
	}
}
