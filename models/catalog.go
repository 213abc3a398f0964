package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClothingSection groups print locations by garment area (front, back, sleeves)
type ClothingSection struct {
	Base
	Code string `gorm:"uniqueIndex;not null" json:"code"`
	Name string `gorm:"not null" json:"name"`
}

func (ClothingSection) TableName() string {
	return "clothing_sections"
}

// PrintLocation is a placement on a garment with a price modifier and size limits (mm)
type PrintLocation struct {
	Base
	Code              string          `gorm:"uniqueIndex;not null" json:"code"`
	Name              string          `gorm:"not null" json:"name"`
	ClothingSectionID *uuid.UUID      `gorm:"type:uuid;index" json:"clothing_section_id,omitempty"`
	PriceModifier     decimal.Decimal `gorm:"type:numeric;not null;default:1" json:"price_modifier"`
	MaxWidth          int             `gorm:"not null" json:"max_width"`
	MaxHeight         int             `gorm:"not null" json:"max_height"`
}

func (PrintLocation) TableName() string {
	return "print_locations"
}

// Design is an approved catalog artwork that can be placed on a section
type Design struct {
	Base
	Title               string          `gorm:"not null" json:"title"`
	BasePrice           decimal.Decimal `gorm:"type:numeric;not null" json:"base_price"`
	RequiresComposition bool            `gorm:"not null;default:false" json:"requires_composition"`
	ImageKey            string          `json:"image_key,omitempty"`
	IsActive            bool            `gorm:"not null" json:"is_active"`
}

func (Design) TableName() string {
	return "designs"
}
