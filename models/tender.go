package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenderStatus is stored as a stable string code
type TenderStatus string

const (
	TenderOpen      TenderStatus = "OPEN"
	TenderAwarded   TenderStatus = "AWARDED"
	TenderClosed    TenderStatus = "CLOSED"
	TenderCancelled TenderStatus = "CANCELLED"
)

// BidStatus is stored as a stable string code
type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
)

// Tender is a customer-posted request that print shops bid on
type Tender struct {
	Base
	CustomerID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"customer_id"`
	OrderID     *uuid.UUID   `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Quantity    int          `gorm:"not null;default:1;check:quantity > 0" json:"quantity"`
	Deadline    *time.Time   `json:"deadline"`
	Status      TenderStatus `gorm:"not null;default:'OPEN';index" json:"status"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
	Bids        []Bid        `gorm:"foreignKey:TenderID;constraint:OnDelete:CASCADE" json:"bids,omitempty"`
	Award       *Award       `gorm:"foreignKey:TenderID;constraint:OnDelete:CASCADE" json:"award,omitempty"`
}

func (Tender) TableName() string {
	return "tenders"
}

// AcceptsBidsAt is true while the tender is OPEN and now is strictly before the deadline
func (t Tender) AcceptsBidsAt(now time.Time) bool {
	if t.Status != TenderOpen {
		return false
	}
	return t.Deadline == nil || now.Before(*t.Deadline)
}

// Bid is one business's offer on a tender
type Bid struct {
	Base
	TenderID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bid_tender_business" json:"tender_id"`
	BusinessID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bid_tender_business" json:"business_id"`
	Amount     decimal.Decimal `gorm:"type:numeric;not null" json:"amount"`
	Message    string          `gorm:"type:text" json:"message"`
	Status     BidStatus       `gorm:"not null;default:'PENDING'" json:"status"`
}

func (Bid) TableName() string {
	return "bids"
}

// Award pairs a tender with its winning bid
type Award struct {
	Base
	TenderID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"tender_id"`
	BidID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"bid_id"`
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
}

func (Award) TableName() string {
	return "awards"
}
