package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is stored as a stable string code
type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "INITIATED"
	TransactionSuccess   TransactionStatus = "SUCCESS"
	TransactionFail      TransactionStatus = "FAIL"
)

// MaxExternalRefLength bounds the provider reference in bytes
const MaxExternalRefLength = 120

// PaymentTransaction records one attempted payment against one order stage
type PaymentTransaction struct {
	Base
	StageID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_payment_stage_provider_ref" json:"stage_id"`
	OrderID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"order_id"`
	Amount      decimal.Decimal   `gorm:"type:numeric;not null" json:"amount"`
	Provider    string            `gorm:"not null;uniqueIndex:idx_payment_stage_provider_ref" json:"provider"`
	ExternalRef *string           `gorm:"size:120;uniqueIndex:idx_payment_stage_provider_ref" json:"external_ref"`
	Status      TransactionStatus `gorm:"not null;default:'INITIATED'" json:"status"`
	FinalizedAt *time.Time        `json:"finalized_at,omitempty"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
