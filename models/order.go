package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is stored as a stable string code
type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderDraft:      {OrderPending, OrderCancelled},
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderInProgress, OrderCancelled},
	OrderInProgress: {OrderCompleted, OrderCancelled},
	OrderCompleted:  {OrderReturned},
}

// CanTransitionTo reports whether the order status DAG has an edge s -> next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for completed, cancelled and returned
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderReturned
}

// Garment sizes; SizeCustom means free dimensions are given instead
const (
	SizeXS     = "XS"
	SizeS      = "S"
	SizeM      = "M"
	SizeL      = "L"
	SizeXL     = "XL"
	SizeXXL    = "XXL"
	SizeXXXL   = "XXXL"
	SizeCustom = "custom"
)

var GarmentSizes = []string{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL, SizeXXXL, SizeCustom}

// Fabric types
const (
	FabricCotton    = "cotton"
	FabricPolyester = "polyester"
	FabricBlend     = "blend"
	FabricLinen     = "linen"
	FabricFleece    = "fleece"
	FabricJersey    = "jersey"
)

var FabricTypes = []string{FabricCotton, FabricPolyester, FabricBlend, FabricLinen, FabricFleece, FabricJersey}

// Section orientations
const (
	OrientationInner = "inner"
	OrientationOuter = "outer"
)

var Orientations = []string{OrientationInner, OrientationOuter}

// Order represents a customer's request for printed garments
type Order struct {
	Base
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	BusinessID    *uuid.UUID      `gorm:"type:uuid;index" json:"business_id"` // nullable until confirmed
	Status        OrderStatus     `gorm:"not null;default:'draft';index" json:"status"`
	Size          string          `json:"size"`
	WidthCM       *int            `json:"width_cm,omitempty"`  // free dimensions when Size is custom
	LengthCM      *int            `json:"length_cm,omitempty"` // free dimensions when Size is custom
	FabricType    string          `json:"fabric_type"`
	Color         string          `json:"color"`
	Material      string          `json:"material"`
	WeightGSM     *int            `json:"weight_gsm,omitempty"`
	DeliveryDate  *time.Time      `json:"delivery_date"`
	CustomerNotes string          `gorm:"type:text" json:"customer_notes"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_price"`
	DepositAmount decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"deposit_amount"`
	Paid          bool            `gorm:"not null;default:false" json:"paid"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	ReturnedAt    *time.Time      `json:"returned_at,omitempty"`
	ReturnReason  string          `json:"return_reason,omitempty"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Sections      []OrderSection  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"sections"`
	Stages        []OrderStage    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"stages"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// ComputeTotal returns Σ section.cost + Σ item.line_total over the loaded children
func (o Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range o.Sections {
		total = total.Add(s.Cost)
	}
	for _, it := range o.Items {
		total = total.Add(it.LineTotal)
	}
	return total
}

// Stage returns the loaded stage of the given type, or nil
func (o *Order) Stage(stageType StageType) *OrderStage {
	for i := range o.Stages {
		if o.Stages[i].StageType == stageType {
			return &o.Stages[i]
		}
	}
	return nil
}

// OrderItem is a priced line on an order; composed artwork (SetDesign) hangs off an item
type OrderItem struct {
	Base
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Title     string          `gorm:"not null" json:"title"`
	Quantity  int             `gorm:"not null;check:quantity >= 0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"line_total"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderSection places one design at one print location on the order.
// Pricing inputs are copied from the catalog when the section is written.
type OrderSection struct {
	Base
	OrderID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_section_unique" json:"order_id"`
	PrintLocationID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_section_unique" json:"print_location_id"`
	DesignID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_section_unique" json:"design_id"`
	OrderItemID         *uuid.UUID      `gorm:"type:uuid;index" json:"order_item_id"`
	Orientation         string          `gorm:"not null;default:'outer'" json:"orientation"`
	Quantity            int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	CustomWidth         *int            `json:"custom_width,omitempty"`
	CustomHeight        *int            `json:"custom_height,omitempty"`
	Instructions        string          `gorm:"type:text" json:"instructions"`
	DesignBasePrice     decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"design_base_price"`
	LocationModifier    decimal.Decimal `gorm:"type:numeric;not null;default:1" json:"location_modifier"`
	Cost                decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"cost"`
	RequiresComposition bool            `gorm:"not null;default:false" json:"requires_composition"`
}

func (OrderSection) TableName() string {
	return "order_sections"
}

// SectionCost is design_base_price × location_price_modifier × quantity, unrounded
func SectionCost(basePrice, modifier decimal.Decimal, quantity int) decimal.Decimal {
	return basePrice.Mul(modifier).Mul(decimal.NewFromInt(int64(quantity)))
}
