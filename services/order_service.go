package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService owns the Order aggregate: the order, its items, sections and stages
type OrderService struct {
	rt *Runtime
}

func NewOrderService(rt *Runtime) *OrderService {
	return &OrderService{rt: rt}
}

// CreateOrderParams carries the garment parameters of a new order
type CreateOrderParams struct {
	CustomerID    uuid.UUID
	Size          string
	WidthCM       *int
	LengthCM      *int
	FabricType    string
	Color         string
	Material      string
	WeightGSM     *int
	DeliveryDate  *time.Time
	CustomerNotes string
	DepositAmount decimal.Decimal
}

func (p CreateOrderParams) validate() error {
	if p.CustomerID == uuid.Nil {
		return validationFailed("customer is required")
	}
	if !contains(models.GarmentSizes, p.Size) {
		return validationFailed("unknown garment size %q", p.Size)
	}
	if p.Size == models.SizeCustom {
		if p.WidthCM == nil || p.LengthCM == nil || *p.WidthCM <= 0 || *p.LengthCM <= 0 {
			return validationFailed("custom size requires positive width and length")
		}
	}
	if p.FabricType != "" && !contains(models.FabricTypes, p.FabricType) {
		return validationFailed("unknown fabric type %q", p.FabricType)
	}
	if p.WeightGSM != nil && *p.WeightGSM <= 0 {
		return validationFailed("fabric weight must be positive")
	}
	if p.DepositAmount.IsNegative() {
		return validationFailed("deposit cannot be negative")
	}
	return nil
}

// CreateOrder creates a draft order with every stage; order_received starts completed
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, p CreateOrderParams) (*models.Order, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var order models.Order
	err := s.rt.command(ctx, "order.create", actor, nil, func(tx *gorm.DB, buf *eventBuffer) error {
		now := buf.now
		order = models.Order{
			CustomerID:    p.CustomerID,
			Status:        models.OrderDraft,
			Size:          p.Size,
			WidthCM:       p.WidthCM,
			LengthCM:      p.LengthCM,
			FabricType:    p.FabricType,
			Color:         strings.TrimSpace(p.Color),
			Material:      strings.TrimSpace(p.Material),
			WeightGSM:     p.WeightGSM,
			DeliveryDate:  p.DeliveryDate,
			CustomerNotes: strings.TrimSpace(p.CustomerNotes),
			TotalPrice:    decimal.Zero,
			DepositAmount: p.DepositAmount,
		}
		if err := tx.Omit("Items", "Sections", "Stages").Create(&order).Error; err != nil {
			return mapDBError(err, "order", CodeConflict)
		}

		stages := make([]models.OrderStage, 0, len(models.StageTypes))
		for _, st := range models.StageTypes {
			stage := models.OrderStage{
				OrderID:    order.ID,
				StageType:  st,
				Sequence:   st.Sequence(),
				Status:     models.StagePending,
				AmountDue:  decimal.Zero,
				AmountPaid: decimal.Zero,
				// nothing is due yet, so every bucket starts settled
				PaidAt: timePtr(now),
			}
			if st == models.StageOrderReceived {
				stage.Status = models.StageCompleted
				stage.StartedAt = timePtr(now)
				stage.FinishedAt = timePtr(now)
			}
			stages = append(stages, stage)
		}
		if err := tx.Create(&stages).Error; err != nil {
			return mapDBError(err, "order stage", CodeConflict)
		}
		order.Stages = stages
		if err := syncOrderPaid(tx, order.ID); err != nil {
			return err
		}
		order.Paid = true

		buf.emit(EventOrderCreated, AggregateOrder, order.ID, "", string(order.Status), orderEventData(&order, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder loads an order with items, sections and stages
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := loadOrder(s.rt.DB.WithContext(ctx), id, true)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// OrderFilter narrows ListOrders
type OrderFilter struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

// ListOrders returns what the actor may see: customers their own orders, shop
// staff the orders bound to their business, operators everything
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, f OrderFilter) ([]models.Order, error) {
	q := s.rt.DB.WithContext(ctx).Model(&models.Order{})
	switch {
	case actor.HasRole(models.RoleOperator):
	case actor.BusinessID != nil:
		q = q.Where("business_id = ? OR customer_id = ?", *actor.BusinessID, actor.UserID)
	default:
		q = q.Where("customer_id = ?", actor.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var orders []models.Order
	if err := q.Order("created_at desc").Limit(f.Limit).Offset(f.Offset).Find(&orders).Error; err != nil {
		return nil, mapDBError(err, "order", CodeConflict)
	}
	return orders, nil
}

// AddItem appends a priced line to a non-terminal order
func (s *OrderService) AddItem(ctx context.Context, actor Actor, orderID uuid.UUID, title string, quantity int, unitPrice decimal.Decimal) (*models.OrderItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationFailed("item title is required")
	}
	if quantity <= 0 {
		return nil, validationFailed("item quantity must be positive, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return nil, validationFailed("unit price cannot be negative")
	}
	var item models.OrderItem
	err := s.rt.command(ctx, "order.add_item", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadEditableOrder(tx, orderID)
		if err != nil {
			return err
		}
		item = models.OrderItem{
			OrderID:   order.ID,
			Title:     title,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			LineTotal: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		}
		if err := tx.Create(&item).Error; err != nil {
			return mapDBError(err, "order item", CodeConflict)
		}
		_, err = recomputeTotal(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveItem deletes an item and its set designs; items still placed by a section stay
func (s *OrderService) RemoveItem(ctx context.Context, actor Actor, orderID, itemID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.remove_item", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadEditableOrder(tx, orderID); err != nil {
			return err
		}
		var item models.OrderItem
		if err := tx.First(&item, "id = ? AND order_id = ?", itemID, orderID).Error; err != nil {
			return mapDBError(err, "order item", CodeConflict)
		}
		var placed int64
		if err := tx.Model(&models.OrderSection{}).Where("order_item_id = ?", itemID).Count(&placed).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if placed > 0 {
			return preconditionNotMet("item %s is still used by %d section(s)", item.Title, placed)
		}
		if err := tx.Where("order_item_id = ?", itemID).Delete(&models.SetDesign{}).Error; err != nil {
			return mapDBError(err, "set design", CodeConflict)
		}
		if err := tx.Delete(&item).Error; err != nil {
			return mapDBError(err, "order item", CodeConflict)
		}
		_, err = recomputeTotal(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

// AddSectionParams places a design on a print location
type AddSectionParams struct {
	OrderID         uuid.UUID
	PrintLocationID uuid.UUID
	DesignID        uuid.UUID
	OrderItemID     *uuid.UUID
	Quantity        int
	Orientation     string
	CustomWidth     *int
	CustomHeight    *int
	Instructions    string
}

// AddSection prices a new placement from the catalog and recomputes the order total
func (s *OrderService) AddSection(ctx context.Context, actor Actor, p AddSectionParams) (*models.OrderSection, error) {
	if p.Quantity <= 0 {
		return nil, validationFailed("section quantity must be positive, got %d", p.Quantity)
	}
	orientation, err := normalizeOrientation(p.Orientation)
	if err != nil {
		return nil, err
	}
	var section models.OrderSection
	err = s.rt.command(ctx, "order.add_section", actor, []string{orderKey(p.OrderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadEditableOrder(tx, p.OrderID)
		if err != nil {
			return err
		}
		var dup int64
		if err := tx.Model(&models.OrderSection{}).
			Where("order_id = ? AND print_location_id = ? AND design_id = ?", p.OrderID, p.PrintLocationID, p.DesignID).
			Count(&dup).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if dup > 0 {
			return newError(CodeDuplicateSection, "design is already placed at this location")
		}
		design, loc, err := loadPricingInputs(tx, p.DesignID, p.PrintLocationID)
		if err != nil {
			return err
		}
		if p.OrderItemID != nil {
			if err := tx.First(&models.OrderItem{}, "id = ? AND order_id = ?", *p.OrderItemID, p.OrderID).Error; err != nil {
				return mapDBError(err, "order item", CodeConflict)
			}
		}
		w, h, err := clampDimensions(p.CustomWidth, p.CustomHeight, loc)
		if err != nil {
			return err
		}

		section = models.OrderSection{
			OrderID:             order.ID,
			PrintLocationID:     loc.ID,
			DesignID:            design.ID,
			OrderItemID:         p.OrderItemID,
			Orientation:         orientation,
			Quantity:            p.Quantity,
			CustomWidth:         w,
			CustomHeight:        h,
			Instructions:        strings.TrimSpace(p.Instructions),
			DesignBasePrice:     design.BasePrice,
			LocationModifier:    loc.PriceModifier,
			Cost:                models.SectionCost(design.BasePrice, loc.PriceModifier, p.Quantity),
			RequiresComposition: design.RequiresComposition,
		}
		if err := tx.Create(&section).Error; err != nil {
			return mapDBError(err, "order section", CodeDuplicateSection)
		}
		if _, err := recomputeTotal(tx, order); err != nil {
			return err
		}
		buf.emit(EventSectionAdded, AggregateOrder, order.ID, "", "", map[string]interface{}{
			"order_id":             order.ID.String(),
			"section_id":           section.ID.String(),
			"order_item_id":        uuidString(section.OrderItemID),
			"requires_composition": section.RequiresComposition,
			"order_status":         string(order.Status),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// UpdateSectionParams holds optional changes to a section; nil fields are kept
type UpdateSectionParams struct {
	Quantity     *int
	Orientation  *string
	CustomWidth  *int
	CustomHeight *int
	Instructions *string
}

// UpdateSection reprices a section from the inputs captured when it was added
func (s *OrderService) UpdateSection(ctx context.Context, actor Actor, orderID, sectionID uuid.UUID, p UpdateSectionParams) (*models.OrderSection, error) {
	var section models.OrderSection
	err := s.rt.command(ctx, "order.update_section", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadEditableOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := tx.First(&section, "id = ? AND order_id = ?", sectionID, orderID).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if p.Quantity != nil {
			if *p.Quantity <= 0 {
				return validationFailed("section quantity must be positive, got %d", *p.Quantity)
			}
			section.Quantity = *p.Quantity
		}
		if p.Orientation != nil {
			o, err := normalizeOrientation(*p.Orientation)
			if err != nil {
				return err
			}
			section.Orientation = o
		}
		if p.Instructions != nil {
			section.Instructions = strings.TrimSpace(*p.Instructions)
		}
		if p.CustomWidth != nil || p.CustomHeight != nil {
			var loc models.PrintLocation
			if err := tx.First(&loc, "id = ?", section.PrintLocationID).Error; err != nil {
				return mapDBError(err, "print location", CodeConflict)
			}
			width, height := section.CustomWidth, section.CustomHeight
			if p.CustomWidth != nil {
				width = p.CustomWidth
			}
			if p.CustomHeight != nil {
				height = p.CustomHeight
			}
			if section.CustomWidth, section.CustomHeight, err = clampDimensions(width, height, &loc); err != nil {
				return err
			}
		}
		section.Cost = models.SectionCost(section.DesignBasePrice, section.LocationModifier, section.Quantity)
		if err := tx.Model(&section).Select("quantity", "orientation", "instructions", "custom_width", "custom_height", "cost").
			Updates(&section).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		_, err = recomputeTotal(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// RemoveSection deletes a placement and recomputes the total. The unpriced item
// opened for the section's composed artwork goes with it, together with its set
// designs, once no other section is placed on it.
func (s *OrderService) RemoveSection(ctx context.Context, actor Actor, orderID, sectionID uuid.UUID) (*models.Order, error) {
	err := s.rt.command(ctx, "order.remove_section", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadEditableOrder(tx, orderID)
		if err != nil {
			return err
		}
		var section models.OrderSection
		if err := tx.First(&section, "id = ? AND order_id = ?", sectionID, orderID).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if err := tx.Delete(&section).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if section.OrderItemID != nil {
			if err := dropOrphanedSectionItem(tx, *section.OrderItemID); err != nil {
				return err
			}
		}
		_, err = recomputeTotal(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// dropOrphanedSectionItem deletes an unpriced section item and its set designs
// when no section is placed on it any more. Priced items were added by hand and stay.
func dropOrphanedSectionItem(tx *gorm.DB, itemID uuid.UUID) error {
	var item models.OrderItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return mapDBError(err, "order item", CodeConflict)
	}
	if !item.UnitPrice.IsZero() {
		return nil
	}
	var placed int64
	if err := tx.Model(&models.OrderSection{}).Where("order_item_id = ?", itemID).Count(&placed).Error; err != nil {
		return mapDBError(err, "order section", CodeConflict)
	}
	if placed > 0 {
		return nil
	}
	if err := tx.Where("order_item_id = ?", itemID).Delete(&models.SetDesign{}).Error; err != nil {
		return mapDBError(err, "set design", CodeConflict)
	}
	return mapDBError(tx.Delete(&item).Error, "order item", CodeConflict)
}

// EnsureSectionItem returns the item a section's composed artwork hangs off,
// creating an unpriced one when the section has none yet
func (s *OrderService) EnsureSectionItem(ctx context.Context, actor Actor, sectionID uuid.UUID) (*models.OrderItem, error) {
	var section models.OrderSection
	if err := s.rt.DB.WithContext(ctx).First(&section, "id = ?", sectionID).Error; err != nil {
		return nil, mapDBError(err, "order section", CodeConflict)
	}
	var item models.OrderItem
	err := s.rt.command(ctx, "order.ensure_section_item", actor, []string{orderKey(section.OrderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&section, "id = ?", sectionID).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if section.OrderItemID != nil {
			return mapDBError(tx.First(&item, "id = ?", *section.OrderItemID).Error, "order item", CodeConflict)
		}
		var design models.Design
		if err := tx.First(&design, "id = ?", section.DesignID).Error; err != nil {
			return mapDBError(err, "design", CodeConflict)
		}
		item = models.OrderItem{
			OrderID:   section.OrderID,
			Title:     design.Title,
			Quantity:  section.Quantity,
			UnitPrice: decimal.Zero,
			LineTotal: decimal.Zero,
		}
		if err := tx.Create(&item).Error; err != nil {
			return mapDBError(err, "order item", CodeConflict)
		}
		return mapDBError(tx.Model(&section).Update("order_item_id", item.ID).Error, "order section", CodeConflict)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Submit moves a draft with at least one section to pending
func (s *OrderService) Submit(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.submit", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, false); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderPending) {
			return illegalTransition("order", order.Status, models.OrderPending)
		}
		var sections int64
		if err := tx.Model(&models.OrderSection{}).Where("order_id = ?", orderID).Count(&sections).Error; err != nil {
			return mapDBError(err, "order section", CodeConflict)
		}
		if sections == 0 {
			return validationFailed("an order needs at least one section before it can be submitted")
		}
		from := order.Status
		order.Status = models.OrderPending
		order.SubmittedAt = timePtr(buf.now)
		if err := saveOrderStatus(tx, order, "submitted_at"); err != nil {
			return err
		}
		buf.emit(EventOrderSubmitted, AggregateOrder, order.ID, string(from), string(order.Status), orderEventData(order, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Confirm binds the order to a business and opens design approval
func (s *OrderService) Confirm(ctx context.Context, actor Actor, orderID uuid.UUID, businessID *uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.confirm", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, true); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderConfirmed) {
			return illegalTransition("order", order.Status, models.OrderConfirmed)
		}
		switch {
		case order.BusinessID == nil && businessID == nil:
			return preconditionNotMet("order must be bound to a business to be confirmed")
		case order.BusinessID != nil && businessID != nil && *order.BusinessID != *businessID:
			return preconditionNotMet("order is already bound to another business")
		case order.BusinessID == nil:
			if err := tx.First(&models.Business{}, "id = ?", *businessID).Error; err != nil {
				return mapDBError(err, "business", CodeConflict)
			}
			order.BusinessID = businessID
		}

		from := order.Status
		order.Status = models.OrderConfirmed
		order.ConfirmedAt = timePtr(buf.now)
		if err := saveOrderStatus(tx, order, "confirmed_at", "business_id"); err != nil {
			return err
		}
		buf.emit(EventOrderConfirmed, AggregateOrder, order.ID, string(from), string(order.Status), orderEventData(order, nil))

		if stage := order.Stage(models.StageDesignApproval); stage != nil && stage.Status == models.StagePending {
			if err := s.moveStage(tx, buf, order, stage, models.StageInProgress, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// AdvanceStage moves one stage along its DAG. A stage may start only once every
// earlier stage is completed or on hold.
func (s *OrderService) AdvanceStage(ctx context.Context, actor Actor, orderID uuid.UUID, stageType models.StageType, target models.StageStatus, assignee *uuid.UUID) (*models.Order, error) {
	if !stageType.Valid() {
		return nil, validationFailed("unknown stage %q", stageType)
	}
	var order *models.Order
	err := s.rt.command(ctx, "order.advance_stage", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, true); err != nil {
			return err
		}
		if order.Status != models.OrderConfirmed && order.Status != models.OrderInProgress {
			return preconditionNotMet("stages can only move on a confirmed or in-progress order, order is %s", order.Status)
		}
		stage := order.Stage(stageType)
		if stage == nil {
			return notFound("order stage")
		}
		return s.moveStage(tx, buf, order, stage, target, assignee)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// moveStage applies one stage transition on an order loaded with its stages
func (s *OrderService) moveStage(tx *gorm.DB, buf *eventBuffer, order *models.Order, stage *models.OrderStage, target models.StageStatus, assignee *uuid.UUID) error {
	if !stage.Status.CanTransitionTo(target) {
		return illegalTransition(fmt.Sprintf("stage %s", stage.StageType), stage.Status, target)
	}
	if target == models.StageInProgress {
		for _, other := range order.Stages {
			if other.Sequence < stage.Sequence && !other.Status.SatisfiesPredecessor() {
				return preconditionNotMet("stage %s cannot start before %s is completed", stage.StageType, other.StageType)
			}
		}
	}

	from := stage.Status
	stage.Status = target
	switch target {
	case models.StageInProgress:
		if stage.StartedAt == nil {
			stage.StartedAt = timePtr(buf.now)
		}
	case models.StageCompleted:
		stage.FinishedAt = timePtr(buf.now)
	}
	if assignee != nil {
		stage.AssigneeID = assignee
	}
	if err := tx.Model(stage).Select("status", "started_at", "finished_at", "assignee_id").Updates(stage).Error; err != nil {
		return mapDBError(err, "order stage", CodeConflict)
	}
	buf.emit(EventStageAdvanced, AggregateOrder, order.ID, string(from), string(target), map[string]interface{}{
		"order_id":   order.ID.String(),
		"stage_id":   stage.ID.String(),
		"stage_type": string(stage.StageType),
	})

	// work on anything past design approval means the order is being produced
	if target == models.StageInProgress &&
		stage.Sequence > models.StageDesignApproval.Sequence() &&
		order.Status == models.OrderConfirmed {
		orderFrom := order.Status
		order.Status = models.OrderInProgress
		if err := saveOrderStatus(tx, order); err != nil {
			return err
		}
		buf.emit(EventOrderStarted, AggregateOrder, order.ID, string(orderFrom), string(order.Status),
			orderEventData(order, map[string]interface{}{"stage_type": string(stage.StageType)}))
	}
	return nil
}

// CompleteSetDesignStage closes the set_design stage and opens printing_prep.
// Stages already past these points are left alone.
func (s *OrderService) CompleteSetDesignStage(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.complete_set_design_stage", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, true); err != nil {
			return err
		}
		if order.Status != models.OrderConfirmed && order.Status != models.OrderInProgress {
			return nil
		}
		setStage := order.Stage(models.StageSetDesign)
		if setStage.Status == models.StagePending || setStage.Status == models.StageOnHold {
			if err := s.moveStage(tx, buf, order, setStage, models.StageInProgress, nil); err != nil {
				return err
			}
		}
		if setStage.Status == models.StageInProgress {
			if err := s.moveStage(tx, buf, order, setStage, models.StageCompleted, nil); err != nil {
				return err
			}
		}
		if prep := order.Stage(models.StagePrintingPrep); prep.Status == models.StagePending {
			return s.moveStage(tx, buf, order, prep, models.StageInProgress, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SetStagePayment sets the amount due on a stage. It never drops below what has
// been paid; paid_at follows the derived is_paid.
func (s *OrderService) SetStagePayment(ctx context.Context, actor Actor, orderID uuid.UUID, stageType models.StageType, amountDue decimal.Decimal, dueDate *time.Time) (*models.OrderStage, error) {
	if !stageType.Valid() {
		return nil, validationFailed("unknown stage %q", stageType)
	}
	if amountDue.IsNegative() {
		return nil, validationFailed("amount due cannot be negative")
	}
	var stage *models.OrderStage
	err := s.rt.command(ctx, "order.set_stage_payment", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return preconditionNotMet("order is %s", order.Status)
		}
		if stage = order.Stage(stageType); stage == nil {
			return notFound("order stage")
		}
		if amountDue.LessThan(stage.AmountPaid) {
			return preconditionNotMet("stage %s already has %s paid", stageType, stage.AmountPaid)
		}
		stage.AmountDue = amountDue
		stage.DueDate = dueDate
		switch {
		case !stage.IsPaid():
			stage.PaidAt = nil
		case stage.PaidAt == nil:
			stage.PaidAt = timePtr(buf.now)
		}
		if err := tx.Model(stage).Select("amount_due", "due_date", "paid_at").Updates(stage).Error; err != nil {
			return mapDBError(err, "order stage", CodeConflict)
		}
		return syncOrderPaid(tx, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// Cancel moves any non-terminal order to cancelled; bound tasks are released downstream
func (s *OrderService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.cancel", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, false); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderCancelled) {
			return illegalTransition("order", order.Status, models.OrderCancelled)
		}
		from := order.Status
		order.Status = models.OrderCancelled
		order.CancelledAt = timePtr(buf.now)
		order.CancelReason = strings.TrimSpace(reason)
		if err := saveOrderStatus(tx, order, "cancelled_at", "cancel_reason"); err != nil {
			return err
		}
		buf.emit(EventOrderCancelled, AggregateOrder, order.ID, string(from), string(order.Status),
			orderEventData(order, map[string]interface{}{"reason": order.CancelReason}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkCompleted completes an in-progress order whose stages are all completed and paid
func (s *OrderService) MarkCompleted(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.complete", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, true); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderCompleted) {
			return illegalTransition("order", order.Status, models.OrderCompleted)
		}
		if reason := unsettledReason(order); reason != "" {
			return preconditionNotMet("%s", reason)
		}
		return s.completeTx(tx, buf, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteIfSettled completes the order when every stage is completed and paid.
// It reports whether the order is completed afterwards and is safe to repeat.
func (s *OrderService) CompleteIfSettled(ctx context.Context, actor Actor, orderID uuid.UUID) (bool, error) {
	completed := false
	err := s.rt.command(ctx, "order.complete_if_settled", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		order, err := loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCompleted {
			completed = true
			return nil
		}
		if !order.Status.CanTransitionTo(models.OrderCompleted) || unsettledReason(order) != "" {
			return nil
		}
		completed = true
		return s.completeTx(tx, buf, order)
	})
	return completed, err
}

func (s *OrderService) completeTx(tx *gorm.DB, buf *eventBuffer, order *models.Order) error {
	from := order.Status
	order.Status = models.OrderCompleted
	order.CompletedAt = timePtr(buf.now)
	order.Paid = true
	if err := saveOrderStatus(tx, order, "completed_at", "paid"); err != nil {
		return err
	}
	buf.emit(EventOrderCompleted, AggregateOrder, order.ID, string(from), string(order.Status), orderEventData(order, map[string]interface{}{
		"total_price": order.TotalPrice.String(),
	}))
	return nil
}

// Return moves a completed order to returned
func (s *OrderService) Return(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.rt.command(ctx, "order.return", actor, []string{orderKey(orderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if order, err = loadOrder(tx, orderID, false); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderReturned) {
			return illegalTransition("order", order.Status, models.OrderReturned)
		}
		from := order.Status
		order.Status = models.OrderReturned
		order.ReturnedAt = timePtr(buf.now)
		order.ReturnReason = strings.TrimSpace(reason)
		if err := saveOrderStatus(tx, order, "returned_at", "return_reason"); err != nil {
			return err
		}
		buf.emit(EventOrderReturned, AggregateOrder, order.ID, string(from), string(order.Status),
			orderEventData(order, map[string]interface{}{"reason": order.ReturnReason}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// unsettledReason explains why an order cannot complete, or returns ""
func unsettledReason(order *models.Order) string {
	if len(order.Stages) == 0 {
		return "order has no stages"
	}
	for _, st := range order.Stages {
		if st.Status != models.StageCompleted {
			return fmt.Sprintf("stage %s is %s", st.StageType, st.Status)
		}
		if !st.IsPaid() {
			return fmt.Sprintf("stage %s has %s of %s paid", st.StageType, st.AmountPaid, st.AmountDue)
		}
	}
	return ""
}

func loadOrder(tx *gorm.DB, id uuid.UUID, withChildren bool) (*models.Order, error) {
	q := tx
	if withChildren {
		q = q.Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence asc") }).
			Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") })
	}
	var order models.Order
	if err := q.First(&order, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "order", CodeConflict)
	}
	return &order, nil
}

// loadEditableOrder loads an order whose sections and items may still change
func loadEditableOrder(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	order, err := loadOrder(tx, id, false)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, preconditionNotMet("order is %s and can no longer be edited", order.Status)
	}
	return order, nil
}

// recomputeTotal rewrites total_price from the persisted sections and items
func recomputeTotal(tx *gorm.DB, order *models.Order) (decimal.Decimal, error) {
	var sections []models.OrderSection
	if err := tx.Select("cost").Where("order_id = ?", order.ID).Find(&sections).Error; err != nil {
		return decimal.Zero, mapDBError(err, "order section", CodeConflict)
	}
	var items []models.OrderItem
	if err := tx.Select("line_total").Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return decimal.Zero, mapDBError(err, "order item", CodeConflict)
	}
	total := models.Order{Sections: sections, Items: items}.ComputeTotal()
	order.TotalPrice = total
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("total_price", total).Error; err != nil {
		return decimal.Zero, mapDBError(err, "order", CodeConflict)
	}
	return total, nil
}

// syncOrderPaid keeps the order's paid flag equal to "every stage is paid"
func syncOrderPaid(tx *gorm.DB, orderID uuid.UUID) error {
	var stages []models.OrderStage
	if err := tx.Where("order_id = ?", orderID).Find(&stages).Error; err != nil {
		return mapDBError(err, "order stage", CodeConflict)
	}
	paid := len(stages) > 0
	for _, st := range stages {
		if !st.IsPaid() {
			paid = false
			break
		}
	}
	return mapDBError(tx.Model(&models.Order{}).Where("id = ?", orderID).Update("paid", paid).Error, "order", CodeConflict)
}

func saveOrderStatus(tx *gorm.DB, order *models.Order, extra ...string) error {
	cols := append([]string{"status"}, extra...)
	if err := tx.Model(order).Select(cols).Updates(order).Error; err != nil {
		return mapDBError(err, "order", CodeConflict)
	}
	return nil
}

func orderEventData(order *models.Order, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"order_id":    order.ID.String(),
		"customer_id": order.CustomerID.String(),
		"business_id": uuidString(order.BusinessID),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func normalizeOrientation(o string) (string, error) {
	o = strings.ToLower(strings.TrimSpace(o))
	switch o {
	case "":
		return models.OrientationOuter, nil
	case "outside":
		return models.OrientationOuter, nil
	case "inside":
		return models.OrientationInner, nil
	}
	if !contains(models.Orientations, o) {
		return "", validationFailed("unknown orientation %q", o)
	}
	return o, nil
}

// clampDimensions validates optional custom dimensions and caps them at the location's max
func clampDimensions(width, height *int, loc *models.PrintLocation) (*int, *int, error) {
	clamp := func(v *int, max int, name string) (*int, error) {
		if v == nil {
			return nil, nil
		}
		if *v <= 0 {
			return nil, validationFailed("custom %s must be positive", name)
		}
		c := *v
		if max > 0 && c > max {
			c = max
		}
		return &c, nil
	}
	w, err := clamp(width, loc.MaxWidth, "width")
	if err != nil {
		return nil, nil, err
	}
	h, err := clamp(height, loc.MaxHeight, "height")
	if err != nil {
		return nil, nil, err
	}
	return w, h, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
