package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/gorm"
)

// Coordinator rule names, recorded with every failure
const (
	RuleCancelOrderTasks      = "cancel_order_tasks"
	RuleOpenSectionSetDesign  = "open_section_set_design"
	RuleAdvanceSetDesignStage = "advance_set_design_stage"
	RuleCompleteSettledOrder  = "complete_settled_order"
	RuleCreateAwardTask       = "create_award_task"
)

// Coordinator reacts to committed events with follow-up commands on sibling
// aggregates. Events are processed one at a time in arrival order; events raised
// by its own follow-ups are queued behind the current one. Every rule is
// idempotent, so a replayed event only does what is still missing.
type Coordinator struct {
	db        *gorm.DB
	orders    *OrderService
	sets      *SetDesignService
	workshops *WorkshopService
	tenders   *TenderService
	clock     Clock
	log       *logger.Logger

	mu       sync.Mutex
	queue    []Event
	draining bool
}

func NewCoordinator(rt *Runtime, orders *OrderService, sets *SetDesignService, workshops *WorkshopService, tenders *TenderService) *Coordinator {
	return &Coordinator{
		db:        rt.DB,
		orders:    orders,
		sets:      sets,
		workshops: workshops,
		tenders:   tenders,
		clock:     rt.Clock,
		log:       rt.Log.With("service", "Coordinator"),
	}
}

// HandleEvent enqueues evt and drains the queue unless a drain is already running
func (c *Coordinator) HandleEvent(ctx context.Context, evt Event) {
	c.mu.Lock()
	c.queue = append(c.queue, evt)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		for rule, err := range c.apply(ctx, next) {
			c.recordFailure(ctx, next, rule, err)
		}

		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// apply runs every rule interested in evt and returns the failures by rule
func (c *Coordinator) apply(ctx context.Context, evt Event) map[string]error {
	failures := map[string]error{}
	run := func(rule string, fn func() error) {
		if err := fn(); err != nil {
			failures[rule] = err
		}
	}

	switch evt.Type {
	case EventOrderCancelled:
		run(RuleCancelOrderTasks, func() error { return c.cancelOrderTasks(ctx, evt) })
	case EventSectionAdded:
		run(RuleOpenSectionSetDesign, func() error { return c.openSectionSetDesign(ctx, evt) })
	case EventOrderConfirmed:
		run(RuleOpenSectionSetDesign, func() error { return c.openOrderSetDesigns(ctx, evt) })
	case EventSetDesignCompleted:
		run(RuleAdvanceSetDesignStage, func() error { return c.advanceSetDesignStage(ctx, evt) })
	case EventStagePaid:
		run(RuleCompleteSettledOrder, func() error { return c.completeSettledOrder(ctx, evt) })
	case EventStageAdvanced:
		if evt.ToStatus != string(models.StageCompleted) {
			break
		}
		// sets finished while design approval was open are picked up here
		if evt.DataString("stage_type") == string(models.StageDesignApproval) {
			run(RuleAdvanceSetDesignStage, func() error { return c.advanceSetDesignStage(ctx, evt) })
		}
		run(RuleCompleteSettledOrder, func() error { return c.completeSettledOrder(ctx, evt) })
	case EventBidAccepted:
		run(RuleCreateAwardTask, func() error { return c.createAwardTask(ctx, evt) })
	case EventTaskCompleted:
		// finishing the last task of an award does not complete the order;
		// that still needs every stage completed and paid
		c.log.Info("task completed", "task_id", evt.AggregateID, "award_id", evt.DataString("award_id"))
	}
	return failures
}

func (c *Coordinator) cancelOrderTasks(ctx context.Context, evt Event) error {
	n, err := c.workshops.CancelOrderTasks(ctx, SystemActor, evt.AggregateID)
	if n > 0 {
		c.log.Info("released tasks of cancelled order", "order_id", evt.AggregateID, "tasks", n)
	}
	return err
}

func (c *Coordinator) openSectionSetDesign(ctx context.Context, evt Event) error {
	if evt.Data["requires_composition"] != true {
		return nil
	}
	sectionID, ok := evt.DataUUID("section_id")
	if !ok {
		return fmt.Errorf("event %s carries no section_id", evt.ID)
	}
	var order models.Order
	if err := c.db.WithContext(ctx).Select("id", "status").First(&order, "id = ?", evt.AggregateID).Error; err != nil {
		return mapDBError(err, "order", CodeConflict)
	}
	if order.Status != models.OrderConfirmed && order.Status != models.OrderInProgress {
		return nil
	}
	return c.openForSection(ctx, sectionID)
}

func (c *Coordinator) openOrderSetDesigns(ctx context.Context, evt Event) error {
	var sectionIDs []uuid.UUID
	err := c.db.WithContext(ctx).Model(&models.OrderSection{}).
		Where("order_id = ? AND requires_composition = ?", evt.AggregateID, true).
		Order("created_at asc").
		Pluck("id", &sectionIDs).Error
	if err != nil {
		return mapDBError(err, "order section", CodeConflict)
	}
	var errs []error
	for _, id := range sectionIDs {
		if err := c.openForSection(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) openForSection(ctx context.Context, sectionID uuid.UUID) error {
	item, err := c.orders.EnsureSectionItem(ctx, SystemActor, sectionID)
	if err != nil {
		return err
	}
	set, created, err := c.sets.EnsureOpenForItem(ctx, SystemActor, item.ID)
	if err != nil {
		return err
	}
	if created {
		c.log.Info("opened set design for section", "section_id", sectionID, "set_design_id", set.ID)
	}
	return nil
}

func (c *Coordinator) advanceSetDesignStage(ctx context.Context, evt Event) error {
	orderID, ok := evt.DataUUID("order_id")
	if !ok {
		return fmt.Errorf("event %s carries no order_id", evt.ID)
	}
	done, err := AllSetsCompleted(c.db.WithContext(ctx), orderID)
	if err != nil || !done {
		return err
	}
	_, err = c.orders.CompleteSetDesignStage(ctx, SystemActor, orderID)
	return err
}

func (c *Coordinator) completeSettledOrder(ctx context.Context, evt Event) error {
	orderID, ok := evt.DataUUID("order_id")
	if !ok {
		orderID = evt.AggregateID
	}
	completed, err := c.orders.CompleteIfSettled(ctx, SystemActor, orderID)
	if err == nil && completed && evt.Type == EventStagePaid {
		c.log.Info("order settled", "order_id", orderID, "trigger", evt.ID)
	}
	return err
}

func (c *Coordinator) createAwardTask(ctx context.Context, evt Event) error {
	var workshopID *uuid.UUID
	if id, ok := evt.DataUUID("workshop_id"); ok {
		workshopID = &id
	}
	_, err := c.tenders.EnsureAwardTask(ctx, SystemActor, evt.AggregateID, workshopID)
	return err
}

func (c *Coordinator) recordFailure(ctx context.Context, evt Event, rule string, cause error) {
	c.log.Error("coordinator rule failed",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"rule", rule,
		"error", cause,
	)
	row := models.CoordinatorFailure{
		EventID:   evt.ID,
		EventType: string(evt.Type),
		Rule:      rule,
		Error:     cause.Error(),
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		c.log.Error("failed to record coordinator failure", "event_id", evt.ID, "error", err)
	}
}

// Replay re-runs the rules for a stored event. Open failures for the event are
// marked resolved when every rule succeeds.
func (c *Coordinator) Replay(ctx context.Context, eventID uuid.UUID) error {
	var row models.DomainEvent
	if err := c.db.WithContext(ctx).First(&row, "id = ?", eventID).Error; err != nil {
		return mapDBError(err, "event", CodeConflict)
	}
	evt, err := eventFromModel(row)
	if err != nil {
		return &ServiceError{Code: CodeInternal, Message: "stored event is unreadable", Err: err}
	}

	failures := c.apply(ctx, evt)
	if len(failures) > 0 {
		errs := make([]error, 0, len(failures))
		for rule, err := range failures {
			c.recordFailure(ctx, evt, rule, err)
			errs = append(errs, fmt.Errorf("%s: %w", rule, err))
		}
		return &ServiceError{Code: CodePreconditionNotMet, Message: "replay failed", Err: errors.Join(errs...)}
	}

	now := c.clock.Now()
	err = c.db.WithContext(ctx).Model(&models.CoordinatorFailure{}).
		Where("event_id = ? AND resolved_at IS NULL", eventID).
		Update("resolved_at", now).Error
	return mapDBError(err, "coordinator failure", CodeConflict)
}

// ListFailures returns recorded rule failures, newest first
func (c *Coordinator) ListFailures(ctx context.Context, includeResolved bool, limit int) ([]models.CoordinatorFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	q := c.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if !includeResolved {
		q = q.Where("resolved_at IS NULL")
	}
	var rows []models.CoordinatorFailure
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "coordinator failure", CodeConflict)
	}
	return rows, nil
}

// Events lists stored domain events for one aggregate, oldest first
func (c *Coordinator) Events(ctx context.Context, aggregateID uuid.UUID) ([]Event, error) {
	var rows []models.DomainEvent
	if err := c.db.WithContext(ctx).Where("aggregate_id = ?", aggregateID).Order("occurred_at asc").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "event", CodeConflict)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		evt, err := eventFromModel(r)
		if err != nil {
			return nil, &ServiceError{Code: CodeInternal, Message: "stored event is unreadable", Err: err}
		}
		events = append(events, evt)
	}
	return events, nil
}
