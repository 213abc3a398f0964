package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/gorm"
)

// CreateTaskParams describes a unit of work for a workshop
type CreateTaskParams struct {
	WorkshopID uuid.UUID
	Quantity   int
	Title      string
	DueDate    *time.Time
	TenderID   *uuid.UUID
	AwardID    *uuid.UUID
	OrderID    *uuid.UUID
}

// CreateTask reserves capacity for the task's quantity and records it in TODO
func (s *WorkshopService) CreateTask(ctx context.Context, actor Actor, p CreateTaskParams) (*models.WorkshopTask, error) {
	var task *models.WorkshopTask
	err := s.rt.command(ctx, "task.create", actor, []string{workshopKey(p.WorkshopID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		task, err = s.createTaskTx(tx, buf, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *WorkshopService) createTaskTx(tx *gorm.DB, buf *eventBuffer, p CreateTaskParams) (*models.WorkshopTask, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, validationFailed("task title is required")
	}
	if p.Quantity <= 0 {
		return nil, validationFailed("task quantity must be positive, got %d", p.Quantity)
	}
	if p.OrderID != nil {
		var count int64
		if err := tx.Model(&models.Order{}).Where("id = ?", *p.OrderID).Count(&count).Error; err != nil {
			return nil, mapDBError(err, "order", CodeConflict)
		}
		if count == 0 {
			return nil, notFound("order")
		}
	}

	if err := s.ledger.Reserve(tx, p.WorkshopID, p.Quantity); err != nil {
		return nil, err
	}

	task := models.WorkshopTask{
		WorkshopID: p.WorkshopID,
		TenderID:   p.TenderID,
		AwardID:    p.AwardID,
		OrderID:    p.OrderID,
		Title:      title,
		Quantity:   p.Quantity,
		DueDate:    p.DueDate,
		Status:     models.TaskTodo,
	}
	if err := tx.Create(&task).Error; err != nil {
		return nil, mapDBError(err, "workshop task", CodeConflict)
	}

	buf.emit(EventTaskAssigned, AggregateTask, task.ID, "", string(task.Status), map[string]interface{}{
		"workshop_id": task.WorkshopID.String(),
		"quantity":    task.Quantity,
		"tender_id":   uuidString(task.TenderID),
		"award_id":    uuidString(task.AwardID),
		"order_id":    uuidString(task.OrderID),
	})
	return &task, nil
}

// GetTask loads a task with its reports
func (s *WorkshopService) GetTask(ctx context.Context, id uuid.UUID) (*models.WorkshopTask, error) {
	var task models.WorkshopTask
	err := s.rt.DB.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		First(&task, "id = ?", id).Error
	if err != nil {
		return nil, mapDBError(err, "workshop task", CodeConflict)
	}
	return &task, nil
}

// ListTasks returns the tasks of a workshop, newest first
func (s *WorkshopService) ListTasks(ctx context.Context, workshopID uuid.UUID, includeTerminal bool) ([]models.WorkshopTask, error) {
	q := s.rt.DB.WithContext(ctx).Where("workshop_id = ?", workshopID)
	if !includeTerminal {
		q = q.Where("status NOT IN ?", []models.TaskStatus{models.TaskDone, models.TaskCancelled})
	}
	var tasks []models.WorkshopTask
	if err := q.Order("created_at desc").Find(&tasks).Error; err != nil {
		return nil, mapDBError(err, "workshop task", CodeConflict)
	}
	return tasks, nil
}

// ResizeTask reserves or releases the difference between the new and old quantity.
// Resizing to zero completes the task.
func (s *WorkshopService) ResizeTask(ctx context.Context, actor Actor, id uuid.UUID, quantity int) (*models.WorkshopTask, error) {
	if quantity < 0 {
		return nil, validationFailed("task quantity cannot be negative")
	}
	var task models.WorkshopTask
	err := s.rt.command(ctx, "task.resize", actor, []string{taskKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		if task.Status.IsTerminal() {
			return illegalTransition("task", task.Status, "resized")
		}
		old := task.Quantity
		switch {
		case quantity == old:
			return nil
		case quantity > old:
			if err := s.ledger.Reserve(tx, task.WorkshopID, quantity-old); err != nil {
				return err
			}
		default:
			if err := s.ledger.Release(tx, task.WorkshopID, old-quantity); err != nil {
				return err
			}
		}
		task.Quantity = quantity
		if err := tx.Model(&task).Update("quantity", quantity).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		if quantity == 0 {
			// capacity already released above
			return s.markDone(tx, buf, &task, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ReportProgress appends a report; task progress is the maximum reported value
// and reaching 100 completes the task
func (s *WorkshopService) ReportProgress(ctx context.Context, actor Actor, id uuid.UUID, reporterID uuid.UUID, progress int, note string) (*models.WorkshopTask, error) {
	if progress < 0 || progress > 100 {
		return nil, validationFailed("progress must be between 0 and 100, got %d", progress)
	}
	var task models.WorkshopTask
	err := s.rt.command(ctx, "task.report_progress", actor, []string{taskKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		if task.Status.IsTerminal() {
			return illegalTransition("task", task.Status, "reported")
		}

		report := models.WorkshopReport{
			TaskID:     task.ID,
			ReporterID: reporterID,
			Note:       strings.TrimSpace(note),
			Progress:   progress,
		}
		if err := tx.Create(&report).Error; err != nil {
			return mapDBError(err, "workshop report", CodeConflict)
		}

		updates := map[string]interface{}{}
		if progress > task.Progress {
			task.Progress = progress
			updates["progress"] = progress
		}
		if task.Status == models.TaskTodo && task.Progress > 0 && task.Progress < 100 {
			task.Status = models.TaskInProgress
			updates["status"] = task.Status
		}
		if len(updates) > 0 {
			if err := tx.Model(&task).Updates(updates).Error; err != nil {
				return mapDBError(err, "workshop task", CodeConflict)
			}
		}
		if task.Progress >= 100 {
			return s.markDone(tx, buf, &task, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CompleteTask moves TODO/IN_PROGRESS to DONE and releases the task's quantity
func (s *WorkshopService) CompleteTask(ctx context.Context, actor Actor, id uuid.UUID) (*models.WorkshopTask, error) {
	var task models.WorkshopTask
	err := s.rt.command(ctx, "task.complete", actor, []string{taskKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		if task.Status.IsTerminal() {
			return illegalTransition("task", task.Status, models.TaskDone)
		}
		return s.markDone(tx, buf, &task, true)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// markDone flips a non-terminal task to DONE, optionally releasing its quantity
func (s *WorkshopService) markDone(tx *gorm.DB, buf *eventBuffer, task *models.WorkshopTask, release bool) error {
	from := task.Status
	if release {
		if err := s.ledger.Release(tx, task.WorkshopID, task.Quantity); err != nil {
			return err
		}
	}
	task.Status = models.TaskDone
	task.CompletedAt = timePtr(buf.now)
	if err := tx.Model(task).Updates(map[string]interface{}{
		"status":       task.Status,
		"completed_at": task.CompletedAt,
	}).Error; err != nil {
		return mapDBError(err, "workshop task", CodeConflict)
	}
	buf.emit(EventTaskCompleted, AggregateTask, task.ID, string(from), string(task.Status), map[string]interface{}{
		"workshop_id": task.WorkshopID.String(),
		"progress":    task.Progress,
		"tender_id":   uuidString(task.TenderID),
		"award_id":    uuidString(task.AwardID),
		"order_id":    uuidString(task.OrderID),
	})
	return nil
}

// CancelTask moves a non-terminal task to CANCELLED and releases its quantity.
// Cancelling a cancelled task is a no-op.
func (s *WorkshopService) CancelTask(ctx context.Context, actor Actor, id uuid.UUID) (*models.WorkshopTask, error) {
	var task models.WorkshopTask
	err := s.rt.command(ctx, "task.cancel", actor, []string{taskKey(id)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		return s.cancelTaskTx(tx, buf, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *WorkshopService) cancelTaskTx(tx *gorm.DB, buf *eventBuffer, task *models.WorkshopTask) error {
	switch task.Status {
	case models.TaskCancelled:
		return nil
	case models.TaskDone:
		return illegalTransition("task", task.Status, models.TaskCancelled)
	}
	from := task.Status
	if err := s.ledger.Release(tx, task.WorkshopID, task.Quantity); err != nil {
		return err
	}
	task.Status = models.TaskCancelled
	task.CancelledAt = timePtr(buf.now)
	if err := tx.Model(task).Updates(map[string]interface{}{
		"status":       task.Status,
		"cancelled_at": task.CancelledAt,
	}).Error; err != nil {
		return mapDBError(err, "workshop task", CodeConflict)
	}
	buf.emit(EventTaskCancelled, AggregateTask, task.ID, string(from), string(task.Status), map[string]interface{}{
		"workshop_id": task.WorkshopID.String(),
		"quantity":    task.Quantity,
		"order_id":    uuidString(task.OrderID),
	})
	return nil
}

// CancelOrderTasks cancels every open task bound to an order
func (s *WorkshopService) CancelOrderTasks(ctx context.Context, actor Actor, orderID uuid.UUID) (int, error) {
	var ids []uuid.UUID
	err := s.rt.DB.WithContext(ctx).Model(&models.WorkshopTask{}).
		Where("order_id = ? AND status NOT IN ?", orderID, []models.TaskStatus{models.TaskDone, models.TaskCancelled}).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, mapDBError(err, "workshop task", CodeConflict)
	}
	cancelled := 0
	for _, id := range ids {
		if _, err := s.CancelTask(ctx, actor, id); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
