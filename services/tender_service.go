package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TenderService owns tenders, their bids and their award
type TenderService struct {
	rt        *Runtime
	workshops *WorkshopService
}

func NewTenderService(rt *Runtime, workshops *WorkshopService) *TenderService {
	return &TenderService{rt: rt, workshops: workshops}
}

// OpenTenderParams describes a customer's call for bids
type OpenTenderParams struct {
	CustomerID  uuid.UUID
	OrderID     *uuid.UUID
	Title       string
	Description string
	Quantity    int
	Deadline    *time.Time
}

// OpenTender posts a tender in OPEN
func (s *TenderService) OpenTender(ctx context.Context, actor Actor, p OpenTenderParams) (*models.Tender, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, validationFailed("tender title is required")
	}
	if p.CustomerID == uuid.Nil {
		return nil, validationFailed("customer is required")
	}
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	if p.Quantity < 0 {
		return nil, validationFailed("tender quantity must be positive, got %d", p.Quantity)
	}
	var tender models.Tender
	err := s.rt.command(ctx, "tender.open", actor, nil, func(tx *gorm.DB, buf *eventBuffer) error {
		if p.Deadline != nil && !p.Deadline.After(buf.now) {
			return validationFailed("tender deadline must be in the future")
		}
		if p.OrderID != nil {
			if err := tx.First(&models.Order{}, "id = ?", *p.OrderID).Error; err != nil {
				return mapDBError(err, "order", CodeConflict)
			}
		}
		tender = models.Tender{
			CustomerID:  p.CustomerID,
			OrderID:     p.OrderID,
			Title:       title,
			Description: strings.TrimSpace(p.Description),
			Quantity:    p.Quantity,
			Deadline:    p.Deadline,
			Status:      models.TenderOpen,
		}
		if err := tx.Omit("Bids", "Award").Create(&tender).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}
		buf.emit(EventTenderOpened, AggregateTender, tender.ID, "", string(tender.Status), tenderEventData(&tender, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tender, nil
}

// GetTender loads a tender with its bids and award
func (s *TenderService) GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	return loadTender(s.rt.DB.WithContext(ctx), id)
}

// ListOpenTenders returns tenders still accepting bids, soonest deadline first
func (s *TenderService) ListOpenTenders(ctx context.Context) ([]models.Tender, error) {
	now := s.rt.Clock.Now()
	var tenders []models.Tender
	err := s.rt.DB.WithContext(ctx).
		Where("status = ? AND (deadline IS NULL OR deadline > ?)", models.TenderOpen, now).
		Order("deadline asc").
		Find(&tenders).Error
	if err != nil {
		return nil, mapDBError(err, "tender", CodeConflict)
	}
	return tenders, nil
}

// PlaceBid records one offer per business while the tender is open and before its deadline
func (s *TenderService) PlaceBid(ctx context.Context, actor Actor, tenderID, businessID uuid.UUID, amount decimal.Decimal, message string) (*models.Bid, error) {
	if !amount.IsPositive() {
		return nil, validationFailed("bid amount must be positive")
	}
	var bid models.Bid
	err := s.rt.command(ctx, "tender.place_bid", actor, []string{tenderKey(tenderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var tender models.Tender
		if err := tx.First(&tender, "id = ?", tenderID).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}
		if !tender.AcceptsBidsAt(buf.now) {
			return newError(CodeTenderClosed, "tender %s no longer accepts bids", tender.Title)
		}
		if err := tx.First(&models.Business{}, "id = ?", businessID).Error; err != nil {
			return mapDBError(err, "business", CodeConflict)
		}
		var dup int64
		if err := tx.Model(&models.Bid{}).Where("tender_id = ? AND business_id = ?", tenderID, businessID).Count(&dup).Error; err != nil {
			return mapDBError(err, "bid", CodeDuplicateBid)
		}
		if dup > 0 {
			return newError(CodeDuplicateBid, "business already bid on this tender")
		}
		bid = models.Bid{
			TenderID:   tenderID,
			BusinessID: businessID,
			Amount:     amount,
			Message:    strings.TrimSpace(message),
			Status:     models.BidPending,
		}
		if err := tx.Create(&bid).Error; err != nil {
			return mapDBError(err, "bid", CodeDuplicateBid)
		}
		buf.emit(EventBidPlaced, AggregateTender, tender.ID, "", string(bid.Status), tenderEventData(&tender, map[string]interface{}{
			"bid_id":      bid.ID.String(),
			"business_id": businessID.String(),
			"amount":      amount.String(),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// AcceptBid awards the tender to one bid and turns the award into a workshop
// task. The task's capacity reservation is part of the same transaction, so a
// capacity failure leaves the tender and every bid untouched.
func (s *TenderService) AcceptBid(ctx context.Context, actor Actor, tenderID, bidID uuid.UUID, workshopID *uuid.UUID) (*models.Tender, error) {
	err := s.rt.command(ctx, "tender.accept_bid", actor, []string{tenderKey(tenderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var tender models.Tender
		if err := tx.First(&tender, "id = ?", tenderID).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}
		if tender.Status != models.TenderOpen {
			return illegalTransition("tender", tender.Status, models.TenderAwarded)
		}
		var bid models.Bid
		if err := tx.First(&bid, "id = ? AND tender_id = ?", bidID, tenderID).Error; err != nil {
			return mapDBError(err, "bid", CodeConflict)
		}
		if bid.Status != models.BidPending {
			return illegalTransition("bid", bid.Status, models.BidAccepted)
		}

		if err := tx.Model(&models.Bid{}).Where("id = ?", bid.ID).Update("status", models.BidAccepted).Error; err != nil {
			return mapDBError(err, "bid", CodeConflict)
		}
		if err := tx.Model(&models.Bid{}).Where("tender_id = ? AND id <> ?", tenderID, bid.ID).
			Update("status", models.BidRejected).Error; err != nil {
			return mapDBError(err, "bid", CodeConflict)
		}
		award := models.Award{TenderID: tender.ID, BidID: bid.ID, AwardedAt: buf.now}
		if err := tx.Create(&award).Error; err != nil {
			return mapDBError(err, "award", CodeConflict)
		}
		from := tender.Status
		tender.Status = models.TenderAwarded
		if err := tx.Model(&tender).Update("status", tender.Status).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}

		target, err := s.workshops.resolveBusinessWorkshop(tx, bid.BusinessID, workshopID)
		if err != nil {
			return err
		}
		task, err := s.workshops.createTaskTx(tx, buf, awardTaskParams(&tender, &award, target))
		if err != nil {
			return err
		}

		buf.emit(EventBidAccepted, AggregateTender, tender.ID, string(from), string(tender.Status), tenderEventData(&tender, map[string]interface{}{
			"bid_id":      bid.ID.String(),
			"award_id":    award.ID.String(),
			"business_id": bid.BusinessID.String(),
			"workshop_id": target.String(),
			"task_id":     task.ID.String(),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTender(ctx, tenderID)
}

// EnsureAwardTask creates the workshop task of an award if it does not exist yet
func (s *TenderService) EnsureAwardTask(ctx context.Context, actor Actor, tenderID uuid.UUID, workshopID *uuid.UUID) (*models.WorkshopTask, error) {
	var task *models.WorkshopTask
	err := s.rt.command(ctx, "tender.ensure_award_task", actor, []string{tenderKey(tenderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		tender, err := loadTender(tx, tenderID)
		if err != nil {
			return err
		}
		if tender.Award == nil {
			return preconditionNotMet("tender %s has no award", tender.Title)
		}
		var existing []models.WorkshopTask
		if err := tx.Where("award_id = ?", tender.Award.ID).Limit(1).Find(&existing).Error; err != nil {
			return mapDBError(err, "workshop task", CodeConflict)
		}
		if len(existing) > 0 {
			task = &existing[0]
			return nil
		}
		if tender.Status != models.TenderAwarded {
			return preconditionNotMet("tender is %s", tender.Status)
		}
		var bid models.Bid
		if err := tx.First(&bid, "id = ?", tender.Award.BidID).Error; err != nil {
			return mapDBError(err, "bid", CodeConflict)
		}
		target, err := s.workshops.resolveBusinessWorkshop(tx, bid.BusinessID, workshopID)
		if err != nil {
			return err
		}
		task, err = s.workshops.createTaskTx(tx, buf, awardTaskParams(tender, tender.Award, target))
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CloseTender stops bidding; pending bids stay pending
func (s *TenderService) CloseTender(ctx context.Context, actor Actor, tenderID uuid.UUID) (*models.Tender, error) {
	var tender models.Tender
	err := s.rt.command(ctx, "tender.close", actor, []string{tenderKey(tenderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&tender, "id = ?", tenderID).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}
		return closeTenderTx(tx, buf, &tender)
	})
	if err != nil {
		return nil, err
	}
	return &tender, nil
}

func closeTenderTx(tx *gorm.DB, buf *eventBuffer, tender *models.Tender) error {
	if tender.Status != models.TenderOpen {
		return illegalTransition("tender", tender.Status, models.TenderClosed)
	}
	from := tender.Status
	tender.Status = models.TenderClosed
	tender.ClosedAt = timePtr(buf.now)
	if err := tx.Model(tender).Select("status", "closed_at").Updates(tender).Error; err != nil {
		return mapDBError(err, "tender", CodeConflict)
	}
	buf.emit(EventTenderClosed, AggregateTender, tender.ID, string(from), string(tender.Status), tenderEventData(tender, nil))
	return nil
}

// CloseExpired closes every open tender whose deadline has passed and returns how many
func (s *TenderService) CloseExpired(ctx context.Context, actor Actor) (int, error) {
	var ids []uuid.UUID
	err := s.rt.DB.WithContext(ctx).Model(&models.Tender{}).
		Where("status = ? AND deadline IS NOT NULL AND deadline <= ?", models.TenderOpen, s.rt.Clock.Now()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, mapDBError(err, "tender", CodeConflict)
	}
	closed := 0
	for _, id := range ids {
		_, err := s.CloseTender(ctx, actor, id)
		switch CodeOf(err) {
		case "":
			closed++
		case CodeIllegalTransition:
			// awarded or cancelled since the scan
		default:
			return closed, err
		}
	}
	return closed, nil
}

// CancelTender cancels an open or awarded tender. An awarded tender can only be
// cancelled while its task has not started; that task is cancelled with it.
func (s *TenderService) CancelTender(ctx context.Context, actor Actor, tenderID uuid.UUID) (*models.Tender, error) {
	var tender *models.Tender
	err := s.rt.command(ctx, "tender.cancel", actor, []string{tenderKey(tenderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var err error
		if tender, err = loadTender(tx, tenderID); err != nil {
			return err
		}
		if tender.Status != models.TenderOpen && tender.Status != models.TenderAwarded {
			return illegalTransition("tender", tender.Status, models.TenderCancelled)
		}
		if tender.Award != nil {
			var tasks []models.WorkshopTask
			if err := tx.Where("award_id = ?", tender.Award.ID).Find(&tasks).Error; err != nil {
				return mapDBError(err, "workshop task", CodeConflict)
			}
			for i := range tasks {
				t := &tasks[i]
				if t.Status == models.TaskCancelled {
					continue
				}
				if t.Status != models.TaskTodo || t.Progress > 0 {
					return preconditionNotMet("awarded task %s has already started", t.Title)
				}
				if err := s.workshops.cancelTaskTx(tx, buf, t); err != nil {
					return err
				}
			}
		}
		from := tender.Status
		tender.Status = models.TenderCancelled
		tender.ClosedAt = timePtr(buf.now)
		if err := tx.Model(tender).Select("status", "closed_at").Updates(tender).Error; err != nil {
			return mapDBError(err, "tender", CodeConflict)
		}
		buf.emit(EventTenderCancelled, AggregateTender, tender.ID, string(from), string(tender.Status), tenderEventData(tender, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tender, nil
}

func loadTender(tx *gorm.DB, id uuid.UUID) (*models.Tender, error) {
	var tender models.Tender
	err := tx.Preload("Bids", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Award").
		First(&tender, "id = ?", id).Error
	if err != nil {
		return nil, mapDBError(err, "tender", CodeConflict)
	}
	return &tender, nil
}

func awardTaskParams(tender *models.Tender, award *models.Award, workshopID uuid.UUID) CreateTaskParams {
	tenderID, awardID := tender.ID, award.ID
	return CreateTaskParams{
		WorkshopID: workshopID,
		Quantity:   tender.Quantity,
		Title:      tender.Title,
		DueDate:    tender.Deadline,
		TenderID:   &tenderID,
		AwardID:    &awardID,
		OrderID:    tender.OrderID,
	}
}

func tenderEventData(tender *models.Tender, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"tender_id":   tender.ID.String(),
		"customer_id": tender.CustomerID.String(),
		"order_id":    uuidString(tender.OrderID),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
