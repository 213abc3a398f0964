package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SetDesignService owns versioned set designs. Commands on sets of the same
// order item are serialized on the item.
type SetDesignService struct {
	rt    *Runtime
	media ArtworkStore
}

func NewSetDesignService(rt *Runtime, media ArtworkStore) *SetDesignService {
	return &SetDesignService{rt: rt, media: media}
}

// OpenSetParams describes the first version of a set design
type OpenSetParams struct {
	OrderItemID         uuid.UUID
	SourceFiles         []string
	Complexity          int
	Price               decimal.Decimal
	EstimatedCompletion *time.Time
}

// OpenSet creates version 1 of an item's set design in waiting
func (s *SetDesignService) OpenSet(ctx context.Context, actor Actor, p OpenSetParams) (*models.SetDesign, error) {
	if p.Complexity == 0 {
		p.Complexity = 1
	}
	if p.Complexity < 1 || p.Complexity > 5 {
		return nil, validationFailed("complexity must be between 1 and 5, got %d", p.Complexity)
	}
	if p.Price.IsNegative() {
		return nil, validationFailed("set design price cannot be negative")
	}
	var set *models.SetDesign
	err := s.rt.command(ctx, "set_design.open", actor, []string{setItemKey(p.OrderItemID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		var existing int64
		if err := tx.Model(&models.SetDesign{}).Where("order_item_id = ?", p.OrderItemID).Count(&existing).Error; err != nil {
			return mapDBError(err, "set design", CodeVersionConflict)
		}
		if existing > 0 {
			return newError(CodeVersionConflict, "order item already has a set design; use a new version")
		}
		var err error
		set, err = s.openTx(tx, buf, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// EnsureOpenForItem returns the latest set design of an item, opening version 1
// when there is none. Repeating it never creates a second set.
func (s *SetDesignService) EnsureOpenForItem(ctx context.Context, actor Actor, itemID uuid.UUID) (*models.SetDesign, bool, error) {
	var set *models.SetDesign
	created := false
	err := s.rt.command(ctx, "set_design.ensure_open", actor, []string{setItemKey(itemID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		latest, err := latestVersion(tx, itemID)
		if err != nil {
			return err
		}
		if latest != nil {
			set = latest
			return nil
		}
		set, err = s.openTx(tx, buf, OpenSetParams{OrderItemID: itemID, Complexity: 1})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return set, created, nil
}

func (s *SetDesignService) openTx(tx *gorm.DB, buf *eventBuffer, p OpenSetParams) (*models.SetDesign, error) {
	var item models.OrderItem
	if err := tx.First(&item, "id = ?", p.OrderItemID).Error; err != nil {
		return nil, mapDBError(err, "order item", CodeConflict)
	}
	var order models.Order
	if err := tx.First(&order, "id = ?", item.OrderID).Error; err != nil {
		return nil, mapDBError(err, "order", CodeConflict)
	}
	if order.Status.IsTerminal() {
		return nil, preconditionNotMet("order is %s", order.Status)
	}

	set := models.SetDesign{
		OrderItemID:         item.ID,
		OrderID:             item.OrderID,
		Version:             1,
		SourceFiles:         datatypes.NewJSONSlice(cleanKeys(p.SourceFiles)),
		Status:              models.SetWaiting,
		Price:               p.Price,
		Complexity:          p.Complexity,
		EstimatedCompletion: p.EstimatedCompletion,
	}
	if err := tx.Create(&set).Error; err != nil {
		return nil, mapDBError(err, "set design version", CodeVersionConflict)
	}
	buf.emit(EventSetDesignOpened, AggregateSetDesign, set.ID, "", string(set.Status), setEventData(&set, nil))
	return &set, nil
}

// GetSet loads a set design with URLs for its files
func (s *SetDesignService) GetSet(ctx context.Context, id uuid.UUID) (*models.SetDesign, error) {
	var set models.SetDesign
	if err := s.rt.DB.WithContext(ctx).First(&set, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "set design", CodeConflict)
	}
	s.attachURLs(ctx, &set)
	return &set, nil
}

// ListSetsForItem returns every version of an item's set design, oldest first
func (s *SetDesignService) ListSetsForItem(ctx context.Context, itemID uuid.UUID) ([]models.SetDesign, error) {
	var sets []models.SetDesign
	if err := s.rt.DB.WithContext(ctx).Where("order_item_id = ?", itemID).Order("version asc").Find(&sets).Error; err != nil {
		return nil, mapDBError(err, "set design", CodeConflict)
	}
	for i := range sets {
		s.attachURLs(ctx, &sets[i])
	}
	return sets, nil
}

func (s *SetDesignService) attachURLs(ctx context.Context, set *models.SetDesign) {
	if s.media == nil {
		return
	}
	var err error
	if set.FileURL, err = s.media.ArtworkURL(ctx, set.FileKey); err != nil {
		s.rt.Log.Warn("artwork url unavailable", "set_design_id", set.ID, "key", set.FileKey, "error", err)
	}
	if set.PreviewURL, err = s.media.ArtworkURL(ctx, set.PreviewKey); err != nil {
		s.rt.Log.Warn("preview url unavailable", "set_design_id", set.ID, "key", set.PreviewKey, "error", err)
	}
}

// Assign gives a waiting set to a designer
func (s *SetDesignService) Assign(ctx context.Context, actor Actor, id, designerID uuid.UUID) (*models.SetDesign, error) {
	if designerID == uuid.Nil {
		return nil, validationFailed("designer is required")
	}
	return s.transition(ctx, actor, "set_design.assign", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetAssigned); err != nil {
			return err
		}
		if err := requireDesigner(tx, designerID); err != nil {
			return err
		}
		set.DesignerID = &designerID
		set.AssigneeID = &designerID
		return s.save(tx, buf, set, models.SetAssigned, EventSetDesignAssigned, nil, "designer_id", "assignee_id")
	})
}

// Begin starts work on an assigned set; a set without a designer cannot start
func (s *SetDesignService) Begin(ctx context.Context, actor Actor, id uuid.UUID) (*models.SetDesign, error) {
	return s.transition(ctx, actor, "set_design.begin", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if set.DesignerID == nil {
			return newError(CodeNotAssigned, "set design v%d has no designer", set.Version)
		}
		if err := expectSetStatus(set, models.SetInProgress); err != nil {
			return err
		}
		return s.save(tx, buf, set, models.SetInProgress, "", nil)
	})
}

// SubmitForReview attaches the composed file and preview and opens the review
func (s *SetDesignService) SubmitForReview(ctx context.Context, actor Actor, id uuid.UUID, fileKey, previewKey string) (*models.SetDesign, error) {
	fileKey = strings.TrimSpace(fileKey)
	if fileKey == "" {
		return nil, validationFailed("a composed file is required for review")
	}
	set, err := s.transition(ctx, actor, "set_design.submit", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetPendingApproval); err != nil {
			return err
		}
		set.FileKey = fileKey
		set.PreviewKey = strings.TrimSpace(previewKey)
		return s.save(tx, buf, set, models.SetPendingApproval, EventSetDesignReviewReady, nil, "file_key", "preview_key")
	})
	if err != nil {
		return nil, err
	}
	s.attachURLs(ctx, set)
	return set, nil
}

// Approve closes the review positively
func (s *SetDesignService) Approve(ctx context.Context, actor Actor, id, reviewerID uuid.UUID) (*models.SetDesign, error) {
	return s.transition(ctx, actor, "set_design.approve", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetApproved); err != nil {
			return err
		}
		set.ReviewerID = nilIfZero(reviewerID)
		return s.save(tx, buf, set, models.SetApproved, EventSetDesignApproved, nil, "reviewer_id")
	})
}

// RequestRevision closes this version as revision_needed; only NewVersion continues the work
func (s *SetDesignService) RequestRevision(ctx context.Context, actor Actor, id, reviewerID uuid.UUID, notes string) (*models.SetDesign, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, validationFailed("revision notes are required")
	}
	return s.transition(ctx, actor, "set_design.request_revision", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetRevisionNeeded); err != nil {
			return err
		}
		set.ReviewerID = nilIfZero(reviewerID)
		set.RevisionNotes = notes
		return s.save(tx, buf, set, models.SetRevisionNeeded, EventSetDesignRevisionRequested,
			map[string]interface{}{"notes": notes}, "reviewer_id", "revision_notes")
	})
}

// Reject closes the review without a follow-up version
func (s *SetDesignService) Reject(ctx context.Context, actor Actor, id, reviewerID uuid.UUID, notes string) (*models.SetDesign, error) {
	return s.transition(ctx, actor, "set_design.reject", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetRejected); err != nil {
			return err
		}
		set.ReviewerID = nilIfZero(reviewerID)
		set.RevisionNotes = strings.TrimSpace(notes)
		return s.save(tx, buf, set, models.SetRejected, EventSetDesignRejected, nil, "reviewer_id", "revision_notes")
	})
}

// Complete finishes an approved set
func (s *SetDesignService) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*models.SetDesign, error) {
	return s.transition(ctx, actor, "set_design.complete", id, func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error {
		if err := expectSetStatus(set, models.SetCompleted); err != nil {
			return err
		}
		set.ActualCompletion = timePtr(buf.now)
		return s.save(tx, buf, set, models.SetCompleted, EventSetDesignCompleted, nil, "actual_completion")
	})
}

// NewVersionParams describes the follow-up version after a revision request
type NewVersionParams struct {
	FileKey     string
	DesignerID  *uuid.UUID
	SourceFiles []string
}

// NewVersion creates version max+1 in in_progress from the latest version, which
// must be revision_needed. The parent keeps its status.
func (s *SetDesignService) NewVersion(ctx context.Context, actor Actor, parentID uuid.UUID, p NewVersionParams) (*models.SetDesign, error) {
	var parent models.SetDesign
	if err := s.rt.DB.WithContext(ctx).First(&parent, "id = ?", parentID).Error; err != nil {
		return nil, mapDBError(err, "set design", CodeConflict)
	}

	var child models.SetDesign
	err := s.rt.command(ctx, "set_design.new_version", actor, []string{setItemKey(parent.OrderItemID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&parent, "id = ?", parentID).Error; err != nil {
			return mapDBError(err, "set design", CodeConflict)
		}
		if parent.Status != models.SetRevisionNeeded {
			return illegalTransition("set design", parent.Status, "new version")
		}
		latest, err := latestVersion(tx, parent.OrderItemID)
		if err != nil {
			return err
		}
		if latest.ID != parent.ID {
			return newError(CodeVersionConflict, "version %d already supersedes version %d", latest.Version, parent.Version)
		}

		designer := parent.DesignerID
		if p.DesignerID != nil {
			if err := requireDesigner(tx, *p.DesignerID); err != nil {
				return err
			}
			designer = p.DesignerID
		}
		if designer == nil {
			return newError(CodeNotAssigned, "new version needs a designer")
		}

		sources := cleanKeys(p.SourceFiles)
		if len(sources) == 0 {
			sources = append(sources, parent.SourceFiles...)
		}
		child = models.SetDesign{
			OrderItemID:         parent.OrderItemID,
			OrderID:             parent.OrderID,
			ParentID:            &parent.ID,
			Version:             latest.Version + 1,
			DesignerID:          designer,
			AssigneeID:          designer,
			FileKey:             strings.TrimSpace(p.FileKey),
			SourceFiles:         datatypes.NewJSONSlice(sources),
			Status:              models.SetInProgress,
			Price:               parent.Price,
			Complexity:          parent.Complexity,
			EstimatedCompletion: parent.EstimatedCompletion,
		}
		if err := s.insertVersion(tx, &child); err != nil {
			return err
		}
		buf.emit(EventSetDesignOpened, AggregateSetDesign, child.ID, "", string(child.Status),
			setEventData(&child, map[string]interface{}{"parent_id": parent.ID.String()}))
		buf.emit(EventSetDesignAssigned, AggregateSetDesign, child.ID, "", string(child.Status), setEventData(&child, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &child, nil
}

// insertVersion maps a lost race on (order_item, version) to VERSION_CONFLICT
func (s *SetDesignService) insertVersion(tx *gorm.DB, set *models.SetDesign) error {
	if err := tx.Create(set).Error; err != nil {
		return mapDBError(err, "set design version", CodeVersionConflict)
	}
	return nil
}

// transition loads a set under its item lock and applies fn
func (s *SetDesignService) transition(ctx context.Context, actor Actor, op string, id uuid.UUID, fn func(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign) error) (*models.SetDesign, error) {
	var set models.SetDesign
	if err := s.rt.DB.WithContext(ctx).Select("id", "order_item_id").First(&set, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "set design", CodeConflict)
	}
	err := s.rt.command(ctx, op, actor, []string{setItemKey(set.OrderItemID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&set, "id = ?", id).Error; err != nil {
			return mapDBError(err, "set design", CodeConflict)
		}
		return fn(tx, buf, &set)
	})
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// save persists the new status plus cols and emits evt when given
func (s *SetDesignService) save(tx *gorm.DB, buf *eventBuffer, set *models.SetDesign, to models.SetDesignStatus, evt EventType, data map[string]interface{}, cols ...string) error {
	from := set.Status
	set.Status = to
	if err := tx.Model(set).Select(append([]string{"status"}, cols...)).Updates(set).Error; err != nil {
		return mapDBError(err, "set design", CodeConflict)
	}
	if evt != "" {
		buf.emit(evt, AggregateSetDesign, set.ID, string(from), string(to), setEventData(set, data))
	}
	return nil
}

func expectSetStatus(set *models.SetDesign, next models.SetDesignStatus) error {
	if !set.Status.CanTransitionTo(next) {
		return illegalTransition("set design", set.Status, next)
	}
	return nil
}

func requireDesigner(tx *gorm.DB, id uuid.UUID) error {
	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		return mapDBError(err, "designer", CodeConflict)
	}
	if user.Role != models.RoleDesigner {
		return validationFailed("user %s is not a designer", user.Name)
	}
	return nil
}

func latestVersion(tx *gorm.DB, itemID uuid.UUID) (*models.SetDesign, error) {
	var sets []models.SetDesign
	if err := tx.Where("order_item_id = ?", itemID).Order("version desc").Limit(1).Find(&sets).Error; err != nil {
		return nil, mapDBError(err, "set design", CodeConflict)
	}
	if len(sets) == 0 {
		return nil, nil
	}
	return &sets[0], nil
}

// AllSetsCompleted reports whether an order has set designs and the latest
// version of every item's set is completed
func AllSetsCompleted(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	var sets []models.SetDesign
	if err := tx.Where("order_id = ?", orderID).Order("version asc").Find(&sets).Error; err != nil {
		return false, mapDBError(err, "set design", CodeConflict)
	}
	if len(sets) == 0 {
		return false, nil
	}
	latest := make(map[uuid.UUID]models.SetDesignStatus)
	for _, s := range sets {
		latest[s.OrderItemID] = s.Status
	}
	for _, st := range latest {
		if st != models.SetCompleted {
			return false, nil
		}
	}
	return true, nil
}

func setEventData(set *models.SetDesign, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"set_design_id": set.ID.String(),
		"order_id":      set.OrderID.String(),
		"order_item_id": set.OrderItemID.String(),
		"version":       set.Version,
		"designer_id":   uuidString(set.DesignerID),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
