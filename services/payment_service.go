package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentService records payment attempts against order stages. It runs under
// the order's lock because it mutates the order's stages.
type PaymentService struct {
	rt *Runtime
}

func NewPaymentService(rt *Runtime) *PaymentService {
	return &PaymentService{rt: rt}
}

// BeginPaymentParams describes one payment attempt
type BeginPaymentParams struct {
	StageID     uuid.UUID
	Amount      decimal.Decimal
	Provider    string
	ExternalRef string
}

// BeginPayment records an INITIATED transaction. With an external reference the
// call is idempotent per (stage, provider, reference).
func (s *PaymentService) BeginPayment(ctx context.Context, actor Actor, p BeginPaymentParams) (*models.PaymentTransaction, error) {
	provider := strings.TrimSpace(p.Provider)
	if provider == "" {
		return nil, validationFailed("payment provider is required")
	}
	if !p.Amount.IsPositive() {
		return nil, validationFailed("payment amount must be positive")
	}
	ref, err := normalizeExternalRef(p.ExternalRef)
	if err != nil {
		return nil, err
	}

	stage, err := s.loadStage(ctx, p.StageID)
	if err != nil {
		return nil, err
	}

	var txn models.PaymentTransaction
	err = s.rt.command(ctx, "payment.begin", actor, []string{orderKey(stage.OrderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if ref != nil {
			var existing []models.PaymentTransaction
			if err := tx.Where("stage_id = ? AND provider = ? AND external_ref = ?", p.StageID, provider, *ref).
				Limit(1).Find(&existing).Error; err != nil {
				return mapDBError(err, "payment transaction", CodeConflict)
			}
			if len(existing) > 0 {
				txn = existing[0]
				return nil
			}
		}

		var order models.Order
		if err := tx.First(&order, "id = ?", stage.OrderID).Error; err != nil {
			return mapDBError(err, "order", CodeConflict)
		}
		if order.Status == models.OrderCancelled || order.Status == models.OrderReturned {
			return preconditionNotMet("order is %s", order.Status)
		}

		txn = models.PaymentTransaction{
			StageID:     stage.ID,
			OrderID:     stage.OrderID,
			Amount:      p.Amount,
			Provider:    provider,
			ExternalRef: ref,
			Status:      models.TransactionInitiated,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return mapDBError(err, "payment transaction", CodeConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FinalizePayment settles an INITIATED transaction. A SUCCESS adds to the
// stage's amount_paid; the first payment that makes the stage paid stamps
// paid_at and emits StagePaid. Repeating a finalize with the same reference
// returns the recorded outcome without touching the stage.
func (s *PaymentService) FinalizePayment(ctx context.Context, actor Actor, txnID uuid.UUID, outcome models.TransactionStatus, externalRef string) (*models.PaymentTransaction, error) {
	if outcome != models.TransactionSuccess && outcome != models.TransactionFail {
		return nil, validationFailed("payment outcome must be SUCCESS or FAIL, got %q", outcome)
	}
	ref, err := normalizeExternalRef(externalRef)
	if err != nil {
		return nil, err
	}

	var txn models.PaymentTransaction
	if err := s.rt.DB.WithContext(ctx).First(&txn, "id = ?", txnID).Error; err != nil {
		return nil, mapDBError(err, "payment transaction", CodeConflict)
	}

	err = s.rt.command(ctx, "payment.finalize", actor, []string{orderKey(txn.OrderID)}, func(tx *gorm.DB, buf *eventBuffer) error {
		if err := tx.First(&txn, "id = ?", txnID).Error; err != nil {
			return mapDBError(err, "payment transaction", CodeConflict)
		}

		if txn.Status != models.TransactionInitiated {
			if sameRef(txn.ExternalRef, ref) {
				return nil
			}
			return illegalTransition("payment transaction", txn.Status, outcome)
		}
		if ref != nil {
			if txn.ExternalRef != nil && *txn.ExternalRef != *ref {
				return validationFailed("transaction was started with a different external reference")
			}
			txn.ExternalRef = ref
		}
		if txn.ExternalRef == nil {
			return validationFailed("an external reference is required to finalize a payment")
		}

		txn.Status = outcome
		txn.FinalizedAt = timePtr(buf.now)
		if err := tx.Model(&txn).Select("status", "external_ref", "finalized_at").Updates(&txn).Error; err != nil {
			return mapDBError(err, "payment transaction", CodeConflict)
		}
		buf.emit(EventPaymentFinalized, AggregatePayment, txn.ID, string(models.TransactionInitiated), string(outcome), map[string]interface{}{
			"transaction_id": txn.ID.String(),
			"stage_id":       txn.StageID.String(),
			"order_id":       txn.OrderID.String(),
			"amount":         txn.Amount.String(),
			"provider":       txn.Provider,
		})
		if outcome == models.TransactionSuccess {
			return s.applySuccess(tx, buf, txn.StageID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// applySuccess recomputes amount_paid as the sum of SUCCESS transactions
func (s *PaymentService) applySuccess(tx *gorm.DB, buf *eventBuffer, stageID uuid.UUID) error {
	var stage models.OrderStage
	if err := tx.First(&stage, "id = ?", stageID).Error; err != nil {
		return mapDBError(err, "order stage", CodeConflict)
	}
	var succeeded []models.PaymentTransaction
	if err := tx.Select("amount").Where("stage_id = ? AND status = ?", stageID, models.TransactionSuccess).
		Find(&succeeded).Error; err != nil {
		return mapDBError(err, "payment transaction", CodeConflict)
	}
	paid := decimal.Zero
	for _, t := range succeeded {
		paid = paid.Add(t.Amount)
	}

	wasPaid := stage.PaidAt != nil
	stage.AmountPaid = paid
	firstPaid := stage.IsPaid() && !wasPaid
	if firstPaid {
		stage.PaidAt = timePtr(buf.now)
	}
	if err := tx.Model(&stage).Select("amount_paid", "paid_at").Updates(&stage).Error; err != nil {
		return mapDBError(err, "order stage", CodeConflict)
	}
	if err := syncOrderPaid(tx, stage.OrderID); err != nil {
		return err
	}
	if firstPaid {
		buf.emit(EventStagePaid, AggregateOrder, stage.OrderID, "unpaid", "paid", map[string]interface{}{
			"order_id":    stage.OrderID.String(),
			"stage_id":    stage.ID.String(),
			"stage_type":  string(stage.StageType),
			"amount_due":  stage.AmountDue.String(),
			"amount_paid": stage.AmountPaid.String(),
		})
	}
	return nil
}

// GetStagePayments lists the transactions of a stage, oldest first
func (s *PaymentService) GetStagePayments(ctx context.Context, stageID uuid.UUID) ([]models.PaymentTransaction, error) {
	if _, err := s.loadStage(ctx, stageID); err != nil {
		return nil, err
	}
	var rows []models.PaymentTransaction
	if err := s.rt.DB.WithContext(ctx).Where("stage_id = ?", stageID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "payment transaction", CodeConflict)
	}
	return rows, nil
}

// GetStage loads the stage a payment is taken against
func (s *PaymentService) GetStage(ctx context.Context, id uuid.UUID) (*models.OrderStage, error) {
	return s.loadStage(ctx, id)
}

// GetTransaction loads one payment transaction
func (s *PaymentService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := s.rt.DB.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "payment transaction", CodeConflict)
	}
	return &txn, nil
}

func (s *PaymentService) loadStage(ctx context.Context, id uuid.UUID) (*models.OrderStage, error) {
	var stage models.OrderStage
	if err := s.rt.DB.WithContext(ctx).First(&stage, "id = ?", id).Error; err != nil {
		return nil, mapDBError(err, "order stage", CodeConflict)
	}
	return &stage, nil
}

func normalizeExternalRef(ref string) (*string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	if len(ref) > models.MaxExternalRefLength {
		return nil, validationFailed("external reference exceeds %d bytes", models.MaxExternalRefLength)
	}
	return &ref, nil
}

func sameRef(stored, given *string) bool {
	if given == nil {
		return stored == nil
	}
	return stored != nil && *stored == *given
}
