package saga

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Compensation step names, used in logs and metrics.
const (
	stepReleasePurse   = "release_purse_reservation"
	stepReleasePayment = "release_payment"
	stepRevertProduct  = "revert_product"
	stepRevertPurse    = "revert_purse_record"
	stepMarkPurchased  = "mark_purchased"
	stepCancelProduct  = "cancel_product"
	stepPersist        = "persist"
	stepPurseDebit     = "purse_debit_left_in_place"
	stepPaymentCapture = "payment_capture_left_in_place"
)

var errPaymentDataMissing = errors.New("payment data missing")

// CompensationStep is the outcome of one best-effort action.
type CompensationStep struct {
	Step   string
	Target string
	Err    error
}

// CompensationReport collects best-effort actions taken for a transaction.
type CompensationReport struct {
	TransactionID string
	Steps         []CompensationStep
}

// Gaps returns the failed steps as errors.
func (r *CompensationReport) Gaps() []error {
	var gaps []error
	for _, s := range r.Steps {
		if s.Err != nil {
			gaps = append(gaps, &apperror.Error{
				Kind: apperror.KindConsistencyGap,
				Op:   s.Step,
				Msg:  s.Target,
				Err:  s.Err,
			})
		}
	}
	return gaps
}

// record logs and counts a best-effort step; it never fails.
func (e *Engine) record(report *CompensationReport, step, target string, err error) {
	report.Steps = append(report.Steps, CompensationStep{Step: step, Target: target, Err: err})
	e.metrics.ObserveCompensation(step, err)
	if err != nil {
		e.log.Error("compensation step failed",
			zap.String("transaction_id", report.TransactionID),
			zap.String("step", step),
			zap.String("target", target),
			zap.Error(err))
	}
}

// fail moves tx to next, persists it and returns cause with any compensation
// gaps attached.
func (e *Engine) fail(ctx context.Context, tx *models.Transaction, next models.TransactionState, cause error, report *CompensationReport) error {
	if err := tx.TransitionTo(next); err != nil {
		e.record(report, stepPersist, string(next), err)
		return apperror.WithGaps(cause, report.Gaps())
	}
	if err := e.store.Save(ctx, tx); err != nil {
		e.record(report, stepPersist, string(next), err)
	}
	return apperror.WithGaps(cause, report.Gaps())
}

func (e *Engine) releasePurseReservation(ctx context.Context, tx *models.Transaction, report *CompensationReport) {
	if tx.PurseReservationID == "" {
		return
	}
	err := e.purse.DeleteReservation(ctx, tx.PurseID, tx.PurseReservationID)
	e.record(report, stepReleasePurse, tx.PurseReservationID, err)
	if err == nil {
		tx.PurseReservationID = ""
	}
}

func (e *Engine) releasePayment(ctx context.Context, tx *models.Transaction, gw interfaces.PaymentGateway, session *models.PaymentSession, report *CompensationReport) {
	if !tx.HasPayment() {
		return
	}
	if gw == nil || session == nil {
		e.record(report, stepReleasePayment, tx.PaymentMethodID, errPaymentDataMissing)
		return
	}
	reason := fmt.Sprintf("Release payment because of %s", tx.State)
	err := gw.Cancel(ctx, session, tx.PaymentReference, reason)
	e.record(report, stepReleasePayment, tx.PaymentMethodID, err)
	tx.PaymentData = session.Data
}

// revertProducts cancels every product issued for tx and clears the links.
func (e *Engine) revertProducts(ctx context.Context, tx *models.Transaction, report *CompensationReport) {
	for i := range tx.Items {
		item := &tx.Items[i]
		for _, id := range item.MtbProductIDs {
			e.record(report, stepRevertProduct, id, e.issuer.Cancel(ctx, id, tx))
		}
		item.MtbProductIDs = nil
	}
	tx.Cancellable = false
	tx.CancellableExpire = nil
}

// revertPurseRecord credits back a purse debit already posted for tx.
func (e *Engine) revertPurseRecord(ctx context.Context, tx *models.Transaction, report *CompensationReport) {
	for _, record := range purseRefundRecords(tx) {
		id, err := e.purse.CreateRecord(ctx, tx.PurseID, record)
		e.record(report, stepRevertPurse, tx.PurseID, err)
		if err != nil {
			return
		}
		tx.PurseRecordIDs = append(tx.PurseRecordIDs, id)
	}
}

// purseRefundRecords splits the purse amount into a refundable credit and a
// non-refundable remainder.
func purseRefundRecords(tx *models.Transaction) []models.NewPurseRecord {
	amount := tx.PurseAmount
	if !amount.IsPositive() {
		return nil
	}
	refundable := tx.PurseRefundableAmount
	switch {
	case !refundable.IsPositive():
		return []models.NewPurseRecord{{TransactionID: tx.ID, Amount: amount, Refundable: false}}
	case refundable.GreaterThanOrEqual(amount):
		return []models.NewPurseRecord{{TransactionID: tx.ID, Amount: amount, Refundable: true}}
	default:
		return []models.NewPurseRecord{
			{TransactionID: tx.ID, Amount: refundable, Refundable: true},
			{TransactionID: tx.ID, Amount: amount.Sub(refundable), Refundable: false},
		}
	}
}
