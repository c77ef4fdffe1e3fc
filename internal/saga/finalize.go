package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Finalize settles a pending purchase. On failure the transaction is returned
// in the failure state it was persisted in, together with the error.
func (e *Engine) Finalize(ctx context.Context, actor models.User, id, finalizationData string) (*models.Transaction, error) {
	const op = "finalize purchase"
	start := e.now()

	unlock := e.locks.lock(id)
	defer unlock()

	tx, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Type != models.TransactionTypePurchase {
		return tx, apperror.Policy(op, "currently only purchases can be finalized")
	}
	if !tx.State.IsPending() {
		return tx, apperror.InvalidState(op, "transaction in state "+string(tx.State)+" can't be finalized")
	}
	if actor.ID != tx.OwnerID {
		return tx, apperror.Forbidden(op, "finalize must be called by the transaction initiator")
	}

	before := tx.State
	if actor.IsVendor() {
		err = e.settleVendor(ctx, tx, finalizationData)
	} else {
		err = e.settle(ctx, tx, finalizationData)
	}
	e.observePhase("settle", tx, start)
	e.publish(ctx, tx, before)
	if err != nil {
		e.txLogger(tx).Info("purchase settlement failed", zap.Error(err))
	}
	return tx, err
}

// settle runs the traveller settlement: payment reserve, product issuance,
// purse debit and payment capture, compensating on the way back.
func (e *Engine) settle(ctx context.Context, tx *models.Transaction, finalizationData string) error {
	const op = "settle purchase"
	report := &CompensationReport{TransactionID: tx.ID}

	var gw interfaces.PaymentGateway
	var session *models.PaymentSession
	if tx.HasPaymentSession() {
		var err error
		gw, err = e.payments.Gateway(tx.PaymentServiceID)
		if err != nil {
			return err
		}
		session = &models.PaymentSession{Data: tx.PaymentData}
		if err := gw.Reserve(ctx, session); err != nil {
			e.txLogger(tx).Error("failed to reserve payment", zap.Error(err))
			next := models.StateDenied
			if apperror.IsUserCancelled(err) {
				next = models.StateCancelled
			}
			tx.PaymentData = session.Data
			e.releasePurseReservation(ctx, tx, report)
			return e.fail(ctx, tx, next, apperror.Wrap(apperror.KindPaymentGateway, op, err), report)
		}
	}

	if err := e.issueProducts(ctx, tx); err != nil {
		e.txLogger(tx).Error("failed to create product", zap.Error(err))
		if terr := tx.TransitionTo(models.StateIssueError); terr != nil {
			return terr
		}
		e.releasePurseReservation(ctx, tx, report)
		e.releasePayment(ctx, tx, gw, session, report)
		e.revertProducts(ctx, tx, report)
		return e.fail(ctx, tx, models.StateIssueError, err, report)
	}

	if tx.PurseReservationID != "" {
		recordID, err := e.purse.CreateRecord(ctx, tx.PurseID, models.NewPurseRecord{
			TransactionID: tx.ID,
			ReservationID: tx.PurseReservationID,
			Amount:        tx.PurseAmount.Neg(),
			Refundable:    false,
		})
		if err != nil {
			// The reservation stays open for reconciliation.
			e.txLogger(tx).Error("failed to record purse transaction", zap.Error(err))
			if terr := tx.TransitionTo(models.StateDenied); terr != nil {
				return terr
			}
			e.revertProducts(ctx, tx, report)
			e.releasePayment(ctx, tx, gw, session, report)
			return e.fail(ctx, tx, models.StateDenied, err, report)
		}
		tx.PurseRecordIDs = append(tx.PurseRecordIDs, recordID)
		tx.PurseReservationID = ""
	}

	if gw != nil {
		reference, err := gw.Finalize(ctx, session, finalizationData)
		tx.PaymentData = session.Data
		if err != nil {
			e.txLogger(tx).Error("failed to finalize payment", zap.Error(err))
			if terr := tx.TransitionTo(models.StateDenied); terr != nil {
				return terr
			}
			e.revertProducts(ctx, tx, report)
			e.revertPurseRecord(ctx, tx, report)
			return e.fail(ctx, tx, models.StateDenied, apperror.Wrap(apperror.KindPaymentGateway, op, err), report)
		}
		tx.PaymentReference = reference
	}

	return e.complete(ctx, tx, report)
}

// settleVendor settles a purchase paid out of band; the finalization data is
// the vendor's payment reference.
func (e *Engine) settleVendor(ctx context.Context, tx *models.Transaction, paymentReference string) error {
	const op = "settle vendor purchase"
	if paymentReference == "" {
		return apperror.Policy(op, "vendor finalization requires payment reference")
	}
	report := &CompensationReport{TransactionID: tx.ID}
	tx.PaymentReference = paymentReference

	if err := e.issueProducts(ctx, tx); err != nil {
		if terr := tx.TransitionTo(models.StateIssueError); terr != nil {
			return terr
		}
		e.revertProducts(ctx, tx, report)
		return e.fail(ctx, tx, models.StateIssueError, err, report)
	}
	return e.complete(ctx, tx, report)
}

// complete marks tx purchased and persists it. If that save fails the
// transaction goes to ERROR: products are reverted, while the purse debit and
// payment capture are left in place and reported as gaps.
func (e *Engine) complete(ctx context.Context, tx *models.Transaction, report *CompensationReport) error {
	const op = "complete purchase"
	pending := tx.State

	if err := e.markPurchased(ctx, tx, report); err != nil {
		return err
	}
	err := e.store.Save(ctx, tx)
	if err == nil {
		return nil
	}

	e.txLogger(tx).Error("failed to persist purchased transaction", zap.Error(err))
	tx.State = pending
	if terr := tx.TransitionTo(models.StateError); terr != nil {
		return terr
	}
	e.revertProducts(ctx, tx, report)
	if len(tx.PurseRecordIDs) > 0 {
		e.record(report, stepPurseDebit, tx.PurseID, apperror.New(apperror.KindConsistencyGap, op, "purse debit not reverted"))
	}
	if tx.PaymentReference != "" && tx.HasPaymentSession() {
		e.record(report, stepPaymentCapture, tx.PaymentReference, apperror.New(apperror.KindConsistencyGap, op, "payment capture not released"))
	}
	return e.fail(ctx, tx, models.StateError, err, report)
}
