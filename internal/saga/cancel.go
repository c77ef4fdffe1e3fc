package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Cancel refunds a purchase and cancels its products.
//
// Owners may cancel a cancellable purchase that is pending or purchased.
// Operators may additionally resume a cancellation that stopped half way;
// refund steps already done are skipped.
func (e *Engine) Cancel(ctx context.Context, actor models.User, id, reason string) (*models.Transaction, error) {
	const op = "cancel purchase"
	start := e.now()

	unlock := e.locks.lock(id)
	defer unlock()

	tx, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	e.expireCancellable(ctx, tx)

	if tx.Type != models.TransactionTypePurchase {
		return tx, apperror.Policy(op, "cancel of "+string(tx.Type)+" transactions is handled elsewhere")
	}
	if actor.ID != tx.OwnerID && !actor.Operator {
		return tx, apperror.Forbidden(op, "transaction isn't cancellable by "+actor.ID)
	}

	switch {
	case tx.State.IsCancelInProgress():
		if !actor.Operator {
			return tx, apperror.Forbidden(op, "only operators can resume a cancellation")
		}
	case tx.State == models.StatePurchased || tx.State.IsPending():
		// Cancellable is only set when products are issued, so a pending
		// transaction is rejected here until an issuer marks it.
		if !tx.Cancellable {
			return tx, apperror.Forbidden(op, "transaction isn't cancellable")
		}
	default:
		return tx, apperror.InvalidState(op, "transaction in state "+string(tx.State)+" isn't cancellable")
	}

	if err := e.checkProductsUsable(ctx, tx); err != nil {
		return tx, err
	}

	if reason == "" {
		reason = defaultCancelReason
	}
	before := tx.State
	err = e.refund(ctx, tx, reason)
	e.observePhase("cancel", tx, start)
	e.publish(ctx, tx, before)
	if err != nil {
		e.txLogger(tx).Info("purchase cancellation failed", zap.Error(err))
	}
	return tx, err
}

// checkProductsUsable fails with a conflict if any product is in use by
// someone else. Nothing is changed.
func (e *Engine) checkProductsUsable(ctx context.Context, tx *models.Transaction) error {
	const op = "cancel purchase"
	for _, id := range tx.ProductIDs() {
		err := e.issuer.CheckUsable(ctx, id)
		switch {
		case err == nil:
		case apperror.Is(err, apperror.KindConflict):
			return &apperror.Error{Kind: apperror.KindConflict, Op: op, Msg: "transaction contains lent products", Err: err}
		default:
			return apperror.Wrap(apperror.KindIssuance, op, err)
		}
	}
	return nil
}

func (e *Engine) refund(ctx context.Context, tx *models.Transaction, reason string) error {
	if err := e.refundPayment(ctx, tx, reason); err != nil {
		return err
	}
	if err := e.refundPurse(ctx, tx); err != nil {
		return err
	}

	report := &CompensationReport{TransactionID: tx.ID}
	for _, id := range tx.ProductIDs() {
		if err := e.issuer.Cancel(ctx, id, tx); err != nil {
			e.record(report, stepCancelProduct, id, err)
		}
	}
	tx.Cancellable = false
	tx.CancellableExpire = nil
	if err := tx.TransitionTo(models.StateCancelled); err != nil {
		return err
	}
	return e.store.Save(ctx, tx)
}

// refundPayment refunds the gateway part. A failure leaves the transaction in
// CANCEL_FAILED with products and purse untouched.
func (e *Engine) refundPayment(ctx context.Context, tx *models.Transaction, reason string) error {
	const op = "refund payment"
	if !tx.HasPayment() || tx.CancelProgress.PaymentRefunded {
		return nil
	}
	if !tx.HasPaymentSession() {
		// Vendor purchases are paid out of band; there is nothing to refund here.
		if tx.PaymentServiceID == "" {
			return nil
		}
		return apperror.New(apperror.KindInternal, op, errPaymentDataMissing.Error())
	}

	report := &CompensationReport{TransactionID: tx.ID}
	gw, err := e.payments.Gateway(tx.PaymentServiceID)
	if err != nil {
		return e.fail(ctx, tx, models.StateCancelFailed, err, report)
	}
	session := &models.PaymentSession{Data: tx.PaymentData}
	err = gw.Cancel(ctx, session, tx.PaymentReference, reason)
	tx.PaymentData = session.Data
	if err != nil {
		e.txLogger(tx).Error("failed to cancel payment", zap.Error(err))
		return e.fail(ctx, tx, models.StateCancelFailed, apperror.Wrap(apperror.KindPaymentGateway, op, err), report)
	}

	e.txLogger(tx).Info("payment refunded")
	tx.CancelProgress.PaymentRefunded = true
	if err := tx.TransitionTo(models.StateCancelPaymentRefunded); err != nil {
		return err
	}
	return e.store.Save(ctx, tx)
}

// refundPurse credits the purse part back, split into refundable and
// non-refundable records. Each posted record is persisted so a resumed
// cancellation doesn't credit twice.
func (e *Engine) refundPurse(ctx context.Context, tx *models.Transaction) error {
	if !tx.PurseAmount.IsPositive() || tx.CancelProgress.PurseRefunded {
		return nil
	}
	if err := tx.TransitionTo(models.StateCancelPursePending); err != nil {
		return err
	}
	if err := e.store.Save(ctx, tx); err != nil {
		return err
	}

	report := &CompensationReport{TransactionID: tx.ID}
	if tx.PurseReservationID != "" {
		// Never debited: dropping the hold is the refund.
		if err := e.purse.DeleteReservation(ctx, tx.PurseID, tx.PurseReservationID); err != nil {
			e.txLogger(tx).Error("failed to release purse reservation", zap.Error(err))
			return e.fail(ctx, tx, models.StateCancelFailed, err, report)
		}
		tx.PurseReservationID = ""
	} else {
		records := purseRefundRecords(tx)
		for i := tx.CancelProgress.PurseRecordsPosted; i < len(records); i++ {
			recordID, err := e.purse.CreateRecord(ctx, tx.PurseID, records[i])
			if err != nil {
				e.txLogger(tx).Error("failed to record purse refund transaction", zap.Error(err))
				return e.fail(ctx, tx, models.StateCancelFailed, err, report)
			}
			tx.PurseRecordIDs = append(tx.PurseRecordIDs, recordID)
			tx.CancelProgress.PurseRecordsPosted++
			if err := e.store.Save(ctx, tx); err != nil {
				return err
			}
		}
	}
	tx.CancelProgress.PurseRefunded = true
	return e.store.Save(ctx, tx)
}
