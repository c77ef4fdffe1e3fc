package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// issueProducts creates products for every item and derives the transaction's
// cancellability from theirs. Products created before a failure stay linked
// on the items so they can be reverted.
func (e *Engine) issueProducts(ctx context.Context, tx *models.Transaction) error {
	const op = "issue products"

	expire := e.now().Add(e.cfg.CancelTTLMax).UTC()
	tx.Cancellable = true
	tx.CancellableExpire = &expire

	for i := range tx.Items {
		item := &tx.Items[i]
		item.MtbProductIDs = nil
		products, err := e.issuer.Create(ctx, *item, tx)
		for _, p := range products {
			item.MtbProductIDs = append(item.MtbProductIDs, p.ID)
			applyProductCancellability(tx, p)
		}
		if err != nil {
			tx.Cancellable = false
			tx.CancellableExpire = nil
			return apperror.Wrap(apperror.KindIssuance, op, err)
		}
	}
	return nil
}

// applyProductCancellability folds one product into the transaction's flag:
// any non-cancellable product clears it for good, otherwise the earliest
// expiry wins.
func applyProductCancellability(tx *models.Transaction, p models.IssuedProduct) {
	if !tx.Cancellable {
		return
	}
	if !p.Cancellable {
		tx.Cancellable = false
		tx.CancellableExpire = nil
		return
	}
	tx.CancellableExpire = models.EarliestExpiry(tx.CancellableExpire, p.CancellableExpire)
}

// expireCancellable clears a cancellable flag whose deadline has passed and
// persists the change. A failed save is logged; the caller still sees the
// flag cleared.
func (e *Engine) expireCancellable(ctx context.Context, tx *models.Transaction) {
	if !tx.Cancellable || tx.CancellableExpire == nil || e.now().Before(*tx.CancellableExpire) {
		return
	}
	tx.Cancellable = false
	tx.CancellableExpire = nil
	if err := e.store.Save(ctx, tx); err != nil {
		e.txLogger(tx).Warn("failed to persist cancellable expiry", zap.Error(err))
	}
}

// markPurchased moves tx to PURCHASED and flags its products as purchased.
// Product failures are recorded but don't affect the outcome.
func (e *Engine) markPurchased(ctx context.Context, tx *models.Transaction, report *CompensationReport) error {
	if err := tx.TransitionTo(models.StatePurchased); err != nil {
		return err
	}
	for _, id := range tx.ProductIDs() {
		if err := e.issuer.MarkPurchased(ctx, id); err != nil {
			e.record(report, stepMarkPurchased, id, err)
		}
	}
	return nil
}
