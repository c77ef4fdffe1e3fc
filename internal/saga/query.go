package saga

import (
	"context"

	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Get loads a transaction, clearing an expired cancellable flag first.
func (e *Engine) Get(ctx context.Context, id string) (*models.Transaction, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	tx, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	e.expireCancellable(ctx, tx)
	return tx, nil
}

// List returns the transactions matching filter, newest first, each with
// lazy cancellable expiry applied.
func (e *Engine) List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	txs, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		unlock := e.locks.lock(tx.ID)
		e.expireCancellable(ctx, tx)
		unlock()
	}
	return txs, nil
}
