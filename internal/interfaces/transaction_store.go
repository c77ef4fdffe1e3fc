package interfaces

import (
	"context"

	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// TransactionStore is the durable home of transactions. Save succeeds only if
// the stored version equals tx.Version and then increments tx.Version.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Load(ctx context.Context, id string) (*models.Transaction, error)
	Save(ctx context.Context, tx *models.Transaction) error
	List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)
}
