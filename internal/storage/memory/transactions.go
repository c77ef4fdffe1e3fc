package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// TransactionStore keeps transactions in a map. Values are cloned on the way
// in and out so callers never alias stored state.
type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]*models.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{transactions: make(map[string]*models.Transaction)}
}

func (s *TransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return apperror.Conflict("create transaction", "transaction "+tx.ID+" already exists")
	}
	tx.Version = 1
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (s *TransactionStore) Load(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, apperror.NotFound("load transaction", "transaction "+id+" not found")
	}
	return tx.Clone(), nil
}

func (s *TransactionStore) Save(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transactions[tx.ID]
	if !ok {
		return apperror.NotFound("save transaction", "transaction "+tx.ID+" not found")
	}
	if stored.Version != tx.Version {
		return apperror.Concurrency("save transaction", "transaction "+tx.ID+" was modified concurrently")
	}
	tx.Version++
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

// List returns matching transactions, newest first.
func (s *TransactionStore) List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Transaction
	for _, tx := range s.transactions {
		if filter.Matches(tx) {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ interfaces.TransactionStore = (*TransactionStore)(nil)
