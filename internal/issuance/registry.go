// Package issuance is an in-process product registry standing in for the
// product issuance service in development and tests.
package issuance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Product is an issued entitlement.
type Product struct {
	ID                string
	TransactionID     string
	ProductSetID      string
	OwnerID           string
	Cancellable       bool
	CancellableExpire *time.Time
	Purchased         bool
	Cancelled         bool
	LentTo            string
}

// Registry issues one product per unit of a transaction item.
type Registry struct {
	mu           sync.Mutex
	products     map[string]*Product
	cancelWindow time.Duration
	// nonCancellable product sets are issued without a cancel window.
	nonCancellable map[string]bool
	now            func() time.Time
}

func NewRegistry(cancelWindow time.Duration, nonCancellableSets ...string) *Registry {
	r := &Registry{
		products:       make(map[string]*Product),
		cancelWindow:   cancelWindow,
		nonCancellable: make(map[string]bool),
		now:            time.Now,
	}
	for _, ps := range nonCancellableSets {
		r.nonCancellable[ps] = true
	}
	return r
}

// UseClock replaces time.Now for cancel window computation.
func (r *Registry) UseClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) Create(ctx context.Context, item models.TransactionItem, tx *models.Transaction) ([]models.IssuedProduct, error) {
	if item.Count <= 0 {
		return nil, apperror.New(apperror.KindIssuance, "issue products", "item count must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner := item.ProductOwnerID
	if owner == "" {
		owner = tx.OwnerID
	}
	out := make([]models.IssuedProduct, 0, item.Count)
	for i := 0; i < item.Count; i++ {
		p := &Product{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			ProductSetID:  item.ProductSetID,
			OwnerID:       owner,
			Cancellable:   !r.nonCancellable[item.ProductSetID],
		}
		if p.Cancellable && r.cancelWindow > 0 {
			exp := r.now().Add(r.cancelWindow)
			p.CancellableExpire = &exp
		}
		r.products[p.ID] = p
		out = append(out, models.IssuedProduct{ID: p.ID, Cancellable: p.Cancellable, CancellableExpire: p.CancellableExpire})
	}
	return out, nil
}

func (r *Registry) Cancel(ctx context.Context, productID string, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(productID)
	if err != nil {
		return err
	}
	p.Cancelled = true
	return nil
}

func (r *Registry) MarkPurchased(ctx context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(productID)
	if err != nil {
		return err
	}
	p.Purchased = true
	return nil
}

func (r *Registry) CheckUsable(ctx context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(productID)
	if err != nil {
		return err
	}
	if p.LentTo != "" {
		return apperror.Conflict("check product", "product "+productID+" is lent to "+p.LentTo)
	}
	return nil
}

// Lend marks a product as in use by another party.
func (r *Registry) Lend(productID, borrower string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(productID)
	if err != nil {
		return err
	}
	p.LentTo = borrower
	return nil
}

// Product returns a copy of the product.
func (r *Registry) Product(productID string) (Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

func (r *Registry) get(productID string) (*Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return nil, apperror.NotFound("product", "product "+productID+" not found")
	}
	return p, nil
}

var _ interfaces.Issuer = (*Registry)(nil)
