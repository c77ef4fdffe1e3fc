// Package payment resolves payment gateway drivers by payment service id.
package payment

import (
	"sync"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
)

// Registry maps payment service ids to gateway drivers. It is built at
// startup and passed to the saga engine.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]interfaces.PaymentGateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]interfaces.PaymentGateway)}
}

// Register binds a gateway to a service id, replacing any previous binding.
func (r *Registry) Register(serviceID string, gw interfaces.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[serviceID] = gw
}

func (r *Registry) Gateway(serviceID string) (interfaces.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[serviceID]
	if !ok {
		return nil, apperror.Policy("payment gateway", "unknown payment service "+serviceID)
	}
	return gw, nil
}

var _ interfaces.PaymentRegistry = (*Registry)(nil)
