package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// WalletDirectory is an in-memory wallet lookup for development and tests.
type WalletDirectory struct {
	mu      sync.RWMutex
	wallets map[string]models.Wallet
}

func NewWalletDirectory(wallets ...models.Wallet) *WalletDirectory {
	d := &WalletDirectory{wallets: make(map[string]models.Wallet)}
	for _, w := range wallets {
		d.Put(w)
	}
	return d
}

func (d *WalletDirectory) Put(w models.Wallet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wallets[w.ID] = w
}

// Load adds the wallets in a JSON array read from r.
func (d *WalletDirectory) Load(r io.Reader) error {
	var wallets []models.Wallet
	if err := json.NewDecoder(r).Decode(&wallets); err != nil {
		return fmt.Errorf("decode wallets: %w", err)
	}
	for _, w := range wallets {
		if w.ID == "" || w.OwnerID == "" {
			return fmt.Errorf("wallet %q: id and owner_id are required", w.ID)
		}
		if w.UsePurse == "" {
			w.UsePurse = models.UsePurseOptional
		}
		d.Put(w)
	}
	return nil
}

// Wallet returns the wallet if ownerID owns it.
func (d *WalletDirectory) Wallet(ctx context.Context, ownerID, walletID string) (models.Wallet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.wallets[walletID]
	if !ok || w.OwnerID != ownerID {
		return models.Wallet{}, apperror.Policy("wallet lookup", "can't access wallet "+walletID)
	}
	return w, nil
}

var _ interfaces.WalletDirectory = (*WalletDirectory)(nil)
