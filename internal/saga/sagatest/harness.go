// Package sagatest wires a saga engine to in-memory collaborators with
// failure injection, for tests of the engine and of its callers.
package sagatest

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/issuance"
	"github.com/sheikh-saqib/purchase-saga/internal/ledger"
	"github.com/sheikh-saqib/purchase-saga/internal/metrics"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/payment"
	"github.com/sheikh-saqib/purchase-saga/internal/saga"
	"github.com/sheikh-saqib/purchase-saga/internal/storage/memory"
)

// Well-known fixture ids.
const (
	TravellerID = "traveller-1"
	OperatorID  = "operator-1"
	VendorID    = "vendor-1"
	WalletID    = "wallet-1"
	PurseID     = "purse-1"
	CardID      = "card-1"
	Currency    = "EUR"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness is an engine plus handles on every collaborator.
type Harness struct {
	Engine   *saga.Engine
	Store    *Store
	Ledger   *ledger.Ledger
	Purse    *Purse
	Gateway  *Gateway
	Issuer   *Issuer
	Products *issuance.Registry
	Wallets  *memory.WalletDirectory
	Events   *Events
	Clock    *Clock
	Registry *prometheus.Registry
	Metrics  *metrics.SagaMetrics
}

// Options tune a Harness.
type Options struct {
	UsePurse       models.UsePurse
	WebviewBase    string
	CancelWindow   time.Duration
	CancelTTLMax   time.Duration
	NonCancellable []string
}

// New builds a harness with one traveller wallet holding a sandbox card.
func New(opts Options) *Harness {
	if opts.UsePurse == "" {
		opts.UsePurse = models.UsePurseOptional
	}
	if opts.CancelWindow == 0 {
		opts.CancelWindow = time.Hour
	}
	clock := NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	ledgerStore := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(ledgerStore, ledger.WithClock(clock.Now))

	products := issuance.NewRegistry(opts.CancelWindow, opts.NonCancellable...)
	products.UseClock(clock.Now)

	sandbox := payment.NewSandbox(opts.WebviewBase, 30*time.Minute)
	gw := &Gateway{Sandbox: sandbox}
	payments := payment.NewRegistry()
	payments.Register(payment.SandboxServiceID, gw)

	wallets := memory.NewWalletDirectory(models.Wallet{
		ID:       WalletID,
		OwnerID:  TravellerID,
		PurseID:  PurseID,
		Currency: Currency,
		UsePurse: opts.UsePurse,
		PaymentMethods: []models.PaymentMethod{
			{ID: CardID, ServiceID: payment.SandboxServiceID, Label: "Visa **** 4242"},
		},
	})

	h := &Harness{
		Store:    &Store{TransactionStore: memory.NewTransactionStore()},
		Ledger:   l,
		Purse:    &Purse{Purse: l},
		Gateway:  gw,
		Issuer:   &Issuer{Registry: products},
		Products: products,
		Wallets:  wallets,
		Events:   &Events{},
		Clock:    clock,
		Registry: prometheus.NewRegistry(),
	}
	h.Metrics = metrics.NewSagaMetrics(h.Registry)
	h.Engine = saga.NewEngine(saga.Deps{
		Store:    h.Store,
		Purse:    h.Purse,
		Payments: payments,
		Issuer:   h.Issuer,
		Wallets:  wallets,
		Events:   h.Events,
		Metrics:  h.Metrics,
		Clock:    clock.Now,
	}, saga.Config{CancelTTLMax: opts.CancelTTLMax})
	return h
}

// Fund credits the traveller's purse.
func (h *Harness) Fund(amount int64, refundable bool) {
	if _, err := h.Ledger.TopUp(context.Background(), PurseID, decimal.NewFromInt(amount), refundable); err != nil {
		panic(err)
	}
}

// Traveller, Vendor and Operator are the fixture users.
func Traveller() models.User {
	return models.User{ID: TravellerID, Type: models.UserTypeTraveller, Locale: "fi"}
}

func Vendor() models.User {
	return models.User{ID: VendorID, Type: models.UserTypeVendor}
}

func Operator() models.User {
	return models.User{ID: OperatorID, Type: models.UserTypeTraveller, Operator: true}
}

// Item is a priced line of count units at unitPrice each.
func Item(productSetID string, count int, unitPrice int64) saga.ItemRequest {
	return saga.ItemRequest{
		ProductSetID: productSetID,
		Title:        productSetID,
		Count:        count,
		Amount:       decimal.NewFromInt(unitPrice * int64(count)),
		Vat:          []models.Vat{{Percentage: decimal.NewFromInt(10), Amount: decimal.NewFromInt(unitPrice).Div(decimal.NewFromInt(11)).Round(2)}},
	}
}

// Request is a purchase of items from the fixture wallet.
func Request(paymentMethodID string, items ...saga.ItemRequest) saga.PurchaseRequest {
	return saga.PurchaseRequest{
		Items:           items,
		Currency:        Currency,
		Description:     "test purchase",
		WalletID:        WalletID,
		PaymentMethodID: paymentMethodID,
		ReturnURL:       "https://app.example/return/{TID}",
	}
}

// PurseEntries returns the postings on the fixture purse.
func (h *Harness) PurseEntries() []models.LedgerEntry {
	entries, err := h.Ledger.GetLedgerEntries(context.Background())
	if err != nil {
		panic(err)
	}
	var out []models.LedgerEntry
	for _, e := range entries {
		if e.PurseID == PurseID && e.TransactionID != "" {
			out = append(out, e)
		}
	}
	return out
}

// Available returns the unreserved purse balance.
func (h *Harness) Available() decimal.Decimal {
	a, err := h.Ledger.GetAvailable(context.Background(), PurseID)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	_ interfaces.TransactionStore = (*Store)(nil)
	_ interfaces.Purse            = (*Purse)(nil)
	_ interfaces.PaymentGateway   = (*Gateway)(nil)
	_ interfaces.Issuer           = (*Issuer)(nil)
	_ interfaces.EventPublisher   = (*Events)(nil)
)
