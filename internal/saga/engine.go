// Package saga coordinates purchases across the purse ledger, the payment
// gateway and product issuance. Each transaction is driven through a
// persisted state machine; when a step fails the steps already done are
// compensated in reverse dependency order and the failure state is persisted
// before the error is returned.
package saga

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/metrics"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/models/events"
)

const (
	defaultCancelTTLMax = 24 * time.Hour
	defaultLocale       = "en"
	defaultEventTopic   = "purchase_transactions"
	defaultCancelReason = "Cancel requested"
)

// Deps are the collaborators of the engine. Events, Metrics, Logger and Clock
// are optional.
type Deps struct {
	Store    interfaces.TransactionStore
	Purse    interfaces.Purse
	Payments interfaces.PaymentRegistry
	Issuer   interfaces.Issuer
	Wallets  interfaces.WalletDirectory
	Events   interfaces.EventPublisher
	Metrics  *metrics.SagaMetrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Config holds saga parameters.
type Config struct {
	// CancelTTLMax bounds how long a purchase stays cancellable.
	CancelTTLMax  time.Duration
	DefaultLocale string
	EventTopic    string
}

// Engine runs the purchase saga.
type Engine struct {
	store    interfaces.TransactionStore
	purse    interfaces.Purse
	payments interfaces.PaymentRegistry
	issuer   interfaces.Issuer
	wallets  interfaces.WalletDirectory
	events   interfaces.EventPublisher
	metrics  *metrics.SagaMetrics
	log      *zap.Logger
	now      func() time.Time
	cfg      Config
	locks    keyedMutex
}

// NewEngine wires an Engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.CancelTTLMax <= 0 {
		cfg.CancelTTLMax = defaultCancelTTLMax
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = defaultLocale
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = defaultEventTopic
	}
	e := &Engine{
		store:    deps.Store,
		purse:    deps.Purse,
		payments: deps.Payments,
		issuer:   deps.Issuer,
		wallets:  deps.Wallets,
		events:   deps.Events,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Clock,
		cfg:      cfg,
		locks:    keyedMutex{locks: make(map[string]*refMutex)},
	}
	if e.metrics == nil {
		e.metrics = metrics.NewSagaMetrics(prometheus.NewRegistry())
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// keyedMutex serializes phases per transaction id within the process.
// Entries are dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (e *Engine) txLogger(tx *models.Transaction) *zap.Logger {
	return e.log.With(zap.String("transaction_id", tx.ID), zap.String("state", string(tx.State)))
}

func (e *Engine) observePhase(phase string, tx *models.Transaction, start time.Time) {
	e.metrics.ObservePhase(phase, string(tx.State), float64(e.now().Sub(start).Milliseconds()))
}

// publish emits an outcome event when the state changed. Failures are logged.
func (e *Engine) publish(ctx context.Context, tx *models.Transaction, before models.TransactionState) {
	if e.events == nil || tx.State == before {
		return
	}
	event := events.TransactionEvent{
		TransactionID:       tx.ID,
		Type:                string(tx.Type),
		State:               string(tx.State),
		OwnerID:             tx.OwnerID,
		WalletID:            tx.WalletID,
		Currency:            tx.Currency,
		TotalAmount:         tx.TotalAmount,
		PurseAmount:         tx.PurseAmount,
		PaymentMethodAmount: tx.PaymentMethodAmount,
		ProductIDs:          tx.ProductIDs(),
		OccurredAt:          e.now().UTC(),
	}
	if err := e.events.Publish(ctx, e.cfg.EventTopic, tx.ID, event); err != nil {
		e.txLogger(tx).Warn("failed to publish transaction event", zap.Error(err))
	}
}
