package sagatest

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/issuance"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/models/events"
	"github.com/sheikh-saqib/purchase-saga/internal/payment"
	"github.com/sheikh-saqib/purchase-saga/internal/storage/memory"
)

// ErrInjected is returned by injected failures that don't specify an error.
var ErrInjected = errors.New("injected failure")

func orInjected(err error) error {
	if err == nil {
		return ErrInjected
	}
	return err
}

// Store fails the next FailSaves saves.
type Store struct {
	*memory.TransactionStore

	mu        sync.Mutex
	failSaves int
	saveErr   error
}

// FailNextSaves makes the next n saves fail with err.
func (s *Store) FailNextSaves(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = n
	s.saveErr = err
}

func (s *Store) Save(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	if s.failSaves > 0 {
		s.failSaves--
		err := orInjected(s.saveErr)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.TransactionStore.Save(ctx, tx)
}

// Purse counts calls and injects ledger failures.
type Purse struct {
	interfaces.Purse

	mu               sync.Mutex
	ReserveErr       error
	RecordErr        error
	DeleteErr        error
	FailRecordAfter  int // with RecordErr, succeed this many records first
	ReserveCalls     int
	RecordCalls      int
	DeleteCalls      int
	recordsSucceeded int
}

func (p *Purse) Reserve(ctx context.Context, purseID string, amount decimal.Decimal, partial bool) (models.PurseReservation, error) {
	p.mu.Lock()
	p.ReserveCalls++
	err := p.ReserveErr
	p.mu.Unlock()
	if err != nil {
		return models.PurseReservation{}, err
	}
	return p.Purse.Reserve(ctx, purseID, amount, partial)
}

func (p *Purse) CreateRecord(ctx context.Context, purseID string, record models.NewPurseRecord) (string, error) {
	p.mu.Lock()
	p.RecordCalls++
	if p.RecordErr != nil && p.recordsSucceeded >= p.FailRecordAfter {
		err := p.RecordErr
		p.mu.Unlock()
		return "", err
	}
	p.recordsSucceeded++
	p.mu.Unlock()
	return p.Purse.CreateRecord(ctx, purseID, record)
}

func (p *Purse) DeleteReservation(ctx context.Context, purseID, reservationID string) error {
	p.mu.Lock()
	p.DeleteCalls++
	err := p.DeleteErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Purse.DeleteReservation(ctx, purseID, reservationID)
}

// Reset clears injected failures and counters.
func (p *Purse) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReserveErr, p.RecordErr, p.DeleteErr = nil, nil, nil
	p.FailRecordAfter, p.recordsSucceeded = 0, 0
	p.ReserveCalls, p.RecordCalls, p.DeleteCalls = 0, 0, 0
}

// Gateway wraps the sandbox, counting calls and injecting failures.
type Gateway struct {
	*payment.Sandbox

	mu            sync.Mutex
	InitErr       error
	ReserveErr    error
	FinalizeErr   error
	CancelErr     error
	InitCalls     int
	ReserveCalls  int
	FinalizeCalls int
	CancelCalls   int
	CancelReasons []string
	LastInit      models.PaymentInit
}

func (g *Gateway) Initialize(ctx context.Context, req models.PaymentInit) (*models.PaymentSession, error) {
	g.mu.Lock()
	g.InitCalls++
	g.LastInit = req
	err := g.InitErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Sandbox.Initialize(ctx, req)
}

func (g *Gateway) Reserve(ctx context.Context, session *models.PaymentSession) error {
	g.mu.Lock()
	g.ReserveCalls++
	err := g.ReserveErr
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return g.Sandbox.Reserve(ctx, session)
}

func (g *Gateway) Finalize(ctx context.Context, session *models.PaymentSession, finalizationData string) (string, error) {
	g.mu.Lock()
	g.FinalizeCalls++
	err := g.FinalizeErr
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	return g.Sandbox.Finalize(ctx, session, finalizationData)
}

func (g *Gateway) Cancel(ctx context.Context, session *models.PaymentSession, reference, reason string) error {
	g.mu.Lock()
	g.CancelCalls++
	g.CancelReasons = append(g.CancelReasons, reason)
	err := g.CancelErr
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return g.Sandbox.Cancel(ctx, session, reference, reason)
}

// Issuer wraps the product registry. FailCreateCall makes the n-th Create
// call (1-based) fail after the registry issued nothing for it.
type Issuer struct {
	*issuance.Registry

	mu             sync.Mutex
	FailCreateCall int
	CreateErr      error
	CancelErr      error
	createCalls    int
	Cancelled      []string
}

func (i *Issuer) Create(ctx context.Context, item models.TransactionItem, tx *models.Transaction) ([]models.IssuedProduct, error) {
	i.mu.Lock()
	i.createCalls++
	fail := i.FailCreateCall > 0 && i.createCalls == i.FailCreateCall
	err := i.CreateErr
	i.mu.Unlock()
	if fail {
		return nil, orInjected(err)
	}
	return i.Registry.Create(ctx, item, tx)
}

func (i *Issuer) Cancel(ctx context.Context, productID string, tx *models.Transaction) error {
	i.mu.Lock()
	i.Cancelled = append(i.Cancelled, productID)
	err := i.CancelErr
	i.mu.Unlock()
	if err != nil {
		return err
	}
	return i.Registry.Cancel(ctx, productID, tx)
}

// CancelledProducts returns the ids Cancel was called with.
func (i *Issuer) CancelledProducts() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.Cancelled...)
}

// Events records published events.
type Events struct {
	mu        sync.Mutex
	published []events.TransactionEvent
	Err       error
}

func (e *Events) Publish(ctx context.Context, topic, key string, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	if te, ok := event.(events.TransactionEvent); ok {
		e.published = append(e.published, te)
	}
	return nil
}

// States returns the states of published events in order.
func (e *Events) States() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.published {
		out = append(out, ev.State)
	}
	return out
}

// LedgerConflict is what the purse returns when nothing can be held.
func LedgerConflict() error {
	return apperror.New(apperror.KindLedgerConflict, "purse reserve", "no funds available")
}

// LedgerDown is an unavailable purse service.
func LedgerDown() error {
	return apperror.New(apperror.KindLedgerUnavailable, "purse", "connection refused")
}

// GatewayDown is a retryable gateway failure.
func GatewayDown() error {
	return apperror.Gateway("gateway", errors.New("503 from payment service"), true)
}
