package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

const defaultReservationTTL = 15 * time.Minute

// Ledger is a local purse ledger: postings and reservations per purse.
// It holds a reference to the storage layer and a mutex per purse for concurrency control.
type Ledger struct {
	store          interfaces.LedgerStore // where entries and reservations live
	muMap          map[string]*sync.Mutex // stores the *sync.Mutex for each purse in a map
	mapMu          sync.Mutex             // protects the muMap itself
	reservationTTL time.Duration
	now            func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithReservationTTL sets how long reservations hold funds.
func WithReservationTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.reservationTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a new Ledger on top of a storage implementation (memory, Postgres).
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:          store,
		muMap:          make(map[string]*sync.Mutex),
		reservationTTL: defaultReservationTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getPurseLock(purseID string) *sync.Mutex {

	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[purseID]; !exists {
		l.muMap[purseID] = &sync.Mutex{}
	}
	return l.muMap[purseID]
}

// funds summarises a purse at a point in time.
type funds struct {
	balance    decimal.Decimal // sum of all postings
	refundable decimal.Decimal // part of balance that may be paid out again
	held       decimal.Decimal // held by active reservations
	heldRefund decimal.Decimal // refundable part of held
}

func (f funds) available() decimal.Decimal {
	return f.balance.Sub(f.held)
}

func (f funds) availableRefundable() decimal.Decimal {
	r := decimal.Min(f.refundable, f.balance).Sub(f.heldRefund)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// funds must be called with the purse lock held.
func (l *Ledger) funds(ctx context.Context, purseID string) (funds, error) {
	entries, err := l.store.GetEntriesByPurse(ctx, purseID)
	if err != nil {
		return funds{}, err
	}
	reservations, err := l.store.GetReservationsByPurse(ctx, purseID)
	if err != nil {
		return funds{}, err
	}

	f := funds{balance: decimal.Zero, refundable: decimal.Zero, held: decimal.Zero, heldRefund: decimal.Zero}
	for _, e := range entries {
		f.balance = f.balance.Add(e.Amount)
		if e.Refundable {
			f.refundable = f.refundable.Add(e.Amount)
		}
	}
	now := l.now()
	for _, r := range reservations {
		if !r.Active(now) {
			continue
		}
		f.held = f.held.Add(r.Amount)
		f.heldRefund = f.heldRefund.Add(r.RefundableAmount)
	}
	return f, nil
}

// Reserve holds up to amount on the purse. Without partial the full amount
// must be available. Non-refundable funds are held before refundable ones.
func (l *Ledger) Reserve(ctx context.Context, purseID string, amount decimal.Decimal, partial bool) (models.PurseReservation, error) {
	const op = "purse reserve"
	if !amount.IsPositive() {
		return models.PurseReservation{}, apperror.Policy(op, "amount must be positive")
	}

	mu := l.getPurseLock(purseID)
	mu.Lock()
	defer mu.Unlock()

	f, err := l.funds(ctx, purseID)
	if err != nil {
		return models.PurseReservation{}, apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
	}

	available := f.available()
	if !available.IsPositive() {
		return models.PurseReservation{}, apperror.New(apperror.KindLedgerConflict, op, "no funds available")
	}
	if available.LessThan(amount) && !partial {
		return models.PurseReservation{}, apperror.New(apperror.KindLedgerConflict, op,
			fmt.Sprintf("available %s is less than requested %s", available, amount))
	}

	reserved := decimal.Min(amount, available)
	nonRefundable := available.Sub(f.availableRefundable())
	refundable := reserved.Sub(nonRefundable)
	if refundable.IsNegative() {
		refundable = decimal.Zero
	}

	now := l.now()
	reservation := models.PurseReservation{
		ID:               uuid.New().String(),
		PurseID:          purseID,
		Amount:           reserved,
		RefundableAmount: refundable,
		Expire:           now.Add(l.reservationTTL),
		CreatedAt:        now,
	}
	if err := l.store.SaveReservation(ctx, reservation); err != nil {
		return models.PurseReservation{}, apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
	}
	return reservation, nil
}

// CreateRecord posts an entry on the purse. A record referencing a
// reservation consumes it and may not exceed it; an unreserved debit needs
// available funds.
func (l *Ledger) CreateRecord(ctx context.Context, purseID string, record models.NewPurseRecord) (string, error) {
	const op = "purse record"
	if record.Amount.IsZero() {
		return "", apperror.Policy(op, "amount must not be zero")
	}

	mu := l.getPurseLock(purseID)
	mu.Lock()
	defer mu.Unlock()

	entry := models.LedgerEntry{
		ID:            uuid.New().String(),
		PurseID:       purseID,
		TransactionID: record.TransactionID,
		Amount:        record.Amount,
		Refundable:    record.Refundable,
		CreatedAt:     l.now(),
	}

	if record.ReservationID == "" {
		if record.Amount.IsNegative() {
			f, err := l.funds(ctx, purseID)
			if err != nil {
				return "", apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
			}
			if f.available().LessThan(record.Amount.Neg()) {
				return "", apperror.New(apperror.KindLedgerConflict, op, "insufficient purse funds")
			}
		}
		if err := l.store.SaveEntry(ctx, entry); err != nil {
			return "", apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
		}
		return entry.ID, nil
	}

	if record.Amount.IsPositive() {
		return "", apperror.Policy(op, "only a debit can consume a reservation")
	}
	reservation, err := l.store.GetReservation(ctx, purseID, record.ReservationID)
	if err != nil {
		if errors.Is(err, models.ErrReservationNotFound) {
			return "", apperror.New(apperror.KindLedgerConflict, op, "reservation "+record.ReservationID+" not found")
		}
		return "", apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
	}
	if !reservation.Active(entry.CreatedAt) {
		// Expired holds no longer count against the purse; drop the row so it
		// can't be consumed later either.
		if err := l.store.DeleteReservation(ctx, purseID, reservation.ID); err != nil && !errors.Is(err, models.ErrReservationNotFound) {
			return "", apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
		}
		return "", apperror.New(apperror.KindLedgerConflict, op, "reservation "+reservation.ID+" expired")
	}
	if record.Amount.Neg().GreaterThan(reservation.Amount) {
		return "", apperror.New(apperror.KindLedgerConflict, op,
			fmt.Sprintf("debit %s exceeds reserved %s", record.Amount.Neg(), reservation.Amount))
	}

	if err := l.store.ConsumeReservation(ctx, entry, reservation.ID); err != nil {
		if errors.Is(err, models.ErrReservationNotFound) {
			return "", apperror.New(apperror.KindLedgerConflict, op, "reservation "+reservation.ID+" not found")
		}
		return "", apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
	}
	return entry.ID, nil
}

// DeleteReservation releases a hold without posting anything.
func (l *Ledger) DeleteReservation(ctx context.Context, purseID, reservationID string) error {
	const op = "purse release"

	mu := l.getPurseLock(purseID)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.DeleteReservation(ctx, purseID, reservationID); err != nil {
		if errors.Is(err, models.ErrReservationNotFound) {
			return apperror.New(apperror.KindLedgerConflict, op, "reservation "+reservationID+" not found")
		}
		return apperror.Wrap(apperror.KindLedgerUnavailable, op, err)
	}
	return nil
}

// TopUp credits a purse, e.g. from a bank transfer.
func (l *Ledger) TopUp(ctx context.Context, purseID string, amount decimal.Decimal, refundable bool) (string, error) {
	if !amount.IsPositive() {
		return "", apperror.Policy("purse top-up", "amount must be positive")
	}
	return l.CreateRecord(ctx, purseID, models.NewPurseRecord{Amount: amount, Refundable: refundable})
}

// GetBalance returns the posted balance of a purse.
func (l *Ledger) GetBalance(ctx context.Context, purseID string) (decimal.Decimal, error) {
	entries, err := l.store.GetEntriesByPurse(ctx, purseID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, entry := range entries {
		balance = balance.Add(entry.Amount)
	}
	return balance, nil
}

// GetAvailable returns the balance not held by active reservations.
func (l *Ledger) GetAvailable(ctx context.Context, purseID string) (decimal.Decimal, error) {
	mu := l.getPurseLock(purseID)
	mu.Lock()
	defer mu.Unlock()

	f, err := l.funds(ctx, purseID)
	if err != nil {
		return decimal.Zero, err
	}
	return f.available(), nil
}

func (l *Ledger) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	ledgerEntries, err := l.store.GetLedgerEntries(ctx)
	if err != nil {
		return []models.LedgerEntry{}, err
	}
	return ledgerEntries, nil
}

var _ interfaces.Purse = (*Ledger)(nil)
