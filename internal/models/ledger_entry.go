package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrReservationNotFound is returned by ledger stores for unknown reservations.
var ErrReservationNotFound = errors.New("purse reservation not found")

// LedgerEntry represents a single posting on a purse
type LedgerEntry struct {
	ID            string          // unique identifier
	PurseID       string          // which purse this entry belongs to
	TransactionID string          // purchase that caused the posting, if any
	Amount        decimal.Decimal // negative for debits
	Refundable    bool            // whether the funds may be paid out again
	CreatedAt     time.Time
}

// PurseReservation is a hold on purse funds that is either converted into a
// debit entry or deleted.
type PurseReservation struct {
	ID               string
	PurseID          string
	Amount           decimal.Decimal
	RefundableAmount decimal.Decimal
	Expire           time.Time
	CreatedAt        time.Time
}

// Active reports whether the reservation still holds funds at now.
func (r PurseReservation) Active(now time.Time) bool {
	return now.Before(r.Expire)
}
