package interfaces

import (
	"context"

	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// LedgerStore persists purse postings and reservations for the local purse ledger.
type LedgerStore interface {
	SaveEntry(ctx context.Context, entry models.LedgerEntry) error
	GetEntriesByPurse(ctx context.Context, purseID string) ([]models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)

	SaveReservation(ctx context.Context, reservation models.PurseReservation) error
	GetReservation(ctx context.Context, purseID, reservationID string) (models.PurseReservation, error)
	GetReservationsByPurse(ctx context.Context, purseID string) ([]models.PurseReservation, error)
	DeleteReservation(ctx context.Context, purseID, reservationID string) error
	// ConsumeReservation saves entry and deletes the reservation atomically.
	// It fails with models.ErrReservationNotFound, saving nothing, when the
	// reservation is gone.
	ConsumeReservation(ctx context.Context, entry models.LedgerEntry, reservationID string) error
}
