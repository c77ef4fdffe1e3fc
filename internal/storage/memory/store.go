package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sync"    // standard Go package for concurrency primitives like Mutex

	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// It stores purse entries in a slice and reservations in a map, and is thread-safe.
type MemoryLedgerStore struct {
	mu           sync.Mutex                         // protects entries and reservations
	entries      []models.LedgerEntry               // every posting, in insertion order
	reservations map[string]models.PurseReservation // keyed by purse id + reservation id
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries:      make([]models.LedgerEntry, 0),
		reservations: make(map[string]models.PurseReservation),
	}
}

func reservationKey(purseID, reservationID string) string {
	return purseID + "/" + reservationID
}

// SaveEntry appends a LedgerEntry.
func (m *MemoryLedgerStore) SaveEntry(ctx context.Context, entry models.LedgerEntry) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	return nil // always succeeds in memory
}

// GetLedgerEntries returns a copy of all entries stored in memory.
func (m *MemoryLedgerStore) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	// return a copy so external code can't modify internal state
	copied := make([]models.LedgerEntry, len(m.entries))
	copy(copied, m.entries)
	return copied, nil
}

func (m *MemoryLedgerStore) GetEntriesByPurse(ctx context.Context, purseID string) ([]models.LedgerEntry, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.LedgerEntry

	for _, e := range m.entries {
		if e.PurseID == purseID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) SaveReservation(ctx context.Context, reservation models.PurseReservation) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reservations[reservationKey(reservation.PurseID, reservation.ID)] = reservation
	return nil
}

func (m *MemoryLedgerStore) GetReservation(ctx context.Context, purseID, reservationID string) (models.PurseReservation, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationKey(purseID, reservationID)]
	if !ok {
		return models.PurseReservation{}, models.ErrReservationNotFound
	}
	return r, nil
}

func (m *MemoryLedgerStore) GetReservationsByPurse(ctx context.Context, purseID string) ([]models.PurseReservation, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.PurseReservation
	for _, r := range m.reservations {
		if r.PurseID == purseID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) DeleteReservation(ctx context.Context, purseID, reservationID string) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	key := reservationKey(purseID, reservationID)
	if _, ok := m.reservations[key]; !ok {
		return models.ErrReservationNotFound
	}
	delete(m.reservations, key)
	return nil
}

// ConsumeReservation posts entry and drops the reservation under one lock.
func (m *MemoryLedgerStore) ConsumeReservation(ctx context.Context, entry models.LedgerEntry, reservationID string) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	key := reservationKey(entry.PurseID, reservationID)
	if _, ok := m.reservations[key]; !ok {
		return models.ErrReservationNotFound
	}
	m.entries = append(m.entries, entry)
	delete(m.reservations, key)
	return nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
