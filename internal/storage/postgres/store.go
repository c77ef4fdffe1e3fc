package postgres

import (
	"context"
	"database/sql"
	"errors"

	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

func (p *PostgresLedgerStore) SaveEntry(ctx context.Context, entry models.LedgerEntry) error {
	const query = `INSERT INTO purse_entries (id, purse_id, transaction_id, amount, refundable, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := p.db.ExecContext(ctx, query, entry.ID, entry.PurseID, entry.TransactionID, entry.Amount, entry.Refundable, entry.CreatedAt)
	return err
}

func (p *PostgresLedgerStore) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {

	const query = `SELECT id, purse_id, transaction_id, amount, refundable, created_at FROM purse_entries
	ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresLedgerStore) GetEntriesByPurse(ctx context.Context, purseID string) ([]models.LedgerEntry, error) {
	const query = `SELECT id, purse_id, transaction_id, amount, refundable, created_at FROM purse_entries
	WHERE purse_id = $1 ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query, purseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.PurseID, &entry.TransactionID, &entry.Amount, &entry.Refundable, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PostgresLedgerStore) SaveReservation(ctx context.Context, r models.PurseReservation) error {
	const query = `INSERT INTO purse_reservations (id, purse_id, amount, refundable_amount, expire, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := p.db.ExecContext(ctx, query, r.ID, r.PurseID, r.Amount, r.RefundableAmount, r.Expire, r.CreatedAt)
	return err
}

func (p *PostgresLedgerStore) GetReservation(ctx context.Context, purseID, reservationID string) (models.PurseReservation, error) {
	const query = `SELECT id, purse_id, amount, refundable_amount, expire, created_at FROM purse_reservations
	WHERE purse_id = $1 AND id = $2`

	var r models.PurseReservation
	err := p.db.QueryRowContext(ctx, query, purseID, reservationID).
		Scan(&r.ID, &r.PurseID, &r.Amount, &r.RefundableAmount, &r.Expire, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PurseReservation{}, models.ErrReservationNotFound
	}
	if err != nil {
		return models.PurseReservation{}, err
	}
	return r, nil
}

func (p *PostgresLedgerStore) GetReservationsByPurse(ctx context.Context, purseID string) ([]models.PurseReservation, error) {
	const query = `SELECT id, purse_id, amount, refundable_amount, expire, created_at FROM purse_reservations
	WHERE purse_id = $1`

	rows, err := p.db.QueryContext(ctx, query, purseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.PurseReservation
	for rows.Next() {
		var r models.PurseReservation
		if err := rows.Scan(&r.ID, &r.PurseID, &r.Amount, &r.RefundableAmount, &r.Expire, &r.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

func (p *PostgresLedgerStore) DeleteReservation(ctx context.Context, purseID, reservationID string) error {
	const query = `DELETE FROM purse_reservations WHERE purse_id = $1 AND id = $2`

	res, err := p.db.ExecContext(ctx, query, purseID, reservationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrReservationNotFound
	}
	return nil
}

// ConsumeReservation inserts the entry and deletes the reservation in one
// database transaction.
func (p *PostgresLedgerStore) ConsumeReservation(ctx context.Context, entry models.LedgerEntry, reservationID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM purse_reservations WHERE purse_id = $1 AND id = $2`,
		entry.PurseID, reservationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrReservationNotFound
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO purse_entries (id, purse_id, transaction_id, amount, refundable, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.PurseID, entry.TransactionID, entry.Amount, entry.Refundable, entry.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
