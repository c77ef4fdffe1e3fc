package postgres

import (
	"context"
	"database/sql"
)

// Schema creates the tables used by the Postgres stores. Statements are
// idempotent so Migrate can run on every start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id          TEXT PRIMARY KEY,
		version     BIGINT NOT NULL,
		state       TEXT NOT NULL,
		owner_id    TEXT NOT NULL,
		wallet_id   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		document    JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_owner_idx ON transactions (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS transactions_wallet_idx ON transactions (wallet_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS purse_entries (
		id              TEXT PRIMARY KEY,
		purse_id        TEXT NOT NULL,
		transaction_id  TEXT NOT NULL DEFAULT '',
		amount          NUMERIC(18, 2) NOT NULL,
		refundable      BOOLEAN NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS purse_entries_purse_idx ON purse_entries (purse_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS purse_reservations (
		id                 TEXT NOT NULL,
		purse_id           TEXT NOT NULL,
		amount             NUMERIC(18, 2) NOT NULL,
		refundable_amount  NUMERIC(18, 2) NOT NULL,
		expire             TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (purse_id, id)
	)`,
}

// Migrate applies Schema in a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	dbTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range Schema {
		if _, err := dbTx.ExecContext(ctx, stmt); err != nil {
			dbTx.Rollback()
			return err
		}
	}
	return dbTx.Commit()
}
