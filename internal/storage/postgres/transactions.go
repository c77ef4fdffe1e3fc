package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

const uniqueViolation = pq.ErrorCode("23505")

// TransactionStore keeps each transaction as a JSONB document next to the
// columns it is queried and versioned by.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	const query = `INSERT INTO transactions (id, version, state, owner_id, wallet_id, created_at, document)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

	tx.Version = 1
	doc, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, tx.ID, tx.Version, tx.State, tx.OwnerID, tx.WalletID, tx.CreatedAt, doc)
	if isUniqueViolation(err) {
		return apperror.Conflict("create transaction", "transaction "+tx.ID+" already exists")
	}
	return err
}

func (s *TransactionStore) Load(ctx context.Context, id string) (*models.Transaction, error) {
	const query = `SELECT version, document FROM transactions WHERE id = $1`

	var version int64
	var doc []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("load transaction", "transaction "+id+" not found")
	}
	if err != nil {
		return nil, err
	}
	return decode(version, doc)
}

// Save writes tx if nobody saved it since it was loaded.
func (s *TransactionStore) Save(ctx context.Context, tx *models.Transaction) error {
	const query = `UPDATE transactions SET version = $1, state = $2, wallet_id = $3, document = $4
	WHERE id = $5 AND version = $6`

	next := *tx
	next.Version = tx.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, next.Version, tx.State, tx.WalletID, doc, tx.ID, tx.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = $1`, tx.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("save transaction", "transaction "+tx.ID+" not found")
		}
		if err != nil {
			return err
		}
		return apperror.Concurrency("save transaction", "transaction "+tx.ID+" was modified concurrently")
	}
	tx.Version = next.Version
	return nil
}

func (s *TransactionStore) List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var version int64
		var doc []byte
		if err := rows.Scan(&version, &doc); err != nil {
			return nil, err
		}
		tx, err := decode(version, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildListQuery turns filter into a parameterised query, newest first.
func buildListQuery(filter models.TransactionFilter) (string, []any, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.After != nil {
		where = append(where, "created_at >= "+arg(*filter.After))
	}
	if filter.Before != nil {
		where = append(where, "created_at < "+arg(*filter.Before))
	}
	if filter.WalletID != "" {
		where = append(where, "wallet_id = "+arg(filter.WalletID))
	}
	if filter.PartyID != "" {
		p := arg(filter.PartyID)
		where = append(where, "(owner_id = "+p+" OR document->>'recipient_id' = "+p+")")
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		where = append(where, "state = ANY("+arg(pq.Array(states))+")")
	}
	if filter.MtbProductID != "" {
		contains, err := json.Marshal([]map[string][]string{{"mtb_product_ids": {filter.MtbProductID}}})
		if err != nil {
			return "", nil, err
		}
		where = append(where, "document->'items' @> "+arg(string(contains))+"::jsonb")
	}

	var b strings.Builder
	b.WriteString("SELECT version, document FROM transactions")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args, nil
}

func decode(version int64, doc []byte) (*models.Transaction, error) {
	var tx models.Transaction
	if err := json.Unmarshal(doc, &tx); err != nil {
		return nil, err
	}
	tx.Version = version
	return &tx, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ interfaces.TransactionStore = (*TransactionStore)(nil)
