package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/terminal-bench/bankledger/internal/history"
)

// RecordStore is the PostgreSQL history.Store. Rows are insert-only; there
// is no update path, matching the immutability of settled records.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore wraps an open database handle.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// RecordOperation inserts a settled operation.
func (s *RecordStore) RecordOperation(ctx context.Context, op *history.Operation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (id, ts, label, amount, rate, debtor_iban, creditor_iban, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		op.ID, op.Timestamp, op.Label, op.Amount, op.Rate, op.DebtorIBAN, op.CreditorIBAN, op.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

// RecordPaiement inserts a settled card payment.
func (s *RecordStore) RecordPaiement(ctx context.Context, p *history.Paiement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paiements (id, card_id, amount, country, debtor_iban, creditor_iban, rate, ts, label, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.CardID, p.Amount, p.Country, p.DebtorIBAN, p.CreditorIBAN, p.Rate, p.Timestamp, p.Label, p.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to record paiement: %w", err)
	}
	return nil
}

const operationColumns = `id, ts, label, amount, rate, debtor_iban, creditor_iban, category`

func scanOperation(row interface{ Scan(...interface{}) error }) (*history.Operation, error) {
	var op history.Operation
	err := row.Scan(&op.ID, &op.Timestamp, &op.Label, &op.Amount, &op.Rate,
		&op.DebtorIBAN, &op.CreditorIBAN, &op.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}
	return &op, nil
}

// OperationByID returns one operation scoped to an account.
func (s *RecordStore) OperationByID(ctx context.Context, id, accountIBAN string) (*history.Operation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE id = $1 AND (debtor_iban = $2 OR creditor_iban = $2)`,
		id, accountIBAN,
	)
	return scanOperation(row)
}

// OperationsByAccount returns all operations touching an account.
func (s *RecordStore) OperationsByAccount(ctx context.Context, iban string) ([]*history.Operation, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE debtor_iban = $1 OR creditor_iban = $1 ORDER BY ts DESC`,
		iban,
	)
}

// OperationsByAccountAndCategory filters an account's operations by category.
func (s *RecordStore) OperationsByAccountAndCategory(ctx context.Context, iban, category string) ([]*history.Operation, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE (debtor_iban = $1 OR creditor_iban = $1) AND category = $2 ORDER BY ts DESC`,
		iban, category,
	)
}

func (s *RecordStore) queryOperations(ctx context.Context, query string, args ...interface{}) ([]*history.Operation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var out []*history.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

const paiementColumns = `id, card_id, amount, country, debtor_iban, creditor_iban, rate, ts, label, category`

func scanPaiement(row interface{ Scan(...interface{}) error }) (*history.Paiement, error) {
	var p history.Paiement
	err := row.Scan(&p.ID, &p.CardID, &p.Amount, &p.Country, &p.DebtorIBAN,
		&p.CreditorIBAN, &p.Rate, &p.Timestamp, &p.Label, &p.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan paiement: %w", err)
	}
	return &p, nil
}

// PaiementByID returns one payment scoped to a card.
func (s *RecordStore) PaiementByID(ctx context.Context, id, cardID string) (*history.Paiement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paiementColumns+` FROM paiements WHERE id = $1 AND card_id = $2`,
		id, cardID,
	)
	return scanPaiement(row)
}

// PaiementsByCard returns all payments made with a card.
func (s *RecordStore) PaiementsByCard(ctx context.Context, cardID string) ([]*history.Paiement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paiementColumns+` FROM paiements WHERE card_id = $1 ORDER BY ts DESC`,
		cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query paiements: %w", err)
	}
	defer rows.Close()

	var out []*history.Paiement
	for rows.Next() {
		p, err := scanPaiement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
