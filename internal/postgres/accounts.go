// Package postgres implements the account store, the card registry and the
// record store on PostgreSQL. Row locks serialize balance mutations at the
// database, matching the per-account discipline of the ledger engine.
//
// Expected tables: accounts (iban PK, user_id, country, balance NUMERIC,
// secret_hash BYTEA, created_at), cards (id PK, account_iban FK, number,
// crypto_hash BYTEA, holder_name, ceiling NUMERIC, blocked, deleted,
// location_restricted, contactless, virtual, claimed, created_at),
// operations and paiements keyed by id.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/bankledger/internal/account"
)

// AccountStore is the PostgreSQL account.Store.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore wraps an open database handle.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a *account.Account) error {
	if a.Balance.IsNegative() {
		return account.ErrNegativeBalance
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (iban, user_id, country, balance, secret_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.IBAN, a.UserID, a.Country, a.Balance, a.SecretHash, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByID resolves an account by its identifier (the IBAN).
func (s *AccountStore) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.FindByIBAN(ctx, id)
}

// FindByIBAN resolves an account by IBAN.
func (s *AccountStore) FindByIBAN(ctx context.Context, iban string) (*account.Account, error) {
	var a account.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT iban, user_id, country, balance, secret_hash, created_at
		 FROM accounts WHERE iban = $1`,
		iban,
	).Scan(&a.IBAN, &a.UserID, &a.Country, &a.Balance, &a.SecretHash, &a.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// ListByUser returns all accounts owned by a user.
func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iban, user_id, country, balance, secret_hash, created_at
		 FROM accounts WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		var a account.Account
		if err := rows.Scan(&a.IBAN, &a.UserID, &a.Country, &a.Balance, &a.SecretHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Debit locks the account row, re-checks the balance and subtracts the
// amount in one transaction.
func (s *AccountStore) Debit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.applyDelta(ctx, iban, amount.Neg())
}

// Credit locks the account row and adds the amount.
func (s *AccountStore) Credit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.applyDelta(ctx, iban, amount)
}

func (s *AccountStore) applyDelta(ctx context.Context, iban string, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE iban = $1 FOR UPDATE`,
		iban,
	).Scan(&balance)

	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, account.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock account: %w", err)
	}

	newBalance := balance.Add(delta)
	if newBalance.IsNegative() {
		return decimal.Zero, account.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE iban = $2`,
		newBalance, iban,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit: %w", err)
	}
	return newBalance, nil
}
