package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-bench/bankledger/internal/card"
)

// CardStore is the PostgreSQL card.Registry.
type CardStore struct {
	db *sql.DB
}

// NewCardStore wraps an open database handle.
func NewCardStore(db *sql.DB) *CardStore {
	return &CardStore{db: db}
}

const cardColumns = `id, account_iban, number, crypto_hash, holder_name, ceiling,
	blocked, deleted, location_restricted, contactless, virtual, created_at`

func scanCard(row interface{ Scan(...interface{}) error }) (*card.Card, error) {
	var c card.Card
	err := row.Scan(&c.ID, &c.AccountIBAN, &c.Number, &c.CryptoHash, &c.HolderName,
		&c.Ceiling, &c.Blocked, &c.Deleted, &c.LocationRestricted, &c.Contactless,
		&c.Virtual, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, card.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	return &c, nil
}

// Create inserts a new card.
func (s *CardStore) Create(ctx context.Context, c *card.Card) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, account_iban, number, crypto_hash, holder_name, ceiling,
		 blocked, deleted, location_restricted, contactless, virtual, claimed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12)`,
		c.ID, c.AccountIBAN, c.Number, c.CryptoHash, c.HolderName, c.Ceiling,
		c.Blocked, c.Deleted, c.LocationRestricted, c.Contactless, c.Virtual, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// FindByID resolves a card by id.
func (s *CardStore) FindByID(ctx context.Context, id string) (*card.Card, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	return scanCard(row)
}

// ListByAccount returns all cards attached to an account.
func (s *CardStore) ListByAccount(ctx context.Context, iban string) ([]*card.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE account_iban = $1 ORDER BY created_at`,
		iban,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var out []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByCredentials resolves a card by number and holder name, then verifies
// the crypto against the stored hash. The hash never leaves this method.
func (s *CardStore) FindByCredentials(ctx context.Context, number, crypto, holder string) (*card.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE number = $1 AND holder_name = $2`,
		number, holder,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		if card.CompareCrypto(c.CryptoHash, crypto) {
			return c, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return nil, card.ErrNotFound
}

// SetBlocked flips the blocked flag.
func (s *CardStore) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return s.setFlag(ctx, id, "blocked", blocked)
}

// SetContactless flips the contactless flag.
func (s *CardStore) SetContactless(ctx context.Context, id string, contactless bool) error {
	return s.setFlag(ctx, id, "contactless", contactless)
}

// Delete logically deletes a card.
func (s *CardStore) Delete(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "deleted", true)
}

func (s *CardStore) setFlag(ctx context.Context, id, column string, value bool) error {
	// column is always one of the fixed flag names above, never user input.
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE cards SET %s = $1 WHERE id = $2`, column),
		value, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return card.ErrNotFound
	}
	return nil
}

// ClaimVirtual reserves a virtual card for one in-flight payment. The claim
// is a compare-and-set on the claimed column, so exactly one concurrent
// payment can win the card.
func (s *CardStore) ClaimVirtual(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cards SET claimed = true
		 WHERE id = $1 AND virtual AND NOT deleted AND NOT claimed`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to claim card: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	c, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !c.Virtual {
		return card.ErrNotVirtual
	}
	return card.ErrAlreadyClaimed
}

// ReleaseVirtual gives a claimed virtual card back after a rejected payment.
func (s *CardStore) ReleaseVirtual(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cards SET claimed = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release card: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return card.ErrNotFound
	}
	return nil
}
