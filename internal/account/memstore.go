package account

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory Store. All reads return copies so callers can
// never reach the internal state behind the mutex.
type MemStore struct {
	mu    sync.RWMutex
	accts map[string]*Account
}

// NewMemStore creates an empty in-memory account store.
func NewMemStore() *MemStore {
	return &MemStore{accts: make(map[string]*Account)}
}

// Create registers a new account. The initial balance must not be negative.
func (s *MemStore) Create(ctx context.Context, a *Account) error {
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accts[a.IBAN]; exists {
		return ErrDuplicateIBAN
	}

	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.accts[a.IBAN] = &cp
	return nil
}

// FindByID looks an account up by its identifier. Account identity is the
// IBAN, so this is an alias of FindByIBAN kept for the collaborator contract.
func (s *MemStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.FindByIBAN(ctx, id)
}

// FindByIBAN looks an account up by IBAN.
func (s *MemStore) FindByIBAN(ctx context.Context, iban string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accts[iban]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListByUser returns snapshots of all accounts owned by a user.
func (s *MemStore) ListByUser(ctx context.Context, userID string) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Account
	for _, a := range s.accts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Debit subtracts amount from the balance after re-checking it under the
// store lock, so the read-compare-write sequence is one atomic step.
func (s *MemStore) Debit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accts[iban]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	if a.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	a.Balance = a.Balance.Sub(amount)
	return a.Balance, nil
}

// Credit adds amount to the balance.
func (s *MemStore) Credit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accts[iban]
	if !ok {
		return decimal.Zero, ErrNotFound
	}

	a.Balance = a.Balance.Add(amount)
	return a.Balance, nil
}
