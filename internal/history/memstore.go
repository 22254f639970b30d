package history

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store. Entries are append-only; reads hand out
// copies so recorded facts cannot be mutated from outside.
type MemStore struct {
	mu         sync.RWMutex
	operations []Operation
	paiements  []Paiement
}

// NewMemStore creates an empty in-memory record store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// RecordOperation appends a settled operation.
func (s *MemStore) RecordOperation(ctx context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, *op)
	return nil
}

// RecordPaiement appends a settled card payment.
func (s *MemStore) RecordPaiement(ctx context.Context, p *Paiement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paiements = append(s.paiements, *p)
	return nil
}

// OperationByID returns one operation scoped to the account it debited or
// credited.
func (s *MemStore) OperationByID(ctx context.Context, id, accountIBAN string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.operations {
		op := s.operations[i]
		if op.ID == id && (op.DebtorIBAN == accountIBAN || op.CreditorIBAN == accountIBAN) {
			return &op, nil
		}
	}
	return nil, ErrNotFound
}

// OperationsByAccount returns all operations touching an account.
func (s *MemStore) OperationsByAccount(ctx context.Context, iban string) ([]*Operation, error) {
	return s.filterOperations(func(op *Operation) bool {
		return op.DebtorIBAN == iban || op.CreditorIBAN == iban
	}), nil
}

// OperationsByAccountAndCategory filters an account's operations by category.
func (s *MemStore) OperationsByAccountAndCategory(ctx context.Context, iban, category string) ([]*Operation, error) {
	return s.filterOperations(func(op *Operation) bool {
		return (op.DebtorIBAN == iban || op.CreditorIBAN == iban) && op.Category == category
	}), nil
}

func (s *MemStore) filterOperations(keep func(*Operation) bool) []*Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Operation
	for i := range s.operations {
		op := s.operations[i]
		if keep(&op) {
			out = append(out, &op)
		}
	}
	return out
}

// PaiementByID returns one payment scoped to the card that made it.
func (s *MemStore) PaiementByID(ctx context.Context, id, cardID string) (*Paiement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.paiements {
		p := s.paiements[i]
		if p.ID == id && p.CardID == cardID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// PaiementsByCard returns all payments made with a card.
func (s *MemStore) PaiementsByCard(ctx context.Context, cardID string) ([]*Paiement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Paiement
	for i := range s.paiements {
		p := s.paiements[i]
		if p.CardID == cardID {
			out = append(out, &p)
		}
	}
	return out, nil
}
