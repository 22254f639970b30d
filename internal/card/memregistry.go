package card

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemRegistry is an in-memory Registry. Reads return copies.
type MemRegistry struct {
	mu      sync.RWMutex
	cards   map[string]*Card
	claimed map[string]bool
}

// NewMemRegistry creates an empty in-memory card registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		cards:   make(map[string]*Card),
		claimed: make(map[string]bool),
	}
}

// Create registers a new card. An empty ID gets a generated one.
func (r *MemRegistry) Create(ctx context.Context, c *Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.cards[cp.ID] = &cp
	c.ID = cp.ID
	return nil
}

// FindByID looks a card up by id.
func (r *MemRegistry) FindByID(ctx context.Context, id string) (*Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListByAccount returns snapshots of all cards attached to an account.
func (r *MemRegistry) ListByAccount(ctx context.Context, iban string) ([]*Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Card
	for _, c := range r.cards {
		if c.AccountIBAN == iban {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// FindByCredentials resolves a card from number, crypto and holder name.
// The crypto is compared against the stored bcrypt hash; number and holder
// use exact content equality.
func (r *MemRegistry) FindByCredentials(ctx context.Context, number, crypto, holder string) (*Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.cards {
		if c.Number != number || c.HolderName != holder {
			continue
		}
		if !CompareCrypto(c.CryptoHash, crypto) {
			continue
		}
		cp := *c
		return &cp, nil
	}
	return nil, ErrNotFound
}

// SetBlocked flips the blocked flag.
func (r *MemRegistry) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.update(id, func(c *Card) { c.Blocked = blocked })
}

// SetContactless flips the contactless flag.
func (r *MemRegistry) SetContactless(ctx context.Context, id string, contactless bool) error {
	return r.update(id, func(c *Card) { c.Contactless = contactless })
}

// Delete logically deletes a card. The record stays in the registry.
func (r *MemRegistry) Delete(ctx context.Context, id string) error {
	return r.update(id, func(c *Card) { c.Deleted = true })
}

func (r *MemRegistry) update(id string, fn func(*Card)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cards[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}

// ClaimVirtual reserves a virtual card for one in-flight payment. The check
// and the claim happen under the registry lock, so exactly one concurrent
// payment can win the card.
func (r *MemRegistry) ClaimVirtual(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cards[id]
	if !ok {
		return ErrNotFound
	}
	if !c.Virtual {
		return ErrNotVirtual
	}
	if c.Deleted || r.claimed[id] {
		return ErrAlreadyClaimed
	}

	r.claimed[id] = true
	return nil
}

// ReleaseVirtual gives a claimed virtual card back after a rejected payment.
func (r *MemRegistry) ReleaseVirtual(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cards[id]; !ok {
		return ErrNotFound
	}
	delete(r.claimed, id)
	return nil
}
