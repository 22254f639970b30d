// Package card holds card records and the credential lookup used by the
// payment authorization pipeline.
package card

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound       = errors.New("card not found")
	ErrAlreadyClaimed = errors.New("virtual card already claimed")
	ErrNotVirtual     = errors.New("card is not virtual")
)

// Card is a payment card attached to exactly one account. A blocked or
// deleted card authorizes no payment. A virtual card is valid for a single
// successful payment and is logically deleted right after it settles.
type Card struct {
	ID                 string
	AccountIBAN        string
	Number             string
	CryptoHash         []byte
	HolderName         string
	Ceiling            decimal.Decimal
	Blocked            bool
	Deleted            bool
	LocationRestricted bool
	Contactless        bool
	Virtual            bool
	CreatedAt          time.Time
}

// Usable reports whether the card may authorize a payment at all.
func (c *Card) Usable() bool {
	return !c.Blocked && !c.Deleted
}

// Registry is the card collaborator of the payment pipeline. Absence is
// reported as ErrNotFound, never as a fault.
type Registry interface {
	Create(ctx context.Context, c *Card) error
	FindByID(ctx context.Context, id string) (*Card, error)
	ListByAccount(ctx context.Context, iban string) ([]*Card, error)

	// FindByCredentials resolves a card from number, crypto and holder name.
	// All three must match exactly one card.
	FindByCredentials(ctx context.Context, number, crypto, holder string) (*Card, error)

	// SetBlocked and SetContactless flip the matching flag.
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetContactless(ctx context.Context, id string, contactless bool) error

	// Delete logically deletes a card. The record stays resolvable so that
	// payment history keeps a valid reference.
	Delete(ctx context.Context, id string) error

	// ClaimVirtual reserves a virtual card for one in-flight payment. The
	// claim succeeds at most once; a claimed card is released only through
	// ReleaseVirtual (payment rejected) or Delete (payment settled).
	ClaimVirtual(ctx context.Context, id string) error
	ReleaseVirtual(ctx context.Context, id string) error
}

// HashCrypto hashes a card crypto (CVV equivalent) for storage.
func HashCrypto(crypto string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(crypto), bcrypt.DefaultCost)
}

// CompareCrypto checks a candidate crypto against a stored hash.
func CompareCrypto(hash []byte, crypto string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(crypto)) == nil
}
