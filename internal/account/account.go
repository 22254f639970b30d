// Package account holds bank accounts and the balance mutation primitives
// used by the ledger engine. Balances are decimals and never drop below zero.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateIBAN     = errors.New("iban already registered")
	ErrNegativeBalance   = errors.New("initial balance must not be negative")
)

// Account is a bank account. The IBAN is the identity; balances are mutated
// only through Store.Debit and Store.Credit, which the ledger engine calls
// under its per-account locks.
type Account struct {
	IBAN       string
	UserID     string
	Country    string
	Balance    decimal.Decimal
	SecretHash []byte
	CreatedAt  time.Time
}

// Store is the account collaborator used by the ledger engine and the
// payment pipeline. Absence is reported as ErrNotFound, never as a fault.
type Store interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByIBAN(ctx context.Context, iban string) (*Account, error)
	ListByUser(ctx context.Context, userID string) ([]*Account, error)

	// Debit atomically checks balance >= amount and subtracts it, returning
	// the new balance. Returns ErrInsufficientFunds without mutating when the
	// check fails.
	Debit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error)

	// Credit atomically adds amount to the balance, returning the new balance.
	Credit(ctx context.Context, iban string, amount decimal.Decimal) (decimal.Decimal, error)
}

// NewIBAN generates an IBAN-like identifier for a fresh account in the given
// country. Not a checksum-valid IBAN, unique enough for account identity.
func NewIBAN(country string) string {
	cc := strings.ToUpper(country)
	if len(cc) > 2 {
		cc = cc[:2]
	}

	digits := make([]byte, 20)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(fmt.Sprintf("iban entropy unavailable: %v", err))
		}
		digits[i] = byte('0' + n.Int64())
	}

	return fmt.Sprintf("%s76%s", cc, string(digits))
}
