// Package history records settled operations and card payments as immutable
// facts. Records are written only after the ledger engine commits, never
// speculatively, and never mutated afterwards.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("record not found")

// Operation is a settled direct account-to-account transfer.
type Operation struct {
	ID           string
	Timestamp    time.Time
	Label        string
	Amount       decimal.Decimal
	Rate         decimal.Decimal
	DebtorIBAN   string
	CreditorIBAN string
	Category     string
}

// Paiement is a settled card payment.
type Paiement struct {
	ID           string
	CardID       string
	Amount       decimal.Decimal
	Country      string
	DebtorIBAN   string
	CreditorIBAN string
	Rate         decimal.Decimal
	Timestamp    time.Time
	Label        string
	Category     string
}

// Recorder is the write side used by the ledger engine and the payment
// pipeline once a settlement has committed.
type Recorder interface {
	RecordOperation(ctx context.Context, op *Operation) error
	RecordPaiement(ctx context.Context, p *Paiement) error
}

// Store adds the read paths used by the request handling layer.
type Store interface {
	Recorder

	OperationByID(ctx context.Context, id, accountIBAN string) (*Operation, error)
	OperationsByAccount(ctx context.Context, iban string) ([]*Operation, error)
	OperationsByAccountAndCategory(ctx context.Context, iban, category string) ([]*Operation, error)

	PaiementByID(ctx context.Context, id, cardID string) (*Paiement, error)
	PaiementsByCard(ctx context.Context, cardID string) ([]*Paiement, error)
}
