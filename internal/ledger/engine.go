// Package ledger implements the atomic dual-entry balance transfer at the
// heart of the bank. Funds are neither created nor destroyed: the debit leg
// is always exactly the requested amount and the credit leg is the amount
// adjusted by the rate, applied as a single indivisible unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/pkg/messaging"
	"github.com/terminal-bench/bankledger/pkg/money"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("rate must be positive")
	ErrSameAccount   = errors.New("source and destination are the same account")
)

// Publisher is the event sink notified after a settlement commits.
// messaging.Client satisfies it; a nil Publisher disables publishing.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Settlement is the result of one committed transfer: both new balances and
// the exact amounts applied to each leg.
type Settlement struct {
	DebtorIBAN      string
	CreditorIBAN    string
	Amount          decimal.Decimal
	Rate            decimal.Decimal
	CreditAmount    decimal.Decimal
	DebtorBalance   decimal.Decimal
	CreditorBalance decimal.Decimal
	SettledAt       time.Time
}

// TransferInput describes a direct transfer request.
type TransferInput struct {
	DebtorIBAN   string
	CreditorIBAN string
	Amount       decimal.Decimal
	Rate         decimal.Decimal
	Label        string
	Category     string
}

// lockStripes is the fixed number of account lock stripes. Accounts hash
// onto stripes, so memory stays constant no matter how many accounts the
// engine has ever touched.
const lockStripes = 64

// Engine serializes balance mutations per account and applies both legs of a
// transfer, or neither. Stripes are always acquired in index order, so
// opposite-direction transfers between the same pair cannot deadlock.
type Engine struct {
	accounts account.Store
	records  history.Recorder
	events   Publisher
	log      *zap.Logger

	locks [lockStripes]sync.Mutex
}

// NewEngine creates a ledger engine over the given account store. records
// and events may be nil when no record writer or event sink is attached.
func NewEngine(accounts account.Store, records history.Recorder, events Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		accounts: accounts,
		records:  records,
		events:   events,
		log:      log,
	}
}

func stripeFor(iban string) int {
	h := fnv.New32a()
	h.Write([]byte(iban))
	return int(h.Sum32() % lockStripes)
}

// lockPair acquires the stripes guarding both accounts in index order and
// returns the matching unlock. Accounts sharing a stripe take it once.
func (e *Engine) lockPair(a, b string) func() {
	i, j := stripeFor(a), stripeFor(b)
	if i == j {
		e.locks[i].Lock()
		return func() { e.locks[i].Unlock() }
	}
	if j < i {
		i, j = j, i
	}
	e.locks[i].Lock()
	e.locks[j].Lock()
	return func() {
		e.locks[j].Unlock()
		e.locks[i].Unlock()
	}
}

// Settle atomically debits the debtor account by amount and credits the
// creditor account by amount adjusted by rate. On any failure after the
// debit, the debit is compensated before returning; no observer ever sees
// one leg applied without the other.
func (e *Engine) Settle(ctx context.Context, debtorIBAN, creditorIBAN string, amount, rate decimal.Decimal) (*Settlement, error) {
	return e.SettleWith(ctx, debtorIBAN, creditorIBAN, amount, rate, nil)
}

// SettleWith settles like Settle and then runs commit while both account
// stripes are still held. If commit fails, both legs are reversed before
// returning, so the caller observes either a settled-and-committed transfer
// or no balance change at all.
func (e *Engine) SettleWith(ctx context.Context, debtorIBAN, creditorIBAN string, amount, rate decimal.Decimal, commit func(*Settlement) error) (*Settlement, error) {
	if !money.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	if !money.Positive(rate) {
		return nil, ErrInvalidRate
	}
	if debtorIBAN == creditorIBAN {
		return nil, ErrSameAccount
	}

	unlock := e.lockPair(debtorIBAN, creditorIBAN)
	defer unlock()

	// Resolve the creditor before touching any balance so a missing
	// destination rejects without a debit to roll back.
	if _, err := e.accounts.FindByIBAN(ctx, creditorIBAN); err != nil {
		return nil, fmt.Errorf("creditor account: %w", err)
	}

	debtorBalance, err := e.accounts.Debit(ctx, debtorIBAN, amount)
	if err != nil {
		return nil, fmt.Errorf("debit %s: %w", debtorIBAN, err)
	}

	creditAmount := money.CreditLeg(amount, rate)
	creditorBalance, err := e.accounts.Credit(ctx, creditorIBAN, creditAmount)
	if err != nil {
		// The credit leg failed after the debit was applied. Compensate the
		// debit so the transfer stays all-or-nothing.
		if _, rbErr := e.accounts.Credit(ctx, debtorIBAN, amount); rbErr != nil {
			e.log.Error("failed to compensate debit",
				zap.String("debtor_iban", debtorIBAN),
				zap.String("amount", amount.String()),
				zap.Error(rbErr))
		}
		return nil, fmt.Errorf("credit %s: %w", creditorIBAN, err)
	}

	s := &Settlement{
		DebtorIBAN:      debtorIBAN,
		CreditorIBAN:    creditorIBAN,
		Amount:          amount,
		Rate:            rate,
		CreditAmount:    creditAmount,
		DebtorBalance:   debtorBalance,
		CreditorBalance: creditorBalance,
		SettledAt:       time.Now(),
	}

	if commit != nil {
		if err := commit(s); err != nil {
			// Both legs applied but the commit step failed. The stripes are
			// still held, so nothing else touched either account and the
			// reversal cannot underflow.
			e.reverse(ctx, s)
			return nil, err
		}
	}

	return s, nil
}

// reverse undoes both legs of a settlement. Called only while the account
// stripes are still held.
func (e *Engine) reverse(ctx context.Context, s *Settlement) {
	if _, err := e.accounts.Debit(ctx, s.CreditorIBAN, s.CreditAmount); err != nil {
		e.log.Error("failed to reverse credit leg",
			zap.String("creditor_iban", s.CreditorIBAN),
			zap.String("amount", s.CreditAmount.String()),
			zap.Error(err))
	}
	if _, err := e.accounts.Credit(ctx, s.DebtorIBAN, s.Amount); err != nil {
		e.log.Error("failed to reverse debit leg",
			zap.String("debtor_iban", s.DebtorIBAN),
			zap.String("amount", s.Amount.String()),
			zap.Error(err))
	}
}

// Transfer settles a direct transfer and records it as an immutable
// Operation while the account stripes are still held, so a failed record
// write reverses the settlement instead of leaving moved balances behind.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (*history.Operation, *Settlement, error) {
	var op *history.Operation
	settlement, err := e.SettleWith(ctx, in.DebtorIBAN, in.CreditorIBAN, in.Amount, in.Rate, func(s *Settlement) error {
		op = &history.Operation{
			ID:           uuid.New().String(),
			Timestamp:    s.SettledAt,
			Label:        in.Label,
			Amount:       s.Amount,
			Rate:         s.Rate,
			DebtorIBAN:   s.DebtorIBAN,
			CreditorIBAN: s.CreditorIBAN,
			Category:     in.Category,
		}
		if e.records != nil {
			if err := e.records.RecordOperation(ctx, op); err != nil {
				return fmt.Errorf("record operation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.publishSettled(ctx, op, settlement)

	e.log.Info("transfer settled",
		zap.String("operation_id", op.ID),
		zap.String("debtor_iban", op.DebtorIBAN),
		zap.String("creditor_iban", op.CreditorIBAN),
		zap.String("amount", op.Amount.String()))

	return op, settlement, nil
}

func (e *Engine) publishSettled(ctx context.Context, op *history.Operation, s *Settlement) {
	if e.events == nil {
		return
	}

	event := messaging.TransferSettledEvent{
		EventID:      messaging.NewEventID(),
		OperationID:  op.ID,
		DebtorIBAN:   s.DebtorIBAN,
		CreditorIBAN: s.CreditorIBAN,
		Amount:       s.Amount.String(),
		Rate:         s.Rate.String(),
		CreditAmount: s.CreditAmount.String(),
		Category:     op.Category,
		SettledAt:    s.SettledAt,
	}

	if err := e.events.Publish(ctx, messaging.EventTypeTransferSettled, event); err != nil {
		e.log.Warn("failed to publish settlement event",
			zap.String("operation_id", op.ID),
			zap.Error(err))
	}
}
