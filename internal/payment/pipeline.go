// Package payment implements the card payment authorization pipeline: an
// ordered sequence of checks that must all pass before a payment reaches the
// ledger engine. Checks short-circuit on the first failure so the rejection
// reason is deterministic.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/card"
	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/internal/ledger"
	"github.com/terminal-bench/bankledger/pkg/messaging"
	"github.com/terminal-bench/bankledger/pkg/money"
)

var (
	ErrCardNotFound        = errors.New("card not found")
	ErrCardUnusable        = errors.New("card is blocked or deleted")
	ErrDestinationNotFound = errors.New("destination account not found")
	ErrGeoPolicyViolation  = errors.New("payment outside card location policy")
	ErrLimitExceeded       = errors.New("amount exceeds balance or card ceiling")
)

// Input carries one payment authorization request.
type Input struct {
	CardNumber   string
	CardCrypto   string
	HolderName   string
	Amount       decimal.Decimal
	Country      string
	CreditorIBAN string
	Rate         decimal.Decimal
	Label        string
	Category     string
}

// Pipeline authorizes and executes card payments.
type Pipeline struct {
	cards    card.Registry
	accounts account.Store
	engine   *ledger.Engine
	records  history.Recorder
	events   ledger.Publisher
	log      *zap.Logger
}

// NewPipeline wires the pipeline to its collaborators. records and events
// may be nil.
func NewPipeline(cards card.Registry, accounts account.Store, engine *ledger.Engine, records history.Recorder, events ledger.Publisher, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cards:    cards,
		accounts: accounts,
		engine:   engine,
		records:  records,
		events:   events,
		log:      log,
	}
}

// Authorize runs the check sequence and, if every check passes, settles the
// payment through the ledger engine and records it. On any rejection no
// balance moves and no card flag changes, except that a virtual card claimed
// for the attempt is released again.
func (p *Pipeline) Authorize(ctx context.Context, in Input) (*history.Paiement, error) {
	if !money.Positive(in.Amount) {
		return nil, ledger.ErrInvalidAmount
	}
	if !money.Positive(in.Rate) {
		return nil, ledger.ErrInvalidRate
	}

	// 1. Credential match.
	c, err := p.cards.FindByCredentials(ctx, in.CardNumber, in.CardCrypto, in.HolderName)
	if err != nil {
		if errors.Is(err, card.ErrNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("card lookup: %w", err)
	}

	// 2. Card usability.
	if !c.Usable() {
		return nil, ErrCardUnusable
	}

	// 3. Destination resolution.
	creditor, err := p.accounts.FindByIBAN(ctx, in.CreditorIBAN)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrDestinationNotFound
		}
		return nil, fmt.Errorf("destination lookup: %w", err)
	}

	// Referential integrity of the card's back-reference is assumed, so a
	// missing owner account is a fault, not a rejection.
	debtor, err := p.accounts.FindByIBAN(ctx, c.AccountIBAN)
	if err != nil {
		return nil, fmt.Errorf("card owner account %s: %w", c.AccountIBAN, err)
	}

	// 4. Geographic policy. Country codes compare by content, case
	// insensitively, not by reference.
	if c.LocationRestricted {
		if !equalCountry(in.Country, debtor.Country) {
			return nil, ErrGeoPolicyViolation
		}
		if !equalCountry(debtor.Country, creditor.Country) {
			return nil, ErrGeoPolicyViolation
		}
	}

	// 5. Funds and ceiling.
	if debtor.Balance.LessThan(in.Amount) || in.Amount.GreaterThan(c.Ceiling) {
		return nil, ErrLimitExceeded
	}

	// A virtual card is claimed before settling so a concurrent payment with
	// the same card cannot also pass the usability check. The claim is
	// released if the engine rejects.
	claimed := false
	if c.Virtual {
		if err := p.cards.ClaimVirtual(ctx, c.ID); err != nil {
			return nil, ErrCardUnusable
		}
		claimed = true
	}

	// The record is written while the engine still holds both accounts, so a
	// failed write reverses the settlement instead of stranding moved money.
	var paiement *history.Paiement
	_, err = p.engine.SettleWith(ctx, debtor.IBAN, creditor.IBAN, in.Amount, in.Rate, func(s *ledger.Settlement) error {
		paiement = &history.Paiement{
			ID:           uuid.New().String(),
			CardID:       c.ID,
			Amount:       s.Amount,
			Country:      in.Country,
			DebtorIBAN:   s.DebtorIBAN,
			CreditorIBAN: s.CreditorIBAN,
			Rate:         s.Rate,
			Timestamp:    s.SettledAt,
			Label:        in.Label,
			Category:     in.Category,
		}
		if p.records != nil {
			if err := p.records.RecordPaiement(ctx, paiement); err != nil {
				return fmt.Errorf("record paiement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if claimed {
			if rbErr := p.cards.ReleaseVirtual(ctx, c.ID); rbErr != nil {
				p.log.Error("failed to release virtual card claim",
					zap.String("card_id", c.ID), zap.Error(rbErr))
			}
		}
		return nil, err
	}

	if c.Virtual {
		p.consumeVirtual(ctx, c, paiement)
	}

	p.publishSettled(ctx, paiement)

	p.log.Info("payment settled",
		zap.String("paiement_id", paiement.ID),
		zap.String("card_id", c.ID),
		zap.String("amount", paiement.Amount.String()))

	return paiement, nil
}

// consumeVirtual retires a virtual card right after its single successful
// payment settled.
func (p *Pipeline) consumeVirtual(ctx context.Context, c *card.Card, paiement *history.Paiement) {
	if err := p.cards.Delete(ctx, c.ID); err != nil {
		p.log.Error("failed to retire virtual card",
			zap.String("card_id", c.ID), zap.Error(err))
		return
	}

	if p.events == nil {
		return
	}
	event := messaging.CardConsumedEvent{
		EventID:     messaging.NewEventID(),
		CardID:      c.ID,
		AccountIBAN: c.AccountIBAN,
		PaiementID:  paiement.ID,
		ConsumedAt:  paiement.Timestamp,
	}
	if err := p.events.Publish(ctx, messaging.EventTypeCardConsumed, event); err != nil {
		p.log.Warn("failed to publish card consumed event",
			zap.String("card_id", c.ID), zap.Error(err))
	}
}

func (p *Pipeline) publishSettled(ctx context.Context, paiement *history.Paiement) {
	if p.events == nil {
		return
	}

	event := messaging.PaymentSettledEvent{
		EventID:      messaging.NewEventID(),
		PaiementID:   paiement.ID,
		CardID:       paiement.CardID,
		DebtorIBAN:   paiement.DebtorIBAN,
		CreditorIBAN: paiement.CreditorIBAN,
		Amount:       paiement.Amount.String(),
		Rate:         paiement.Rate.String(),
		Country:      paiement.Country,
		SettledAt:    paiement.Timestamp,
	}

	if err := p.events.Publish(ctx, messaging.EventTypePaymentSettled, event); err != nil {
		p.log.Warn("failed to publish payment event",
			zap.String("paiement_id", paiement.ID), zap.Error(err))
	}
}

func equalCountry(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
