package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/card"
	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/internal/ledger"
	"github.com/terminal-bench/bankledger/pkg/messaging"
	"github.com/terminal-bench/bankledger/pkg/money"
)

type capturingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturingPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturingPublisher) published(subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

type fixture struct {
	pipeline *Pipeline
	accounts *account.MemStore
	cards    *card.MemRegistry
	records  *history.MemStore
	events   *capturingPublisher
}

// newFixture builds an in-memory bank with a debtor in FR holding 100, a
// creditor in FR and one card on the debtor account (crypto "123",
// ceiling 500).
func newFixture(t *testing.T, mutate func(*card.Card)) (*fixture, *card.Card) {
	t.Helper()
	ctx := context.Background()

	accounts := account.NewMemStore()
	require.NoError(t, accounts.Create(ctx, &account.Account{
		IBAN: "FR761", UserID: "u1", Country: "FR", Balance: money.MustParse("100"),
	}))
	require.NoError(t, accounts.Create(ctx, &account.Account{
		IBAN: "FR762", UserID: "u2", Country: "FR", Balance: money.MustParse("0"),
	}))

	cards := card.NewMemRegistry()
	hash, err := card.HashCrypto("123")
	require.NoError(t, err)
	c := &card.Card{
		AccountIBAN: "FR761",
		Number:      "4970000000000001",
		CryptoHash:  hash,
		HolderName:  "Alice Martin",
		Ceiling:     money.MustParse("500"),
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, cards.Create(ctx, c))

	records := history.NewMemStore()
	events := &capturingPublisher{}
	engine := ledger.NewEngine(accounts, records, nil, nil)

	return &fixture{
		pipeline: NewPipeline(cards, accounts, engine, records, events, nil),
		accounts: accounts,
		cards:    cards,
		records:  records,
		events:   events,
	}, c
}

func validInput() Input {
	return Input{
		CardNumber:   "4970000000000001",
		CardCrypto:   "123",
		HolderName:   "Alice Martin",
		Amount:       money.MustParse("25"),
		Country:      "FR",
		CreditorIBAN: "FR762",
		Rate:         money.RateIdentity,
		Label:        "cafe",
		Category:     "sorties",
	}
}

func assertBalances(t *testing.T, accounts *account.MemStore, debtor, creditor string) {
	t.Helper()
	ctx := context.Background()
	d, err := accounts.FindByIBAN(ctx, "FR761")
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(money.MustParse(debtor)), "debtor %s", d.Balance)
	c, err := accounts.FindByIBAN(ctx, "FR762")
	require.NoError(t, err)
	assert.True(t, c.Balance.Equal(money.MustParse(creditor)), "creditor %s", c.Balance)
}

func TestAuthorizeSettles(t *testing.T) {
	ctx := context.Background()

	t.Run("passing all checks settles and records the payment", func(t *testing.T) {
		f, c := newFixture(t, nil)

		p, err := f.pipeline.Authorize(ctx, validInput())
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, c.ID, p.CardID)
		assertBalances(t, f.accounts, "75", "25")

		stored, err := f.records.PaiementByID(ctx, p.ID, c.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.Equal(money.MustParse("25")))
		assert.True(t, f.events.published(messaging.EventTypePaymentSettled))
	})

	t.Run("rate adjusts the credited amount only", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.Rate = money.MustParse("1.2")
		_, err := f.pipeline.Authorize(ctx, in)
		require.NoError(t, err)
		assertBalances(t, f.accounts, "75", "30")
	})

	t.Run("rejects non positive amount before any lookup", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.Amount = money.MustParse("-1")
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})
}

func TestAuthorizeCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong number rejects as card not found", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.CardNumber = "0000000000000000"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrCardNotFound)
	})

	t.Run("wrong crypto rejects as card not found", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.CardCrypto = "999"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrCardNotFound)
		assertBalances(t, f.accounts, "100", "0")
	})

	t.Run("wrong holder rejects as card not found", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.HolderName = "Bob Martin"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrCardNotFound)
	})
}

func TestAuthorizeUsability(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked card rejects as unusable", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.Blocked = true })

		_, err := f.pipeline.Authorize(ctx, validInput())
		assert.ErrorIs(t, err, ErrCardUnusable)
	})

	t.Run("deleted card rejects as unusable", func(t *testing.T) {
		f, c := newFixture(t, nil)
		require.NoError(t, f.cards.Delete(ctx, c.ID))

		_, err := f.pipeline.Authorize(ctx, validInput())
		assert.ErrorIs(t, err, ErrCardUnusable)
	})

	t.Run("usability wins over a later geo violation", func(t *testing.T) {
		// Checks run in a fixed order, so a payment that fails several of
		// them always reports the earliest one.
		f, _ := newFixture(t, func(c *card.Card) {
			c.Blocked = true
			c.LocationRestricted = true
		})

		in := validInput()
		in.Country = "DE"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrCardUnusable)
	})
}

func TestAuthorizeDestination(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown creditor rejects as destination not found", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.CreditorIBAN = "FR999"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrDestinationNotFound)
		assertBalances(t, f.accounts, "100", "0")
	})
}

func TestAuthorizeGeoPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("restricted card rejects a payment from another country", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.LocationRestricted = true })

		in := validInput()
		in.Country = "DE"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrGeoPolicyViolation)
		assertBalances(t, f.accounts, "100", "0")
	})

	t.Run("restricted card rejects a creditor in another country", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.LocationRestricted = true })
		require.NoError(t, f.accounts.Create(ctx, &account.Account{
			IBAN: "DE441", UserID: "u3", Country: "DE", Balance: money.MustParse("0"),
		}))

		in := validInput()
		in.CreditorIBAN = "DE441"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrGeoPolicyViolation)
	})

	t.Run("country codes compare by content, not case", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.LocationRestricted = true })

		in := validInput()
		in.Country = "fr "
		_, err := f.pipeline.Authorize(ctx, in)
		require.NoError(t, err)
		assertBalances(t, f.accounts, "75", "25")
	})

	t.Run("unrestricted card ignores the payment country", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.Country = "JP"
		_, err := f.pipeline.Authorize(ctx, in)
		require.NoError(t, err)
	})
}

func TestAuthorizeLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("amount above the balance rejects", func(t *testing.T) {
		f, _ := newFixture(t, nil)

		in := validInput()
		in.Amount = money.MustParse("150")
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assertBalances(t, f.accounts, "100", "0")
	})

	t.Run("amount above the ceiling rejects", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.Ceiling = money.MustParse("10") })

		in := validInput()
		in.Amount = money.MustParse("25")
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrLimitExceeded)
	})

	t.Run("amount exactly at the limits settles", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.Ceiling = money.MustParse("100") })

		in := validInput()
		in.Amount = money.MustParse("100")
		_, err := f.pipeline.Authorize(ctx, in)
		require.NoError(t, err)
		assertBalances(t, f.accounts, "0", "100")
	})
}

func TestAuthorizeVirtualCard(t *testing.T) {
	ctx := context.Background()

	t.Run("settles once then retires the card", func(t *testing.T) {
		f, c := newFixture(t, func(c *card.Card) { c.Virtual = true })

		_, err := f.pipeline.Authorize(ctx, validInput())
		require.NoError(t, err)

		retired, err := f.cards.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, retired.Deleted)
		assert.True(t, f.events.published(messaging.EventTypeCardConsumed))

		_, err = f.pipeline.Authorize(ctx, validInput())
		assert.ErrorIs(t, err, ErrCardUnusable)
		assertBalances(t, f.accounts, "75", "25")
	})

	t.Run("exactly one concurrent payment wins", func(t *testing.T) {
		f, _ := newFixture(t, func(c *card.Card) { c.Virtual = true })

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.pipeline.Authorize(ctx, validInput())
			}(i)
		}
		wg.Wait()

		var settled int
		for _, err := range errs {
			if err == nil {
				settled++
			} else {
				assert.ErrorIs(t, err, ErrCardUnusable)
			}
		}
		assert.Equal(t, 1, settled)
		assertBalances(t, f.accounts, "75", "25")
	})

	t.Run("a rejected settlement releases the claim", func(t *testing.T) {
		// Paying the card's own account passes every pipeline check but is
		// rejected by the engine; the card must stay usable afterwards.
		f, c := newFixture(t, func(c *card.Card) { c.Virtual = true })

		in := validInput()
		in.CreditorIBAN = "FR761"
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ledger.ErrSameAccount)

		kept, err := f.cards.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, kept.Deleted)

		_, err = f.pipeline.Authorize(ctx, validInput())
		require.NoError(t, err)
	})
}

// unavailableRecords accepts operations but fails every paiement write.
type unavailableRecords struct {
	*history.MemStore
}

func (unavailableRecords) RecordPaiement(context.Context, *history.Paiement) error {
	return errors.New("record store unavailable")
}

func TestAuthorizeRecordFailure(t *testing.T) {
	ctx := context.Background()

	build := func(t *testing.T, virtual bool) (*Pipeline, *account.MemStore, *card.MemRegistry, *card.Card) {
		t.Helper()

		accounts := account.NewMemStore()
		require.NoError(t, accounts.Create(ctx, &account.Account{
			IBAN: "FR761", UserID: "u1", Country: "FR", Balance: money.MustParse("100"),
		}))
		require.NoError(t, accounts.Create(ctx, &account.Account{
			IBAN: "FR762", UserID: "u2", Country: "FR", Balance: money.MustParse("0"),
		}))

		cards := card.NewMemRegistry()
		hash, err := card.HashCrypto("123")
		require.NoError(t, err)
		c := &card.Card{
			AccountIBAN: "FR761",
			Number:      "4970000000000001",
			CryptoHash:  hash,
			HolderName:  "Alice Martin",
			Ceiling:     money.MustParse("500"),
			Virtual:     virtual,
		}
		require.NoError(t, cards.Create(ctx, c))

		records := history.NewMemStore()
		engine := ledger.NewEngine(accounts, records, nil, nil)
		p := NewPipeline(cards, accounts, engine, unavailableRecords{records}, nil, nil)
		return p, accounts, cards, c
	}

	t.Run("a failed record write reverses the settlement", func(t *testing.T) {
		p, accounts, _, _ := build(t, false)

		_, err := p.Authorize(ctx, validInput())
		require.Error(t, err)
		assertBalances(t, accounts, "100", "0")
	})

	t.Run("the virtual claim is released after a failed record write", func(t *testing.T) {
		p, accounts, cards, c := build(t, true)

		_, err := p.Authorize(ctx, validInput())
		require.Error(t, err)
		assertBalances(t, accounts, "100", "0")

		kept, err := cards.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, kept.Deleted)
		assert.NoError(t, cards.ClaimVirtual(ctx, c.ID))
	})
}

func TestAuthorizeLeavesNoTraceOnRejection(t *testing.T) {
	ctx := context.Background()

	t.Run("no record and no event for a rejected payment", func(t *testing.T) {
		f, c := newFixture(t, nil)

		in := validInput()
		in.Amount = money.MustParse("150")
		_, err := f.pipeline.Authorize(ctx, in)
		assert.ErrorIs(t, err, ErrLimitExceeded)

		out, err := f.records.PaiementsByCard(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.False(t, f.events.published(messaging.EventTypePaymentSettled))
	})
}
