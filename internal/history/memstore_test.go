package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/bankledger/pkg/money"
)

func sampleOperation(id, debtor, creditor, category string) *Operation {
	return &Operation{
		ID:           id,
		Timestamp:    time.Now(),
		Label:        "test",
		Amount:       money.MustParse("40"),
		Rate:         money.RateIdentity,
		DebtorIBAN:   debtor,
		CreditorIBAN: creditor,
		Category:     category,
	}
}

func TestMemStoreOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("records are found from both sides of the transfer", func(t *testing.T) {
		s := NewMemStore()
		require.NoError(t, s.RecordOperation(ctx, sampleOperation("op1", "FR761", "FR762", "courses")))

		fromDebtor, err := s.OperationByID(ctx, "op1", "FR761")
		require.NoError(t, err)
		assert.Equal(t, "op1", fromDebtor.ID)

		fromCreditor, err := s.OperationByID(ctx, "op1", "FR762")
		require.NoError(t, err)
		assert.Equal(t, "op1", fromCreditor.ID)

		_, err = s.OperationByID(ctx, "op1", "DE441")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("filters by account and category", func(t *testing.T) {
		s := NewMemStore()
		require.NoError(t, s.RecordOperation(ctx, sampleOperation("op1", "FR761", "FR762", "courses")))
		require.NoError(t, s.RecordOperation(ctx, sampleOperation("op2", "FR761", "FR763", "loyer")))
		require.NoError(t, s.RecordOperation(ctx, sampleOperation("op3", "DE441", "FR761", "courses")))

		all, err := s.OperationsByAccount(ctx, "FR761")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		courses, err := s.OperationsByAccountAndCategory(ctx, "FR761", "courses")
		require.NoError(t, err)
		assert.Len(t, courses, 2)
	})

	t.Run("stored records are immutable from outside", func(t *testing.T) {
		s := NewMemStore()
		op := sampleOperation("op1", "FR761", "FR762", "courses")
		require.NoError(t, s.RecordOperation(ctx, op))

		// Mutating the caller's struct or a read result must not leak in.
		op.Label = "changed"
		got, err := s.OperationByID(ctx, "op1", "FR761")
		require.NoError(t, err)
		assert.Equal(t, "test", got.Label)

		got.Label = "changed again"
		again, err := s.OperationByID(ctx, "op1", "FR761")
		require.NoError(t, err)
		assert.Equal(t, "test", again.Label)
	})
}

func TestMemStorePaiements(t *testing.T) {
	ctx := context.Background()

	sample := func(id, cardID string) *Paiement {
		return &Paiement{
			ID:           id,
			CardID:       cardID,
			Amount:       money.MustParse("25"),
			Country:      "FR",
			DebtorIBAN:   "FR761",
			CreditorIBAN: "FR762",
			Rate:         money.RateIdentity,
			Timestamp:    time.Now(),
			Label:        "cafe",
			Category:     "sorties",
		}
	}

	t.Run("lookup is scoped to the card", func(t *testing.T) {
		s := NewMemStore()
		require.NoError(t, s.RecordPaiement(ctx, sample("p1", "card1")))

		got, err := s.PaiementByID(ctx, "p1", "card1")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.ID)

		_, err = s.PaiementByID(ctx, "p1", "card2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lists all payments of a card", func(t *testing.T) {
		s := NewMemStore()
		require.NoError(t, s.RecordPaiement(ctx, sample("p1", "card1")))
		require.NoError(t, s.RecordPaiement(ctx, sample("p2", "card1")))
		require.NoError(t, s.RecordPaiement(ctx, sample("p3", "card2")))

		out, err := s.PaiementsByCard(ctx, "card1")
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})
}

var _ Store = (*MemStore)(nil)
