package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Run("fails without a connection", func(t *testing.T) {
		c := &Client{}
		err := c.Publish(context.Background(), EventTypeTransferSettled, nil)
		assert.Error(t, err)
	})

	t.Run("respects a cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := &Client{}
		err := c.Publish(ctx, EventTypeTransferSettled, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSubscribeWithoutConnection(t *testing.T) {
	c := &Client{}

	assert.Error(t, c.Subscribe(EventTypePaymentSettled, nil))
	assert.Error(t, c.Unsubscribe(EventTypePaymentSettled))
	assert.Error(t, c.Drain())
}

func TestConnectionState(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.IsConnected())
	assert.NoError(t, nilClient.Close())

	c := &Client{}
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}

func TestNewEventID(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestEventPayloadShape(t *testing.T) {
	event := TransferSettledEvent{
		EventID:      NewEventID(),
		OperationID:  "op1",
		DebtorIBAN:   "FR761",
		CreditorIBAN: "FR762",
		Amount:       "40",
		Rate:         "1",
		CreditAmount: "40",
		SettledAt:    time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event.EventID, decoded["event_id"])
	assert.Equal(t, "op1", decoded["operation_id"])
	assert.Equal(t, "40", decoded["credit_amount"])
	// Empty category is omitted from the payload.
	_, present := decoded["category"]
	assert.False(t, present)
}
