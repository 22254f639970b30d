package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event subjects
const (
	EventTypeTransferSettled = "transfer.settled"
	EventTypePaymentSettled  = "payment.settled"
	EventTypeCardConsumed    = "card.consumed"
	EventTypeAccountCreated  = "account.created"
)

// TransferSettledEvent is published after a direct transfer commits.
type TransferSettledEvent struct {
	EventID      string    `json:"event_id"`
	OperationID  string    `json:"operation_id"`
	DebtorIBAN   string    `json:"debtor_iban"`
	CreditorIBAN string    `json:"creditor_iban"`
	Amount       string    `json:"amount"`
	Rate         string    `json:"rate"`
	CreditAmount string    `json:"credit_amount"`
	Category     string    `json:"category,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

// PaymentSettledEvent is published after a card payment commits.
type PaymentSettledEvent struct {
	EventID      string    `json:"event_id"`
	PaiementID   string    `json:"paiement_id"`
	CardID       string    `json:"card_id"`
	DebtorIBAN   string    `json:"debtor_iban"`
	CreditorIBAN string    `json:"creditor_iban"`
	Amount       string    `json:"amount"`
	Rate         string    `json:"rate"`
	Country      string    `json:"country"`
	SettledAt    time.Time `json:"settled_at"`
}

// CardConsumedEvent is published when a virtual card is retired after its
// single successful payment.
type CardConsumedEvent struct {
	EventID     string    `json:"event_id"`
	CardID      string    `json:"card_id"`
	AccountIBAN string    `json:"account_iban"`
	PaiementID  string    `json:"paiement_id"`
	ConsumedAt  time.Time `json:"consumed_at"`
}

// AccountCreatedEvent is published when a new account is opened.
type AccountCreatedEvent struct {
	EventID   string    `json:"event_id"`
	IBAN      string    `json:"iban"`
	UserID    string    `json:"user_id"`
	Country   string    `json:"country"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.New().String()
}
