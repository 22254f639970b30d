// Package audit consumes the bank's settlement events and writes each one to
// the structured log, giving operators a trace of everything that settled.
package audit

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/terminal-bench/bankledger/pkg/messaging"
)

// subjects lists every event stream the audit trail follows.
var subjects = []string{
	messaging.EventTypeTransferSettled,
	messaging.EventTypePaymentSettled,
	messaging.EventTypeCardConsumed,
	messaging.EventTypeAccountCreated,
}

// Logger subscribes to the settlement subjects and logs each event payload.
type Logger struct {
	client *messaging.Client
	log    *zap.Logger

	active []string
}

// NewLogger creates an audit logger over an established NATS client.
func NewLogger(client *messaging.Client, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{client: client, log: log}
}

// Start subscribes to all audited subjects. Partial subscriptions are torn
// down again if any subject fails.
func (l *Logger) Start() error {
	for _, subject := range subjects {
		if err := l.client.Subscribe(subject, l.record); err != nil {
			l.Stop()
			return fmt.Errorf("audit subscribe %s: %w", subject, err)
		}
		l.active = append(l.active, subject)
	}
	return nil
}

// Stop removes all audit subscriptions.
func (l *Logger) Stop() {
	for _, subject := range l.active {
		if err := l.client.Unsubscribe(subject); err != nil {
			l.log.Warn("audit unsubscribe failed",
				zap.String("subject", subject), zap.Error(err))
		}
	}
	l.active = nil
}

func (l *Logger) record(msg *nats.Msg) {
	l.log.Info("event recorded",
		zap.String("subject", msg.Subject),
		zap.ByteString("payload", msg.Data))
}
