// Package events defines the ledger change notifications published after commit
package events

import (
	"context"
	"time"
)

// Event types
const (
	TypeDepositCredited      = "deposit.credited"
	TypeWithdrawalAuthorized = "withdrawal.authorized"
	TypeWithdrawalConfirmed  = "withdrawal.confirmed"
	TypeWithdrawalReversed   = "withdrawal.reversed"
)

// LedgerEvent describes one committed balance change
type LedgerEvent struct {
	Type      string    `json:"type"`
	UserID    uint64    `json:"user_id"`
	Amount    string    `json:"amount"`
	Balance   string    `json:"balance,omitempty"`
	Address   string    `json:"address,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Nonce     uint64    `json:"nonce,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives ledger events. Delivery is best effort and must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, event LedgerEvent)
}

// Fanout forwards every event to each notifier in order
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event LedgerEvent) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// Nop drops every event
type Nop struct{}

func (Nop) Notify(context.Context, LedgerEvent) {}

// Subject returns the NATS subject for event under prefix, e.g. "ledger.deposit.credited"
func Subject(prefix string, event LedgerEvent) string {
	if prefix == "" {
		return event.Type
	}
	return prefix + "." + event.Type
}
