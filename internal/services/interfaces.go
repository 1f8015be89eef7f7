package services

import (
	"context"

	"github.com/0xArchitect/ludo-backend/internal/chain"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader reads pool events. Implemented by chain.Client.
type ChainReader interface {
	Head(ctx context.Context) (uint64, error)
	// Events returns events of kind in blocks [from, to), in chain order
	Events(ctx context.Context, kind chain.EventKind, from, to uint64) ([]chain.Event, error)
	// FindWithdrawal returns nil, nil when no matching event exists
	FindWithdrawal(ctx context.Context, nonce uint64, user common.Address) (*chain.WithdrawalEvent, error)
}

// AuthorizationSigner produces the signature the pool contract checks. Implemented by chain.TypedDataSigner.
type AuthorizationSigner interface {
	SignWithdrawal(ctx context.Context, payload chain.WithdrawalPayload) (string, error)
}

// OTPVerifier checks a one-time code. Implemented by auth.TOTPVerifier.
type OTPVerifier interface {
	Verify(secret, code string) bool
}
