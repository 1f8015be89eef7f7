// Package idempotency stores previously issued withdrawal authorizations for a short window
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTTL is how long an issued authorization is replayed for identical requests
const DefaultTTL = 300 * time.Second

// Cache is a TTL key -> payload store
type Cache interface {
	// Get returns the payload and true when a live record exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key builds the record key for a withdrawal request. requestID is only used when
// request-scoped keys are enabled; an empty requestID yields the coarse (user, amount) key.
// Parts are ':' separated so no two (user, amount) pairs share a key.
func Key(userID uint64, amount decimal.Decimal, requestID string) string {
	key := fmt.Sprintf("%d:%s", userID, amount.String())
	if requestID != "" {
		key += ":" + requestID
	}
	return key
}
