package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the ledger repositories behind one transaction boundary.
// Repositories obtained from the Store passed to a Transaction callback share that transaction.
type Store interface {
	Accounts() AccountRepository
	PendingWithdrawals() PendingWithdrawalRepository
	Journal() JournalRepository
	Checkpoints() CheckpointRepository

	// Transaction runs fn in one storage transaction, committing when fn returns nil.
	// Nested calls on a transactional Store join the outer transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// gormStore implements Store on top of gorm
type gormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewStore creates a new Store instance
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Accounts() AccountRepository {
	return NewAccountRepository(s.db)
}

func (s *gormStore) PendingWithdrawals() PendingWithdrawalRepository {
	return NewPendingWithdrawalRepository(s.db)
}

func (s *gormStore) Journal() JournalRepository {
	return NewJournalRepository(s.db)
}

func (s *gormStore) Checkpoints() CheckpointRepository {
	return NewCheckpointRepository(s.db)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, inTx: true})
	})
}
