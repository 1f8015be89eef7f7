package services

import (
	"context"
	"errors"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/idempotency"
	"github.com/0xArchitect/ludo-backend/internal/metrics"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"
	"github.com/0xArchitect/ludo-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// WithdrawalSettlement closes pending withdrawals, either against the chain event that
// executed them or by returning the funds. Both the reconciler and the reaper go through it.
type WithdrawalSettlement struct {
	ledger   *BalanceLedger
	store    repository.Store
	cache    idempotency.Cache
	notifier events.Notifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewWithdrawalSettlement creates a new WithdrawalSettlement
func NewWithdrawalSettlement(ledger *BalanceLedger, store repository.Store, cache idempotency.Cache, notifier events.Notifier, logger logrus.FieldLogger) *WithdrawalSettlement {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &WithdrawalSettlement{
		ledger:   ledger,
		store:    store,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Confirm settles the pending withdrawal matched by event. It returns false without error when
// no pending row matches, which is the case for withdrawals already settled or not issued here.
func (s *WithdrawalSettlement) Confirm(ctx context.Context, event chain.WithdrawalEvent) (bool, error) {
	if event.Nonce == nil || !event.Nonce.IsUint64() {
		return false, nil
	}
	address := utils.NormalizeAddress(event.User.Hex())
	nonce := event.Nonce.Uint64()

	pending, err := s.store.PendingWithdrawals().FindByAddressNonce(ctx, address, nonce)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id": pending.UserID,
		"nonce":   nonce,
		"tx_hash": event.TxHash,
	})

	amount := chain.FromWei(event.Amount)
	if !amount.Equal(pending.Amount) {
		log.WithFields(logrus.Fields{
			"pending_amount": pending.Amount.String(),
			"event_amount":   amount.String(),
		}).Warn("⚠️ [Settlement] On-chain amount differs from authorized amount")
	}

	settled := false
	err = s.ledger.WithAccount(ctx, pending.UserID, func(scope *AccountScope) error {
		deleted, err := scope.Store().PendingWithdrawals().Delete(ctx, pending.ID)
		if err != nil || !deleted {
			return err
		}
		entry := &models.JournalEntry{
			UserID:      pending.UserID,
			Amount:      pending.Amount.Neg(),
			TxHash:      event.TxHash,
			Address:     event.Contract,
			Kind:        models.JournalKindWithdraw,
			BlockNumber: event.BlockNumber,
			CreatedAt:   s.now(),
		}
		if err := scope.Store().Journal().Create(ctx, entry); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil || !settled {
		return false, err
	}

	s.dropIdempotency(ctx, pending)
	metrics.WithdrawalsConfirmed.Inc()
	log.Info("✅ [Settlement] Withdrawal confirmed on chain")
	s.notifier.Notify(ctx, events.LedgerEvent{
		Type:      events.TypeWithdrawalConfirmed,
		UserID:    pending.UserID,
		Amount:    pending.Amount.String(),
		Address:   pending.Address,
		TxHash:    event.TxHash,
		Nonce:     pending.Nonce,
		Timestamp: s.now(),
	})
	return true, nil
}

// Reverse returns a pending withdrawal's amount to its owner. It returns false when the row
// was settled by someone else in the meantime.
func (s *WithdrawalSettlement) Reverse(ctx context.Context, pending *models.PendingWithdrawal) (bool, error) {
	reversed := false
	var balance string
	err := s.ledger.WithAccount(ctx, pending.UserID, func(scope *AccountScope) error {
		deleted, err := scope.Store().PendingWithdrawals().Delete(ctx, pending.ID)
		if err != nil || !deleted {
			return err
		}
		if err := scope.Credit(pending.Amount); err != nil {
			return err
		}
		reversed = true
		balance = scope.Balance().String()
		return nil
	})
	if err != nil || !reversed {
		return false, err
	}

	s.dropIdempotency(ctx, pending)
	metrics.WithdrawalsReversed.Inc()
	s.logger.WithFields(logrus.Fields{
		"user_id": pending.UserID,
		"nonce":   pending.Nonce,
		"amount":  pending.Amount.String(),
	}).Info("↩️ [Settlement] Stale withdrawal reversed")
	s.notifier.Notify(ctx, events.LedgerEvent{
		Type:      events.TypeWithdrawalReversed,
		UserID:    pending.UserID,
		Amount:    pending.Amount.String(),
		Balance:   balance,
		Address:   pending.Address,
		Nonce:     pending.Nonce,
		Timestamp: s.now(),
	})
	return true, nil
}

func (s *WithdrawalSettlement) dropIdempotency(ctx context.Context, pending *models.PendingWithdrawal) {
	if pending.IdempotencyKey == "" {
		return
	}
	if err := s.cache.Delete(ctx, pending.IdempotencyKey); err != nil {
		s.logger.WithError(err).WithField("user_id", pending.UserID).Warn("⚠️ [Settlement] Failed to drop idempotency record")
	}
}
