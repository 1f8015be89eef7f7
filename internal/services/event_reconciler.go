package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/metrics"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/sirupsen/logrus"
)

// EventReconcilerConfig holds the block window settings
type EventReconcilerConfig struct {
	StartBlock    uint64
	MaxBlockRange uint64 // 0 means up to head
}

// PassResult summarizes one reconcile pass
type PassResult struct {
	Kind    chain.EventKind
	From    uint64
	To      uint64
	Applied int
	Skipped int
	Failed  int
}

// EventReconciler applies pool events to the ledger and tracks progress per stream
type EventReconciler struct {
	chain      ChainReader
	ledger     *BalanceLedger
	store      repository.Store
	settlement *WithdrawalSettlement
	notifier   events.Notifier
	cfg        EventReconcilerConfig
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewEventReconciler creates a new EventReconciler
func NewEventReconciler(
	reader ChainReader,
	ledger *BalanceLedger,
	store repository.Store,
	settlement *WithdrawalSettlement,
	notifier events.Notifier,
	cfg EventReconcilerConfig,
	logger logrus.FieldLogger,
) *EventReconciler {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &EventReconciler{
		chain:      reader,
		ledger:     ledger,
		store:      store,
		settlement: settlement,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func checkpointKind(kind chain.EventKind) (models.CheckpointKind, error) {
	switch kind {
	case chain.EventKindDeposit:
		return models.CheckpointDeposit, nil
	case chain.EventKindWithdrawal:
		return models.CheckpointWithdraw, nil
	default:
		return "", fmt.Errorf("%w: unknown event kind %q", types.ErrValidation, kind)
	}
}

// ReconcileOnce processes blocks [checkpoint, head) for kind and moves the checkpoint to the end
// of the window. Events that fail to apply are logged and skipped; the checkpoint only stays put
// when the window itself cannot be read.
func (r *EventReconciler) ReconcileOnce(ctx context.Context, kind chain.EventKind) (PassResult, error) {
	result := PassResult{Kind: kind}
	cpKind, err := checkpointKind(kind)
	if err != nil {
		return result, err
	}

	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	from, err := r.store.Checkpoints().Get(ctx, cpKind, r.cfg.StartBlock)
	if err != nil {
		metrics.ReconcileErrors.WithLabelValues(string(kind), "checkpoint").Inc()
		return result, err
	}
	head, err := r.chain.Head(ctx)
	if err != nil {
		metrics.ReconcileErrors.WithLabelValues(string(kind), "head").Inc()
		return result, err
	}

	to := head
	if r.cfg.MaxBlockRange > 0 && to > from+r.cfg.MaxBlockRange {
		to = from + r.cfg.MaxBlockRange
	}
	result.From, result.To = from, to
	if to <= from {
		return result, nil
	}

	log := r.logger.WithFields(logrus.Fields{"kind": kind, "from": from, "to": to})

	evts, err := r.chain.Events(ctx, kind, from, to)
	if err != nil {
		metrics.ReconcileErrors.WithLabelValues(string(kind), "fetch").Inc()
		log.WithError(err).Warn("⚠️ [Reconciler] Failed to fetch events, checkpoint unchanged")
		return result, err
	}

	for _, evt := range evts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		applied, err := r.apply(ctx, evt)
		switch {
		case err != nil:
			result.Failed++
			metrics.ChainEventsFailed.WithLabelValues(string(kind)).Inc()
			log.WithError(err).WithField("tx_hash", evt.Meta().TxHash).Error("❌ [Reconciler] Failed to apply event")
		case applied:
			result.Applied++
			metrics.ChainEventsApplied.WithLabelValues(string(kind)).Inc()
		default:
			result.Skipped++
		}
	}

	if err := r.store.Checkpoints().Advance(ctx, cpKind, to); err != nil {
		metrics.ReconcileErrors.WithLabelValues(string(kind), "checkpoint").Inc()
		return result, err
	}
	metrics.CheckpointBlock.WithLabelValues(string(kind)).Set(float64(to))

	if len(evts) > 0 {
		log.WithFields(logrus.Fields{
			"applied": result.Applied,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("✅ [Reconciler] Pass complete")
	}
	return result, nil
}

func (r *EventReconciler) apply(ctx context.Context, evt chain.Event) (bool, error) {
	switch e := evt.(type) {
	case chain.DepositEvent:
		return r.applyDeposit(ctx, e)
	case chain.WithdrawalEvent:
		applied, err := r.settlement.Confirm(ctx, e)
		if err == nil && !applied {
			metrics.ChainEventsSkipped.WithLabelValues(string(chain.EventKindWithdrawal), "no_pending").Inc()
		}
		return applied, err
	default:
		return false, fmt.Errorf("unsupported event %T", evt)
	}
}

func (r *EventReconciler) applyDeposit(ctx context.Context, e chain.DepositEvent) (bool, error) {
	if e.UserID == nil || !e.UserID.IsUint64() || e.UserID.Sign() == 0 {
		metrics.ChainEventsSkipped.WithLabelValues(string(chain.EventKindDeposit), "bad_user").Inc()
		return false, fmt.Errorf("%w: deposit user id %v out of range", types.ErrValidation, e.UserID)
	}
	amount := chain.FromWei(e.Amount)
	if !amount.IsPositive() {
		metrics.ChainEventsSkipped.WithLabelValues(string(chain.EventKindDeposit), "zero_amount").Inc()
		return false, nil
	}
	userID := e.UserID.Uint64()

	var balance string
	err := r.ledger.WithAccount(ctx, userID, func(scope *AccountScope) error {
		seen, err := scope.Store().Journal().ExistsByTxHash(ctx, e.TxHash)
		if err != nil {
			return err
		}
		if seen {
			return types.ErrDuplicateEvent
		}
		if err := scope.Credit(amount); err != nil {
			return err
		}
		balance = scope.Balance().String()
		return scope.Store().Journal().Create(ctx, &models.JournalEntry{
			UserID:      userID,
			Amount:      amount,
			TxHash:      e.TxHash,
			Address:     e.Contract,
			Kind:        models.JournalKindDeposit,
			BlockNumber: e.BlockNumber,
			CreatedAt:   r.now(),
		})
	})
	if errors.Is(err, types.ErrDuplicateEvent) {
		metrics.ChainEventsSkipped.WithLabelValues(string(chain.EventKindDeposit), "duplicate").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount.String(),
		"tx_hash": e.TxHash,
	}).Info("💰 [Reconciler] Deposit credited")
	r.notifier.Notify(ctx, events.LedgerEvent{
		Type:      events.TypeDepositCredited,
		UserID:    userID,
		Amount:    amount.String(),
		Balance:   balance,
		TxHash:    e.TxHash,
		Timestamp: r.now(),
	})
	return true, nil
}

// Loop returns a periodic task that reconciles kind every interval
func (r *EventReconciler) Loop(kind chain.EventKind, interval time.Duration) *PeriodicTask {
	return NewPeriodicTask(fmt.Sprintf("reconcile-%s", kind), interval, func(ctx context.Context) {
		if _, err := r.ReconcileOnce(ctx, kind); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).WithField("kind", kind).Warn("⚠️ [Reconciler] Pass failed")
		}
	}, r.logger)
}
