package services

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/metrics"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Reaper defaults
const (
	DefaultPendingTimeout = 10 * time.Minute
	DefaultReaperBatch    = 100

	// reaperStuckAfter consecutive failed attempts mark a row as stuck
	reaperStuckAfter = 3
)

// StalePendingReaperConfig tunes the reaper
type StalePendingReaperConfig struct {
	Interval       time.Duration
	PendingTimeout time.Duration
	BatchSize      int
}

// ReapResult summarizes one reaper pass
type ReapResult struct {
	Scanned   int
	Confirmed int
	Reversed  int
	Skipped   int
	// Stuck counts skipped rows that have failed reaperStuckAfter passes in a row
	Stuck int
}

// StalePendingReaper resolves pending withdrawals nobody executed in time.
// A withdrawal is only reversed after the chain positively reports no matching event.
// Each pass continues after the last row the previous pass reached, so rows that keep
// failing cannot starve the ones behind them.
type StalePendingReaper struct {
	chain      ChainReader
	store      repository.Store
	settlement *WithdrawalSettlement
	cfg        StalePendingReaperConfig
	logger     logrus.FieldLogger
	now        func() time.Time

	mu       sync.Mutex
	cursor   uint64
	failures map[uint64]int
}

// NewStalePendingReaper creates a new StalePendingReaper
func NewStalePendingReaper(reader ChainReader, store repository.Store, settlement *WithdrawalSettlement, cfg StalePendingReaperConfig, logger logrus.FieldLogger) *StalePendingReaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPendingTimeout
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultReaperBatch
	}
	return &StalePendingReaper{
		chain:      reader,
		store:      store,
		settlement: settlement,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		failures:   make(map[uint64]int),
	}
}

// ReapOnce checks up to BatchSize stale pending withdrawals against the chain, starting after
// the last row the previous pass reached and wrapping around once the end is hit.
func (r *StalePendingReaper) ReapOnce(ctx context.Context) (ReapResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result ReapResult

	cutoff := r.now().Add(-r.cfg.PendingTimeout)
	stale, err := r.store.PendingWithdrawals().ListCreatedBefore(ctx, cutoff, r.cursor, r.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	from, upto := r.cursor, uint64(math.MaxUint64)
	if len(stale) < r.cfg.BatchSize {
		r.cursor = 0
	} else {
		upto = stale[len(stale)-1].ID
		r.cursor = upto
	}
	r.forgetSettled(stale, from, upto)
	if len(stale) == 0 {
		metrics.StuckPendingWithdrawals.Set(float64(r.stuckCount()))
		return result, nil
	}
	r.logger.WithField("count", len(stale)).Info("🔍 [Reaper] Checking stale pending withdrawals")

	for _, pending := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Scanned++
		log := r.logger.WithFields(logrus.Fields{
			"pending_id": pending.ID,
			"user_id":    pending.UserID,
			"nonce":      pending.Nonce,
			"address":    pending.Address,
		})

		outcome, err := r.reap(ctx, pending, log)
		switch {
		case err != nil:
			result.Skipped++
			if r.recordFailure(pending.ID, log.WithError(err)) {
				result.Stuck++
			}
		case outcome == reapConfirmed:
			result.Confirmed++
			delete(r.failures, pending.ID)
		case outcome == reapReversed:
			result.Reversed++
			delete(r.failures, pending.ID)
		default:
			result.Skipped++
			delete(r.failures, pending.ID)
		}
	}
	metrics.StuckPendingWithdrawals.Set(float64(r.stuckCount()))

	if count, err := r.store.PendingWithdrawals().Count(ctx); err == nil {
		metrics.PendingWithdrawals.Set(float64(count))
	}
	return result, nil
}

type reapOutcome int

const (
	reapNone reapOutcome = iota
	reapConfirmed
	reapReversed
)

func (r *StalePendingReaper) reap(ctx context.Context, pending *models.PendingWithdrawal, log logrus.FieldLogger) (reapOutcome, error) {
	event, err := r.chain.FindWithdrawal(ctx, pending.Nonce, common.HexToAddress(pending.Address))
	if err != nil {
		log.WithError(err).Warn("⚠️ [Reaper] Chain lookup failed, will retry next pass")
		return reapNone, err
	}

	if event != nil {
		ok, err := r.settlement.Confirm(ctx, *event)
		if err != nil {
			log.WithError(err).Error("❌ [Reaper] Failed to confirm executed withdrawal")
			return reapNone, err
		}
		if ok {
			return reapConfirmed, nil
		}
		return reapNone, nil
	}

	ok, err := r.settlement.Reverse(ctx, pending)
	if err != nil {
		log.WithError(err).Error("❌ [Reaper] Failed to reverse stale withdrawal")
		return reapNone, err
	}
	if ok {
		return reapReversed, nil
	}
	return reapNone, nil
}

// recordFailure counts a failed attempt and reports whether the row is now stuck
func (r *StalePendingReaper) recordFailure(id uint64, log logrus.FieldLogger) bool {
	r.failures[id]++
	attempts := r.failures[id]
	if attempts < reaperStuckAfter {
		return false
	}
	log.WithField("attempts", attempts).Error("🚨 [Reaper] Pending withdrawal stuck, needs manual review")
	return true
}

// forgetSettled drops failure counts for rows in (from, upto] that are no longer pending
func (r *StalePendingReaper) forgetSettled(listed []*models.PendingWithdrawal, from, upto uint64) {
	live := make(map[uint64]struct{}, len(listed))
	for _, p := range listed {
		live[p.ID] = struct{}{}
	}
	for id := range r.failures {
		if _, ok := live[id]; !ok && id > from && id <= upto {
			delete(r.failures, id)
		}
	}
}

func (r *StalePendingReaper) stuckCount() int {
	n := 0
	for _, attempts := range r.failures {
		if attempts >= reaperStuckAfter {
			n++
		}
	}
	return n
}

// Task returns the periodic reaper task
func (r *StalePendingReaper) Task() *PeriodicTask {
	return NewPeriodicTask("stale-pending-reaper", r.cfg.Interval, func(ctx context.Context) {
		if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("⚠️ [Reaper] Pass failed")
		}
	}, r.logger)
}
