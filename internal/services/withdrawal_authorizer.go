package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/dto"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/idempotency"
	"github.com/0xArchitect/ludo-backend/internal/metrics"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"
	"github.com/0xArchitect/ludo-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WithdrawalRequest is a validated-on-entry withdrawal ask
type WithdrawalRequest struct {
	Amount    string
	Address   string
	OTP       string
	RequestID string
}

// WithdrawalAuthorizerConfig tunes the authorizer
type WithdrawalAuthorizerConfig struct {
	IdempotencyTTL time.Duration
	// RequestScopedKeys appends the client request id to the idempotency key
	RequestScopedKeys bool
}

// WithdrawalAuthorizer debits the ledger and signs the on-chain withdrawal permit
type WithdrawalAuthorizer struct {
	ledger   *BalanceLedger
	cache    idempotency.Cache
	signer   AuthorizationSigner
	otp      OTPVerifier
	notifier events.Notifier
	cfg      WithdrawalAuthorizerConfig
	logger   logrus.FieldLogger

	now    func() time.Time
	jitter func() uint64
}

// NewWithdrawalAuthorizer creates a new WithdrawalAuthorizer
func NewWithdrawalAuthorizer(
	ledger *BalanceLedger,
	cache idempotency.Cache,
	signer AuthorizationSigner,
	otp OTPVerifier,
	notifier events.Notifier,
	cfg WithdrawalAuthorizerConfig,
	logger logrus.FieldLogger,
) *WithdrawalAuthorizer {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = idempotency.DefaultTTL
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &WithdrawalAuthorizer{
		ledger:   ledger,
		cache:    cache,
		signer:   signer,
		otp:      otp,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		jitter:   func() uint64 { return uint64(rand.Int63n(10)) },
	}
}

// Authorize debits amount from the caller and returns a signed permit for the pool contract.
// An identical request inside the idempotency window gets the earlier permit back unchanged.
func (a *WithdrawalAuthorizer) Authorize(ctx context.Context, identity auth.Identity, req WithdrawalRequest) (*dto.WithdrawalAuthorization, error) {
	if identity.UserID == 0 {
		return nil, fmt.Errorf("%w: missing identity", types.ErrUnauthorized)
	}

	amount, address, err := validateWithdrawal(req)
	if err != nil {
		metrics.WithdrawalsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	requestID := ""
	if a.cfg.RequestScopedKeys {
		requestID = strings.TrimSpace(req.RequestID)
	}
	key := idempotency.Key(identity.UserID, amount, requestID)

	log := a.logger.WithFields(logrus.Fields{
		"user_id": identity.UserID,
		"amount":  amount.String(),
		"address": address,
	})

	var (
		result  *dto.WithdrawalAuthorization
		replay  bool
		balance decimal.Decimal
	)
	err = a.ledger.WithAccount(ctx, identity.UserID, func(scope *AccountScope) error {
		// The record is written before commit, so it is only trusted once the pending
		// row it describes is visible under the account lock.
		if cached, ok, err := a.lookup(ctx, key); err != nil {
			return err
		} else if ok {
			backed, err := a.isBacked(ctx, scope, key, cached)
			if err != nil {
				return err
			}
			if backed {
				result, replay = cached, true
				return nil
			}
			log.WithField("nonce", cached.Nonce).Warn("⚠️ [Withdraw] Discarding idempotency record with no pending withdrawal")
		}

		account := scope.Account()
		if account.HasTwoFactor() {
			if strings.TrimSpace(req.OTP) == "" || !a.otp.Verify(account.TwoFactorSecret, strings.TrimSpace(req.OTP)) {
				return fmt.Errorf("%w: invalid one-time code", types.ErrUnauthenticated)
			}
		}

		if err := scope.Debit(amount); err != nil {
			return err
		}

		now := a.now()
		payload := chain.WithdrawalPayload{
			User:             common.HexToAddress(address),
			WithdrawalAmount: chain.ToWei(amount),
			Timestamp:        now.Unix(),
			Nonce:            uint64(now.UnixMilli()) + a.jitter(),
		}
		signature, err := a.signer.SignWithdrawal(ctx, payload)
		if err != nil {
			if errors.Is(err, types.ErrValidation) {
				return err
			}
			return fmt.Errorf("%w: sign withdrawal: %v", types.ErrExternalUnavailable, err)
		}

		pending := &models.PendingWithdrawal{
			UserID:         identity.UserID,
			Address:        address,
			Nonce:          payload.Nonce,
			Amount:         amount,
			Timestamp:      payload.Timestamp,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		if err := scope.Store().PendingWithdrawals().Create(ctx, pending); err != nil {
			return err
		}

		permit := &dto.WithdrawalAuthorization{
			Signature: signature,
			Amount:    payload.WithdrawalAmount.String(),
			Address:   address,
			Timestamp: payload.Timestamp,
			Nonce:     payload.Nonce,
		}
		encoded, err := json.Marshal(permit)
		if err != nil {
			return fmt.Errorf("encode authorization: %w", err)
		}
		if err := a.cache.Set(ctx, key, encoded, a.cfg.IdempotencyTTL); err != nil {
			return fmt.Errorf("%w: store idempotency record: %v", types.ErrExternalUnavailable, err)
		}

		result = permit
		balance = scope.Balance()
		return nil
	})
	if err != nil {
		if result != nil && !replay {
			// the record was written before the commit failed
			if delErr := a.cache.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				log.WithError(delErr).Warn("⚠️ [Withdraw] Failed to drop idempotency record after rollback")
			}
		}
		metrics.WithdrawalsRejected.WithLabelValues(rejectReason(err)).Inc()
		log.WithError(err).Warn("❌ [Withdraw] Authorization rejected")
		return nil, err
	}

	if replay {
		metrics.IdempotencyHits.Inc()
		log.Info("♻️ [Withdraw] Returning cached authorization")
		return result, nil
	}

	metrics.WithdrawalsAuthorized.Inc()
	log.WithField("nonce", result.Nonce).Info("✅ [Withdraw] Authorization issued")
	a.notifier.Notify(ctx, events.LedgerEvent{
		Type:      events.TypeWithdrawalAuthorized,
		UserID:    identity.UserID,
		Amount:    amount.String(),
		Balance:   balance.String(),
		Address:   address,
		Nonce:     result.Nonce,
		Timestamp: a.now(),
	})
	return result, nil
}

// lookup fails closed: a cache that cannot answer blocks the withdrawal
func (a *WithdrawalAuthorizer) lookup(ctx context.Context, key string) (*dto.WithdrawalAuthorization, bool, error) {
	payload, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: idempotency lookup: %v", types.ErrExternalUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}
	var cached dto.WithdrawalAuthorization
	if err := json.Unmarshal(payload, &cached); err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("⚠️ [Withdraw] Discarding unreadable idempotency record")
		return nil, false, nil
	}
	return &cached, true, nil
}

// isBacked reports whether cached still has its debit behind it: the pending row it was
// issued with exists and belongs to the same request.
func (a *WithdrawalAuthorizer) isBacked(ctx context.Context, scope *AccountScope, key string, cached *dto.WithdrawalAuthorization) (bool, error) {
	pending, err := scope.Store().PendingWithdrawals().FindByAddressNonce(ctx, utils.NormalizeAddress(cached.Address), cached.Nonce)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pending.UserID == scope.UserID() && pending.IdempotencyKey == key, nil
}

func validateWithdrawal(req WithdrawalRequest) (decimal.Decimal, string, error) {
	raw := strings.TrimSpace(req.Amount)
	if raw == "" {
		return decimal.Zero, "", fmt.Errorf("%w: amount is required", types.ErrValidation)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: amount %q is not a number", types.ErrValidation, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, "", fmt.Errorf("%w: amount must be positive", types.ErrValidation)
	}
	if !chain.HasValidPrecision(amount) {
		return decimal.Zero, "", fmt.Errorf("%w: amount has more than %d decimals", types.ErrValidation, chain.TokenDecimals)
	}
	if !utils.IsEvmAddress(req.Address) {
		return decimal.Zero, "", fmt.Errorf("%w: address %q is not an EVM address", types.ErrValidation, req.Address)
	}
	return amount, utils.NormalizeAddress(req.Address), nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, types.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, types.ErrUnauthenticated):
		return "invalid_otp"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrValidation):
		return "validation"
	case errors.Is(err, types.ErrExternalUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
