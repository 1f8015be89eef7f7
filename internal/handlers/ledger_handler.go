package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/dto"
	"github.com/0xArchitect/ludo-backend/internal/middleware"
	"github.com/0xArchitect/ludo-backend/internal/services"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

// AccountQueries serves the read side of the ledger
type AccountQueries interface {
	Balance(ctx context.Context, userID uint64) (*dto.BalanceResponse, error)
	Transactions(ctx context.Context, userID uint64, offset, limit int) ([]dto.TransactionResponse, error)
}

// Authorizer issues signed withdrawal permits
type Authorizer interface {
	Authorize(ctx context.Context, identity auth.Identity, req services.WithdrawalRequest) (*dto.WithdrawalAuthorization, error)
}

// LedgerHandler serves /balance, /withdraw and /transactions
type LedgerHandler struct {
	accounts   AccountQueries
	authorizer Authorizer
	logger     logrus.FieldLogger
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(accounts AccountQueries, authorizer Authorizer, logger logrus.FieldLogger) *LedgerHandler {
	return &LedgerHandler{
		accounts:   accounts,
		authorizer: authorizer,
		logger:     logger,
	}
}

// GetBalance GET /balance
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondWithError(c, h.logger, types.ErrUnauthorized)
		return
	}

	balance, err := h.accounts.Balance(c.Request.Context(), identity.UserID)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Withdraw POST /withdraw
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondWithError(c, h.logger, types.ErrUnauthorized)
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		respondWithError(c, h.logger, fmt.Errorf("%w: invalid request body: %v", types.ErrValidation, err))
		return
	}
	address := req.Address
	if address == "" {
		address = req.UserAddress
	}

	permit, err := h.authorizer.Authorize(c.Request.Context(), identity, services.WithdrawalRequest{
		Amount:    req.Amount.String(),
		Address:   address,
		OTP:       req.OTP,
		RequestID: req.RequestID,
	})
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, permit)
}

// GetTransactions GET /transactions?offset=&limit=
func (h *LedgerHandler) GetTransactions(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondWithError(c, h.logger, types.ErrUnauthorized)
		return
	}

	var query dto.TransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, h.logger, fmt.Errorf("%w: offset and limit must be integers", types.ErrValidation))
		return
	}

	txs, err := h.accounts.Transactions(c.Request.Context(), identity.UserID, query.Offset, query.Limit)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}
