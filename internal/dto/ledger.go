package dto

import (
	"encoding/json"
	"time"
)

// WithdrawRequest is the POST /withdraw body
type WithdrawRequest struct {
	Amount    json.Number `json:"amount"` // number or numeric string
	Address   string      `json:"address"`
	OTP       string      `json:"otp,omitempty"`
	RequestID string      `json:"requestId,omitempty"`

	// Legacy clients send the token and destination under these names
	AccessToken string `json:"accessToken,omitempty"`
	UserAddress string `json:"user_address,omitempty"`
}

// WithdrawalAuthorization is the signed payload the user submits to the pool contract.
// The exact bytes are cached and replayed for identical requests.
type WithdrawalAuthorization struct {
	Signature string `json:"signature"`
	Amount    string `json:"amount"` // wei
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
}

// BalanceResponse is the GET /balance response
type BalanceResponse struct {
	UserID         uint64 `json:"userId"`
	Balance        string `json:"balance"`
	PendingBalance string `json:"pendingBalance"`
}

// TransactionResponse is one item of GET /transactions
type TransactionResponse struct {
	Amount    string    `json:"amount"`
	Address   string    `json:"address"`
	TxHash    string    `json:"txHash"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// TransactionsQuery is the GET /transactions query string
type TransactionsQuery struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}
