package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind is one of the two event streams of the pool contract
type EventKind string

const (
	EventKindDeposit    EventKind = "deposit"
	EventKindWithdrawal EventKind = "withdraw"
)

// LogMeta locates a decoded event on chain
type LogMeta struct {
	TxHash      string // 0x-prefixed lowercase hex
	BlockNumber uint64
	LogIndex    uint
	Contract    string // emitting contract, lowercase hex
}

// Meta returns the log position of an event
func (m LogMeta) Meta() LogMeta { return m }

// Event is a decoded pool event. The set of implementations is closed:
// DepositEvent and WithdrawalEvent.
type Event interface {
	Kind() EventKind
	Meta() LogMeta
	isPoolEvent()
}

// DepositEvent is Deposit(uint256 indexed user, uint256 amount)
type DepositEvent struct {
	LogMeta
	UserID *big.Int
	Amount *big.Int // wei
}

func (DepositEvent) Kind() EventKind { return EventKindDeposit }
func (DepositEvent) isPoolEvent()    {}

// WithdrawalEvent is Withdrawal(uint256 indexed nonce, address indexed user, uint256 amount)
type WithdrawalEvent struct {
	LogMeta
	Nonce  *big.Int
	User   common.Address
	Amount *big.Int // wei
}

func (WithdrawalEvent) Kind() EventKind { return EventKindWithdrawal }
func (WithdrawalEvent) isPoolEvent()    {}
