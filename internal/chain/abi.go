package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PoolABI covers the two events the ledger consumes from the balance pool contract
const PoolABI = `[
	{"anonymous":false,"name":"Deposit","type":"event","inputs":[
		{"indexed":true,"name":"user","type":"uint256"},
		{"indexed":false,"name":"amount","type":"uint256"}]},
	{"anonymous":false,"name":"Withdrawal","type":"event","inputs":[
		{"indexed":true,"name":"nonce","type":"uint256"},
		{"indexed":true,"name":"user","type":"address"},
		{"indexed":false,"name":"amount","type":"uint256"}]}
]`

// EventDecoder turns raw pool logs into typed events
type EventDecoder struct {
	abi abi.ABI
}

// NewEventDecoder parses PoolABI
func NewEventDecoder() (*EventDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &EventDecoder{abi: parsed}, nil
}

// Topic returns the topic0 hash of the event behind kind
func (d *EventDecoder) Topic(kind EventKind) common.Hash {
	return d.abi.Events[eventName(kind)].ID
}

// Decode decodes one log of the given kind
func (d *EventDecoder) Decode(kind EventKind, log types.Log) (Event, error) {
	name := eventName(kind)
	event, ok := d.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, fmt.Errorf("log %s#%d is not a %s event", log.TxHash.Hex(), log.Index, name)
	}

	fields := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(fields, name, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", name, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%s log has %d indexed topics, want %d", name, len(log.Topics)-1, len(indexed))
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", name, err)
	}

	meta := LogMeta{
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		Contract:    strings.ToLower(log.Address.Hex()),
	}

	switch kind {
	case EventKindDeposit:
		user, err := bigField(fields, "user")
		if err != nil {
			return nil, err
		}
		amount, err := bigField(fields, "amount")
		if err != nil {
			return nil, err
		}
		return DepositEvent{LogMeta: meta, UserID: user, Amount: amount}, nil
	default:
		nonce, err := bigField(fields, "nonce")
		if err != nil {
			return nil, err
		}
		user, ok := fields["user"].(common.Address)
		if !ok {
			return nil, fmt.Errorf("withdrawal field user has type %T", fields["user"])
		}
		amount, err := bigField(fields, "amount")
		if err != nil {
			return nil, err
		}
		return WithdrawalEvent{LogMeta: meta, Nonce: nonce, User: user, Amount: amount}, nil
	}
}

func eventName(kind EventKind) string {
	switch kind {
	case EventKindDeposit:
		return "Deposit"
	case EventKindWithdrawal:
		return "Withdrawal"
	}
	return string(kind)
}

func bigField(fields map[string]interface{}, name string) (*big.Int, error) {
	v, ok := fields[name].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("field %s has type %T", name, fields[name])
	}
	return v, nil
}
