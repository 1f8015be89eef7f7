package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	ledgertypes "github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// LogBackend is the part of an Ethereum RPC client the ledger reads from
type LogBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client reads pool events from one RPC endpoint
type Client struct {
	backend    LogBackend
	decoder    *EventDecoder
	pool       common.Address
	startBlock uint64
	rpcTimeout time.Duration
	logger     logrus.FieldLogger
	close      func()
}

// ClientOptions configures a Client
type ClientOptions struct {
	Pool       common.Address
	StartBlock uint64        // lower bound for direct withdrawal lookups
	RPCTimeout time.Duration // 0 means no deadline
	Logger     logrus.FieldLogger
}

// Dial connects to rpcURL with ethclient
func Dial(ctx context.Context, rpcURL string, opts ClientOptions) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ledgertypes.ErrExternalUnavailable, rpcURL, err)
	}
	client, err := NewClient(rpc, opts)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	client.close = rpc.Close
	return client, nil
}

// NewClient wraps an existing backend
func NewClient(backend LogBackend, opts ClientOptions) (*Client, error) {
	decoder, err := NewEventDecoder()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		backend:    backend,
		decoder:    decoder,
		pool:       opts.Pool,
		startBlock: opts.StartBlock,
		rpcTimeout: opts.RPCTimeout,
		logger:     logger,
	}, nil
}

// Close releases the RPC connection when the client owns it
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.rpcTimeout > 0 {
		return context.WithTimeout(ctx, c.rpcTimeout)
	}
	return context.WithCancel(ctx)
}

// Head returns the current chain height
func (c *Client) Head(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %v", ledgertypes.ErrExternalUnavailable, err)
	}
	return head, nil
}

// Events returns the pool events of kind in blocks [from, to), in chain order.
// Logs that fail to decode are logged and left out.
func (c *Client) Events(ctx context.Context, kind EventKind, from, to uint64) ([]Event, error) {
	if to <= from {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to - 1),
		Addresses: []common.Address{c.pool},
		Topics:    [][]common.Hash{{c.decoder.Topic(kind)}},
	}
	return c.filter(ctx, kind, query)
}

// FindWithdrawal looks for the Withdrawal(nonce, user) event anywhere after the start block.
// It returns nil when the chain has no such event.
func (c *Client) FindWithdrawal(ctx context.Context, nonce uint64, user common.Address) (*WithdrawalEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.startBlock),
		Addresses: []common.Address{c.pool},
		Topics: [][]common.Hash{
			{c.decoder.Topic(EventKindWithdrawal)},
			{common.BigToHash(new(big.Int).SetUint64(nonce))},
			{common.BytesToHash(user.Bytes())},
		},
	}
	events, err := c.filter(ctx, EventKindWithdrawal, query)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	found := events[0].(WithdrawalEvent)
	return &found, nil
}

func (c *Client) filter(ctx context.Context, kind EventKind, query ethereum.FilterQuery) ([]Event, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s logs: %v", ledgertypes.ErrExternalUnavailable, kind, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]Event, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := c.decoder.Decode(kind, log)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"kind":    kind,
				"tx_hash": log.TxHash.Hex(),
				"block":   log.BlockNumber,
				"error":   err.Error(),
			}).Warn("⚠️ [Chain] Skipping undecodable pool log")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
