package clients

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/events"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *capture) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSClient_PublishesLedgerEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &capture{}
	client := NewNATSPublisher(pub, "ledger", logger)

	client.Notify(context.Background(), events.LedgerEvent{
		Type:      events.TypeDepositCredited,
		UserID:    7,
		Amount:    "2.5",
		TxHash:    "0xaa",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	})

	require.Equal(t, []string{"ledger.deposit.credited"}, pub.subjects)
	var got events.LedgerEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, uint64(7), got.UserID)
	assert.Equal(t, "2.5", got.Amount)
	assert.Equal(t, "0xaa", got.TxHash)
}

func TestNATSClient_PublishFailureIsSwallowed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client := NewNATSPublisher(&capture{err: errors.New("no responders")}, "", logger)

	client.Notify(context.Background(), events.LedgerEvent{Type: events.TypeWithdrawalReversed, UserID: 1})
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "withdrawal.reversed", hook.LastEntry().Data["subject"])

	// no connection to close
	client.Close()
}
