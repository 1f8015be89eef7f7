package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher is the subset of *nats.Conn the ledger publisher uses
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient publishes committed ledger events as JSON on <prefix>.<event type>
type NATSClient struct {
	conn   *nats.Conn
	pub    Publisher
	prefix string
	logger logrus.FieldLogger
}

// NewNATSClient connects to cfg.URL
func NewNATSClient(cfg config.NATSConfig, logger logrus.FieldLogger) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("ludo-ledger"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("⚠️ [NATS] Disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("🔌 [NATS] Reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		metrics.NATSConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)
	logger.WithField("url", conn.ConnectedUrl()).Info("✅ [NATS] Connected")

	client := NewNATSPublisher(conn, cfg.SubjectPrefix, logger)
	client.conn = conn
	return client, nil
}

// NewNATSPublisher wraps an existing publisher
func NewNATSPublisher(pub Publisher, prefix string, logger logrus.FieldLogger) *NATSClient {
	return &NATSClient{pub: pub, prefix: prefix, logger: logger}
}

// Notify implements events.Notifier. Publish failures are logged and counted, never returned.
func (c *NATSClient) Notify(_ context.Context, event events.LedgerEvent) {
	subject := events.Subject(c.prefix, event)
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).WithField("subject", subject).Error("❌ [NATS] Failed to encode event")
		return
	}
	if err := c.pub.Publish(subject, data); err != nil {
		metrics.NATSMessagesPublished.WithLabelValues(subject, "error").Inc()
		c.logger.WithError(err).WithField("subject", subject).Warn("⚠️ [NATS] Publish failed")
		return
	}
	metrics.NATSMessagesPublished.WithLabelValues(subject, "ok").Inc()
	c.logger.WithFields(logrus.Fields{"subject": subject, "user_id": event.UserID}).Debug("📤 [NATS] Event published")
}

// Close drains pending publishes and closes the connection
func (c *NATSClient) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
