package services

import (
	"context"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/metrics"
	"github.com/0xArchitect/ludo-backend/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MonitoringService refreshes the gauges that are not updated on the request path
type MonitoringService struct {
	db       *gorm.DB
	store    repository.Store
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewMonitoringService creates a new MonitoringService. db may be nil when running on memstore.
func NewMonitoringService(db *gorm.DB, store repository.Store, interval time.Duration, logger logrus.FieldLogger) *MonitoringService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MonitoringService{
		db:       db,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Task returns the periodic monitoring task
func (m *MonitoringService) Task() *PeriodicTask {
	return NewPeriodicTask("monitoring", m.interval, m.Refresh, m.logger)
}

// Refresh updates database pool and pending withdrawal gauges
func (m *MonitoringService) Refresh(ctx context.Context) {
	m.updateDatabaseMetrics(ctx)

	count, err := m.store.PendingWithdrawals().Count(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("⚠️ [Monitor] Failed to count pending withdrawals")
		return
	}
	metrics.PendingWithdrawals.Set(float64(count))
}

func (m *MonitoringService) updateDatabaseMetrics(ctx context.Context) {
	if m.db == nil {
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	if err := sqlDB.PingContext(ctx); err != nil {
		metrics.DBConnectionStatus.Set(0)
		m.logger.WithError(err).Warn("⚠️ [Monitor] Database ping failed")
		return
	}
	metrics.DBConnectionStatus.Set(1)
}
