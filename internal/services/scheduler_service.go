package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PeriodicTask runs one function on a fixed interval in its own goroutine.
// A failing or panicking run is logged and the next tick runs normally.
type PeriodicTask struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	logger   logrus.FieldLogger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// DefaultTaskInterval replaces a non-positive task interval
const DefaultTaskInterval = 30 * time.Second

// NewPeriodicTask creates a task; it does nothing until Start
func NewPeriodicTask(name string, interval time.Duration, run func(ctx context.Context), logger logrus.FieldLogger) *PeriodicTask {
	if interval <= 0 {
		logger.WithFields(logrus.Fields{"task": name, "interval": interval.String()}).
			Warnf("⚠️ Non-positive task interval, using %s", DefaultTaskInterval)
		interval = DefaultTaskInterval
	}
	return &PeriodicTask{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger,
	}
}

// Start runs the task immediately and then on every tick until Stop or ctx is done
func (t *PeriodicTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})

	ctx, t.cancel = context.WithCancel(ctx)

	t.logger.WithFields(logrus.Fields{"task": t.name, "interval": t.interval.String()}).Info("🚀 Starting periodic task")
	go t.loop(ctx, t.stopCh, t.done)
}

// Stop cancels an in-flight run and waits for the loop to exit
func (t *PeriodicTask) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.cancel()
	done := t.done
	t.mu.Unlock()

	<-done
	t.logger.WithField("task", t.name).Info("🛑 Periodic task stopped")
}

func (t *PeriodicTask) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			t.runOnce(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *PeriodicTask) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.WithFields(logrus.Fields{
				"task":  t.name,
				"panic": fmt.Sprint(r),
			}).Error("❌ Periodic task panicked")
		}
	}()
	t.run(ctx)
}
