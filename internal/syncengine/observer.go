package syncengine

import (
	"context"
	"sync"
	"time"

	"distrihub-sync-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// ObserverConfig holds configuration for the connectivity observer.
type ObserverConfig struct {
	// StabilizeDelay is how long to wait after coming online before
	// starting a pass, letting the network settle.
	// Default: 3 seconds
	StabilizeDelay time.Duration

	// CleanupInterval is how often old terminal operations are purged.
	// Default: 1 hour
	CleanupInterval time.Duration

	// Retention is how long completed/failed operations are kept.
	// Default: 7 days
	Retention time.Duration
}

// DefaultObserverConfig returns default observer configuration.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		StabilizeDelay:  3 * time.Second,
		CleanupInterval: 1 * time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// Observer decides when the engine should run without the rest of the
// app knowing about connectivity plumbing: a sync pass after coming
// online (debounced by the stabilization delay), a pass when the app
// becomes visible while online, and periodic idle-time cleanup of old
// terminal operations.
type Observer struct {
	engine  *Engine
	repo    repository.QueueRepository
	signals Signals
	config  ObserverConfig
	log     *logrus.Entry

	ticker         *time.Ticker
	stabilizeTimer *time.Timer
	stopCh         chan struct{}
	stopOnce       sync.Once
	unsubs         []func()
	mu             sync.Mutex
	isRunning      bool
}

// NewObserver creates a connectivity and lifecycle observer.
func NewObserver(engine *Engine, repo repository.QueueRepository, signals Signals, config ObserverConfig) *Observer {
	if config.StabilizeDelay == 0 {
		config.StabilizeDelay = 3 * time.Second
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 1 * time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 7 * 24 * time.Hour
	}

	return &Observer{
		engine:  engine,
		repo:    repo,
		signals: signals,
		config:  config,
		log:     logrus.WithField("component", "sync-observer"),
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to signals and begins the cleanup schedule.
func (o *Observer) Start() {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return
	}
	o.isRunning = true
	o.ticker = time.NewTicker(o.config.CleanupInterval)
	// unsubs is read by Stop under the same lock
	o.unsubs = append(o.unsubs,
		o.signals.OnConnectivityChange(o.handleConnectivity),
		o.signals.OnVisibilityChange(o.handleVisibility),
	)
	o.mu.Unlock()

	go o.run()

	o.log.WithFields(logrus.Fields{
		"stabilize_delay":  o.config.StabilizeDelay,
		"cleanup_interval": o.config.CleanupInterval,
		"retention":        o.config.Retention,
	}).Info("observer started")
}

func (o *Observer) run() {
	for {
		select {
		case <-o.ticker.C:
			o.runCleanup()
		case <-o.stopCh:
			o.log.Info("observer stopped")
			return
		}
	}
}

func (o *Observer) handleConnectivity(online bool) {
	o.engine.SetOnline(online)

	o.mu.Lock()
	if o.stabilizeTimer != nil {
		o.stabilizeTimer.Stop()
		o.stabilizeTimer = nil
	}
	if online {
		// let the network stabilize before draining; a drop before the
		// delay elapses cancels the pass
		o.stabilizeTimer = time.AfterFunc(o.config.StabilizeDelay, func() {
			if _, err := o.engine.SyncNow(context.Background()); err != nil && err != ErrSyncInProgress {
				o.log.WithError(err).Warn("sync after reconnect failed")
			}
		})
	}
	o.mu.Unlock()
}

func (o *Observer) handleVisibility(visible bool) {
	if !visible || !o.engine.IsOnline() {
		return
	}
	go func() {
		if _, err := o.engine.SyncNow(context.Background()); err != nil && err != ErrSyncInProgress {
			o.log.WithError(err).Warn("sync on visibility failed")
		}
	}()
}

// runCleanup purges completed/failed operations past retention.
func (o *Observer) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-o.config.Retention)
	deleted, err := o.repo.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		o.log.WithError(err).Error("cleanup failed")
		return
	}
	if deleted > 0 {
		o.log.WithField("deleted", deleted).Info("cleaned up old operations")
		o.engine.RefreshCounts(ctx)
	}
}

// RunCleanupNow triggers an immediate cleanup, returning the number of
// operations deleted.
func (o *Observer) RunCleanupNow(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-o.config.Retention)
	deleted, err := o.repo.CleanupOlderThan(ctx, cutoff)
	if err == nil && deleted > 0 {
		o.engine.RefreshCounts(ctx)
	}
	return deleted, err
}

// Stop unsubscribes from signals and halts the cleanup schedule.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		for _, unsub := range o.unsubs {
			unsub()
		}
		o.unsubs = nil
		if o.stabilizeTimer != nil {
			o.stabilizeTimer.Stop()
		}
		if o.ticker != nil {
			o.ticker.Stop()
		}
		close(o.stopCh)
		o.isRunning = false
	})
}
