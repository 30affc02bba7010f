package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/CedricFinance/pollwatch/logging"
	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type MonitorConfig struct {
	// ScanInterval is how often the store is scanned for due polls.
	ScanInterval time.Duration
	// Staleness is how long a poll rests after a successful check.
	Staleness       time.Duration
	PersistInterval time.Duration
	Workers         int
	Now             func() time.Time
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ScanInterval:    10 * time.Second,
		Staleness:       5 * time.Minute,
		PersistInterval: time.Second,
		Workers:         4,
		Now:             time.Now,
	}
}

// Monitor re-checks subscribed polls and notifies their subscribers of
// changes. Checks run on a worker pool; a poll is never checked twice at the
// same time.
type Monitor struct {
	store    *services.Subscriptions
	source   services.SnapshotSource
	notifier services.Notifier
	logger   *zap.Logger
	config   MonitorConfig

	pool     pond.Pool
	inFlight *xsync.Map[string, struct{}]
	cron     *cron.Cron
	stopOnce sync.Once
}

func NewMonitor(store *services.Subscriptions, source services.SnapshotSource, notifier services.Notifier, logger *zap.Logger, config MonitorConfig) *Monitor {
	defaults := DefaultMonitorConfig()
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.Staleness <= 0 {
		config.Staleness = defaults.Staleness
	}
	if config.PersistInterval <= 0 {
		config.PersistInterval = defaults.PersistInterval
	}
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}

	return &Monitor{
		store:    store,
		source:   source,
		notifier: notifier,
		logger:   logger.Named("monitor"),
		config:   config,
		pool:     pond.NewPool(config.Workers),
		inFlight: xsync.NewMap[string, struct{}](),
	}
}

// Start schedules the scans and the state flushes. Both stop with Stop.
func (m *Monitor) Start(ctx context.Context) error {
	cronLogger := logging.CronLogger(m.logger)
	m.cron = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.config.ScanInterval), func() {
		m.Scan(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scan: %w", err)
	}

	_, err = m.cron.AddFunc(fmt.Sprintf("@every %s", m.config.PersistInterval), func() {
		if err := m.store.Flush(ctx); err != nil {
			m.logger.Error("flush failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule flush: %w", err)
	}

	m.cron.Start()
	m.logger.Info("monitor started",
		zap.Duration("scan_interval", m.config.ScanInterval),
		zap.Duration("staleness", m.config.Staleness),
		zap.Duration("persist_interval", m.config.PersistInterval),
		zap.Int("workers", m.config.Workers))

	return nil
}

// Stop waits for running checks and writes the state one last time.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		if m.cron != nil {
			<-m.cron.Stop().Done()
		}
		m.pool.StopAndWait()
	})

	if err := m.store.Flush(ctx); err != nil {
		return err
	}
	m.logger.Info("monitor stopped")
	return nil
}

// Scan submits a check for every due poll that is not already being checked
// and returns how many were submitted.
func (m *Monitor) Scan(ctx context.Context) int {
	logger := m.logger.With(zap.String("scan_id", uuid.NewString()))
	submitted := 0

	m.store.ForEachDue(m.config.Now(), m.config.Staleness, func(url string, _ entities.Subscription) {
		if _, running := m.inFlight.LoadOrStore(url, struct{}{}); running {
			logger.Debug("check still in flight", zap.String("url", url))
			return
		}

		m.pool.Submit(func() {
			defer m.inFlight.Delete(url)
			_ = m.check(ctx, logger, url)
		})
		submitted++
	})

	if submitted > 0 {
		logger.Debug("scan submitted checks", zap.Int("submitted", submitted))
	}
	return submitted
}

// InFlight reports whether a check of url is running or queued.
func (m *Monitor) InFlight(url string) bool {
	_, found := m.inFlight.Load(url)
	return found
}

// Check fetches the poll once. A failure leaves the record untouched so the
// poll stays due and is retried on the next scan.
func (m *Monitor) Check(ctx context.Context, url string) error {
	return m.check(ctx, m.logger, url)
}

// check logs through logger, which carries the scan_id when called from Scan.
func (m *Monitor) check(ctx context.Context, logger *zap.Logger, url string) error {
	logger = logger.With(zap.String("url", url))

	snapshot, err := m.source.Snapshot(ctx, url)
	if err != nil {
		logger.Warn("poll check failed", zap.Error(err))
		return err
	}

	previous, recipients, ok := m.store.Advance(url, snapshot, m.config.Now())
	if !ok {
		logger.Debug("poll was unsubscribed during check")
		return nil
	}

	if previous == nil {
		logger.Info("poll tracked", zap.String("title", snapshot.Title))
		return nil
	}

	diff := entities.DiffSnapshots(*previous, *snapshot)
	if diff.IsEmpty() {
		logger.Debug("no change in poll")
		return nil
	}

	message := FormatUpdate(url, *snapshot, diff)
	for _, recipient := range recipients {
		if err := m.notifier.Notify(ctx, recipient, message); err != nil {
			logger.Warn("notification failed", zap.String("recipient", recipient), zap.Error(err))
		}
	}

	logger.Info("poll changed",
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
		zap.Int("changed", len(diff.Changed)),
		zap.Int("recipients", len(recipients)))

	return nil
}
