package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/keeper"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/notify"
	"git.home.luguber.info/inful/statekeep/internal/state"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const (
	backupJobName = "backup"
	healthPath    = "/health"
)

// Info is a point-in-time view of the daemon.
type Info struct {
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	LastBackup  *time.Time `json:"last_backup,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextBackup  *time.Time `json:"next_backup,omitempty"`
	MetricsAddr string     `json:"metrics_addr,omitempty"`
}

// Daemon runs scheduled backups and keeps document caches fresh while the
// process stays up.
type Daemon struct {
	keeper   *keeper.Keeper
	registry *prom.Registry
	logger   *slog.Logger

	mu         sync.RWMutex
	status     Status
	startTime  time.Time
	lastBackup *time.Time
	lastError  string

	scheduler *Scheduler
	backupJob gocron.Job
	watcher   *state.Watcher
	cancelSub context.CancelFunc
	server    *http.Server
	listener  net.Listener
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithRegistry exposes reg on the metrics endpoint when metrics are enabled.
func WithRegistry(reg *prom.Registry) Option {
	return func(d *Daemon) { d.registry = reg }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a stopped daemon driving k.
func New(k *keeper.Keeper, opts ...Option) *Daemon {
	d := &Daemon{keeper: k, logger: slog.Default(), status: StatusStopped}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the backup schedule, the document watcher, the event
// subscription and the metrics endpoint. Components already started are shut
// down again when a later one fails.
func (d *Daemon) Start(ctx context.Context) (err error) {
	d.mu.Lock()
	if d.status == StatusRunning || d.status == StatusStarting {
		d.mu.Unlock()
		return errors.DaemonError("daemon already running").Build()
	}
	d.status = StatusStarting
	d.startTime = time.Now()
	d.mu.Unlock()

	defer func() {
		if err != nil {
			d.shutdown(context.Background())
			d.setStatus(StatusError)
		}
	}()

	cfg := d.keeper.Config()

	if err = d.startServer(cfg.Metrics.Enabled, cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
		return err
	}

	w, err := state.NewWatcher(d.logger)
	if err != nil {
		return err
	}
	d.watcher = w
	for _, path := range cfg.State.Documents {
		if err = w.Register(d.keeper.Document(lock.ResourceSettings, path)); err != nil {
			return err
		}
	}
	w.Start(ctx)

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancelSub = cancel
	if err = d.keeper.Notifier().Subscribe(subCtx, d.onEvent); err != nil {
		return err
	}

	d.scheduler, err = NewScheduler(d.logger)
	if err != nil {
		return err
	}
	if interval := cfg.BackupInterval(); interval > 0 {
		jobCtx := context.WithoutCancel(ctx)
		d.backupJob, err = d.scheduler.ScheduleEvery(backupJobName, interval, func() { d.RunBackup(jobCtx) })
		if err != nil {
			return err
		}
	}
	d.scheduler.Start(ctx)

	d.setStatus(StatusRunning)
	d.logger.Info("Daemon started",
		slog.Int("documents", len(cfg.State.Documents)),
		slog.Duration("backup_interval", cfg.BackupInterval()),
		slog.Bool("metrics", d.server != nil))
	return nil
}

// Stop shuts every component down. Stopping a stopped daemon is a no-op.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.status == StatusStopped || d.status == StatusStopping {
		d.mu.Unlock()
		return nil
	}
	d.status = StatusStopping
	d.mu.Unlock()

	err := d.shutdown(ctx)
	d.setStatus(StatusStopped)
	d.logger.Info("Daemon stopped")
	return err
}

// Run starts the daemon, blocks until ctx is done and stops it again.
func (d *Daemon) Run(ctx context.Context, stopTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// RunBackup performs one backup run and records its outcome in Info.
func (d *Daemon) RunBackup(ctx context.Context) {
	summary, err := d.keeper.Backup(ctx)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.lastError = err.Error()
		d.logger.Error("Scheduled backup failed", logfields.Job(backupJobName), logfields.Error(err))
		return
	}
	d.lastBackup = &now
	d.lastError = ""
	d.logger.Info("Scheduled backup completed",
		logfields.Job(backupJobName),
		slog.Int("changed", summary.ChangedCount()),
		slog.Int("sources", len(summary.Items)))
}

// Info returns the current status.
func (d *Daemon) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info := Info{
		Status:     d.status,
		StartTime:  d.startTime,
		LastBackup: d.lastBackup,
		LastError:  d.lastError,
	}
	if d.backupJob != nil && d.status == StatusRunning {
		if next, err := d.backupJob.NextRun(); err == nil && !next.IsZero() {
			info.NextBackup = &next
		}
	}
	if d.listener != nil {
		info.MetricsAddr = d.listener.Addr().String()
	}
	return info
}

// onEvent drops cached documents changed by other processes.
func (d *Daemon) onEvent(ev notify.Event) {
	if ev.Origin == notify.Origin() || ev.Kind != notify.KindStateCommitted || ev.Path == "" {
		return
	}
	if d.keeper.InvalidatePath(ev.Path) {
		d.logger.Debug("Cache invalidated by remote commit",
			logfields.Path(ev.Path),
			logfields.Event(ev.Kind),
			slog.String("origin", ev.Origin))
	}
}

func (d *Daemon) startServer(enabled bool, addr, path string) error {
	if !enabled || d.registry == nil {
		return nil
	}
	registerRuntimeCollectors(d.registry)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.DaemonError("failed to listen for metrics").
			WithCause(err).
			WithContext("addr", addr).
			Build()
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.HTTPHandler(d.registry))
	mux.HandleFunc(healthPath, d.HealthHandler)
	d.listener = ln
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := d.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	d.logger.Info("Metrics endpoint listening", slog.String("addr", ln.Addr().String()), logfields.Path(path))
	return nil
}

func (d *Daemon) shutdown(ctx context.Context) error {
	var errs []error
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		d.scheduler = nil
		d.backupJob = nil
	}
	if d.cancelSub != nil {
		d.cancelSub()
		d.cancelSub = nil
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		d.watcher = nil
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		d.server = nil
		d.listener = nil
	}
	if err := stderrors.Join(errs...); err != nil {
		return errors.DaemonError("daemon shutdown incomplete").WithCause(err).Build()
	}
	return nil
}

func (d *Daemon) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// registerRuntimeCollectors adds Go runtime and process metrics once per registry.
func registerRuntimeCollectors(reg *prom.Registry) {
	for _, c := range []prom.Collector{
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prom.AlreadyRegisteredError
			if !stderrors.As(err, &are) {
				slog.Debug("Collector registration failed", logfields.Error(err))
			}
		}
	}
}
