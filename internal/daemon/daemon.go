// Package daemon wires the long-running service: store, dispatcher,
// reset scheduler, config watcher and the optional metrics endpoint.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/dailycheck/checklistbot/internal/bot"
	"github.com/dailycheck/checklistbot/internal/config"
	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/metrics"
	"github.com/dailycheck/checklistbot/internal/model"
	"github.com/dailycheck/checklistbot/internal/scheduler"
	"github.com/dailycheck/checklistbot/internal/store"
)

// StoreFileName is the single persisted snapshot inside the data directory.
const StoreFileName = "checklists.json"

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// StatusInfo is a point-in-time snapshot for health reporting.
type StatusInfo struct {
	Status    Status    `json:"status"`
	StartTime time.Time `json:"start_time"`
	Users     int       `json:"users"`
}

// Daemon owns every long-lived component. Inbound traffic enters through
// OnCommand/OnCallback/OnPaymentConfirmed, called by whatever concrete chat
// binding is attached.
type Daemon struct {
	cfg        *config.Config
	configPath string

	store     *store.Store
	engine    *entitlement.Engine
	handler   *bot.Handler
	resetter  *scheduler.Resetter
	scheduler *scheduler.Scheduler
	watcher   *ConfigWatcher
	recorder  metrics.Recorder

	metricsServer *http.Server
	status        atomic.Value // Status
	startTime     time.Time
}

// NewDaemon builds the daemon. When configPath is non-empty the config file
// is watched for plan-table and reset-default changes.
func NewDaemon(cfg *config.Config, configPath string, tr bot.Transport, pay bot.PaymentProvider) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		registry := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(registry))
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, StoreFileName), recorder)
	if err != nil {
		return nil, err
	}

	engine := entitlement.NewEngine(PlansFromConfig(cfg.Plans))
	handler := bot.NewHandler(st, engine, tr, pay, recorder)
	resetter := scheduler.NewResetter(st, tr, recorder, cfg.Reset.DefaultTime, cfg.Reset.DefaultTimezone)
	sched, err := scheduler.NewScheduler(resetter, cfg.Reset.TickInterval)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:           cfg,
		configPath:    configPath,
		store:         st,
		engine:        engine,
		handler:       handler,
		resetter:      resetter,
		scheduler:     sched,
		recorder:      recorder,
		metricsServer: metricsServer,
	}
	d.status.Store(StatusStopped)

	if configPath != "" {
		w, err := NewConfigWatcher(configPath, d)
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	return d, nil
}

// PlansFromConfig converts the configured plan table, empty meaning the
// built-in defaults.
func PlansFromConfig(rows []config.PlanConfig) []entitlement.Plan {
	plans := make([]entitlement.Plan, 0, len(rows))
	for _, row := range rows {
		tier, ok := model.ParsePlanTier(row.Tier)
		if !ok {
			continue // Validate rejects these at load; skip defensively on hot-reload
		}
		plans = append(plans, entitlement.Plan{Tier: tier, Days: row.Days, Price: row.Price})
	}
	return plans
}

// Start brings up the metrics endpoint, the scheduler and the config watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	if d.metricsServer != nil {
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", d.metricsServer.Addr))
			if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics endpoint failed", logfields.Error(err))
			}
		}()
	}

	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Daemon started", logfields.Users(d.store.Len()))
	return nil
}

// Stop shuts everything down gracefully.
func (d *Daemon) Stop(ctx context.Context) error {
	d.status.Store(StatusStopping)

	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			slog.Warn("Config watcher stop failed", logfields.Error(err))
		}
	}
	if err := d.scheduler.Stop(ctx); err != nil {
		slog.Warn("Scheduler stop failed", logfields.Error(err))
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			slog.Warn("Metrics endpoint shutdown failed", logfields.Error(err))
		}
	}

	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped")
	return nil
}

// MigrationReport exposes what the load-time store migration did.
func (d *Daemon) MigrationReport() model.MigrationReport {
	return d.store.MigrationReport()
}

// Status returns a health snapshot.
func (d *Daemon) Status() StatusInfo {
	return StatusInfo{
		Status:    d.status.Load().(Status),
		StartTime: d.startTime,
		Users:     d.store.Len(),
	}
}

// OnCommand is the inbound entry point for chat commands.
func (d *Daemon) OnCommand(ctx context.Context, userID, command string, args []string) error {
	return d.handler.HandleCommand(ctx, userID, command, args)
}

// OnCallback is the inbound entry point for inline-button presses.
func (d *Daemon) OnCallback(ctx context.Context, userID, callbackID, token string, ref bot.MessageRef) error {
	return d.handler.HandleCallback(ctx, userID, callbackID, token, ref)
}

// OnPaymentConfirmed is the inbound entry point for the payment collaborator.
func (d *Daemon) OnPaymentConfirmed(ctx context.Context, userID, payloadTag string) error {
	return d.handler.OnPaymentConfirmed(ctx, userID, payloadTag)
}

// applyConfig swaps the hot-reloadable parts of the configuration: the plan
// table and the reset defaults. Data dir, metrics and logging changes need a
// restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.engine.SetPlans(PlansFromConfig(cfg.Plans))
	d.resetter.SetDefaults(cfg.Reset.DefaultTime, cfg.Reset.DefaultTimezone)
	d.cfg = cfg
	slog.Info("Configuration reloaded",
		slog.Int("plans", len(cfg.Plans)),
		slog.String("reset_default_time", cfg.Reset.DefaultTime))
}
