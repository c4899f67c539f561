package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/autosend/internal/config"
)

// Daemon runs components in dependency order and stops them in reverse.
type Daemon struct {
	cfg             *config.Config
	components      []Component
	order           []string
	health          HealthStatus
	uptimeStart     time.Time
	mu              sync.RWMutex
	healthCheckDone chan struct{}

	shutdownTimeout        time.Duration
	startupShutdownTimeout time.Duration
	healthInterval         time.Duration
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	d := &Daemon{
		cfg:             cfg,
		components:      make([]Component, 0),
		health:          StatusStarting,
		uptimeStart:     time.Now(),
		healthCheckDone: make(chan struct{}),
	}
	err := config.ParseDurations(
		config.DurationField{Key: "daemon.shutdown_timeout", Value: cfg.Daemon.ShutdownTimeout, Default: config.DefaultDaemonShutdownTimeout, Dst: &d.shutdownTimeout},
		config.DurationField{Key: "daemon.startup_shutdown_timeout", Value: cfg.Daemon.StartupShutdownTimeout, Default: config.DefaultDaemonStartupShutdownTime, Dst: &d.startupShutdownTimeout},
		config.DurationField{Key: "daemon.health_check_interval", Value: cfg.Daemon.HealthCheckInterval, Default: config.DefaultDaemonHealthCheckInterval, Dst: &d.healthInterval},
	)
	if err != nil {
		return nil, err
	}
	if d.healthInterval <= 0 {
		return nil, fmt.Errorf("daemon.health_check_interval must be positive")
	}
	return d, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start blocks until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts every component down.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Autosend daemon starting...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		_ = d.gracefulShutdown(context.WithoutCancel(ctx), d.startupShutdownTimeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Autosend daemon is running", "components", len(d.components))

	go d.startHealthMonitor(ctx)

	<-ctx.Done()

	slog.Info("Context cancelled, initiating graceful shutdown", "reason", ctx.Err())
	d.setHealth(StatusStopping)
	close(d.healthCheckDone)
	if err := d.gracefulShutdown(context.Background(), d.shutdownTimeout); err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// Uptime is measured from NewDaemon.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.uptimeStart)
}

func (d *Daemon) ComponentHealth(ctx context.Context) map[string]*ComponentHealth {
	d.mu.RLock()
	components := make([]Component, len(d.components))
	copy(components, d.components)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(ctx)
		switch {
		case health == nil:
			health = NewComponentHealth(comp.Name(), err)
		case err != nil:
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

// HealthErrors flattens ComponentHealth into name to error, nil when healthy.
func (d *Daemon) HealthErrors(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for name, h := range d.ComponentHealth(ctx) {
		switch {
		case h.Healthy:
			out[name] = nil
		case h.Error != nil:
			out[name] = h.Error
		default:
			out[name] = fmt.Errorf("%s unhealthy", name)
		}
	}
	return out
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	slog.Info("Configuration validated", "port", d.cfg.Server.Port, "store", d.cfg.Store.Driver)
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	d.mu.Lock()
	order, err := resolveOrder(d.components)
	if err == nil {
		d.order = order
	}
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("resolve component order: %w", err)
	}
	slog.Debug("Component order resolved", "order", order)

	for _, name := range order {
		comp := d.getComponentByName(name)
		slog.Info("Initializing component...", "component", name)
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
	}

	slog.Info("All components initialized", "count", len(order))
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, name := range d.startOrder() {
		comp := d.getComponentByName(name)
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}
	return nil
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.shutdownComponents(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Shutdown completed with error", "error", err)
		} else {
			slog.Info("Graceful shutdown completed")
		}
		return err
	case <-shutdownCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
		slog.Error("Shutdown timeout exceeded", "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (d *Daemon) shutdownComponents(ctx context.Context) error {
	order := d.startOrder()
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		comp := d.getComponentByName(name)
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		slog.Info("Component stopped", "component", name)
	}

	d.setHealth(StatusStopped)
	return errors.Join(errs...)
}

func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...")
	_ = d.shutdownComponents(ctx)
}

// startOrder is the resolved dependency order, or registration order before
// initialization.
func (d *Daemon) startOrder() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) > 0 {
		return append([]string(nil), d.order...)
	}
	names := make([]string, 0, len(d.components))
	for _, comp := range d.components {
		names = append(names, comp.Name())
	}
	return names
}

func (d *Daemon) getComponentByName(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) Component(name string) Component {
	return d.getComponentByName(name)
}

func (d *Daemon) startHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(d.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.healthCheckDone:
			return
		case <-ticker.C:
			d.checkComponentHealth(ctx)
		}
	}
}

func (d *Daemon) checkComponentHealth(ctx context.Context) {
	healths := d.ComponentHealth(ctx)
	unhealthy := 0
	for name, health := range healths {
		if !health.Healthy {
			unhealthy++
			slog.Warn("Component unhealthy", "component", name, "error", health.Error)
		}
	}
	if unhealthy > 0 {
		slog.Warn("Daemon has unhealthy components", "count", unhealthy, "total", len(healths))
		return
	}
	slog.Debug("All components healthy", "count", len(healths))
}
