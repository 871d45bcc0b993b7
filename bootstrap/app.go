package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/monitor"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/version"
)

// App owns the process-wide concerns around a set of pipelines.
type App struct {
	Name     string
	Version  string
	Cfg      *config.Config
	Logger   *logger.Logger
	Registry *monitor.Registry
	Metrics  *observability.StageMetrics

	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook

	monitor *monitor.Server
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
}

// NewApp applies defaults to cfg, validates it and initializes the logger.
// An empty Version is filled from the build information.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg.Version == "" {
		cfg.Version = version.Short()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)

	app := &App{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		Registry:        monitor.NewRegistry(cfg.Name, cfg.Version),
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(cfg.Logging)
		app.Logger = logger.GetGlobalLogger().WithComponent(cfg.Name)
	}

	// Instruments bind to the global provider, which forwards to the SDK
	// provider once startup installs one.
	metrics, err := observability.NewStageMetrics(observability.Meter(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("stage metrics: %w", err)
	}
	app.Metrics = metrics

	return app, nil
}

// StageOptions returns the options every stage of this process should carry:
// the shared metrics, the app logger and the settings configured under
// stages.<name>. Extra options are applied last.
func (a *App) StageOptions(name string, extra ...pipeline.Option) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLogger(a.Logger.WithComponent("pipeline")),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithConfig(a.Cfg.Stage(name)),
	}
	return append(opts, extra...)
}

// Track adds nodes to the monitor registry without running them.
func (a *App) Track(nodes ...pipeline.Node) {
	a.Registry.Add(nodes...)
}

// Run starts the process, runs the terminal nodes to completion and shuts
// down. A signal or ctx cancellation aborts every tracked node with
// ErrCodeCanceled. The first stage failure is returned, and the tracked
// nodes still running are aborted.
func (a *App) Run(ctx context.Context, terminals ...pipeline.Node) error {
	a.Track(terminals...)
	return a.RunTask(ctx, func(ctx context.Context) error {
		err := pipeline.Wait(ctx, terminals...)
		switch {
		case ctx.Err() != nil:
			cause := context.Cause(ctx)
			a.abortAll(func(n pipeline.Node) error { return errors.Canceled(n.Name(), cause) })
		case err != nil:
			a.abortAll(func(n pipeline.Node) error { return errors.Aborted(n.Name(), err) })
		}
		return err
	})
}

// RunTask starts the process, runs task under a context canceled by
// SIGINT/SIGTERM and shuts down when task returns.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		if stopErr := a.stop(); stopErr != nil {
			a.Logger.Error("shutdown after failed startup", logger.Fields("error", stopErr.Error()))
		}
		return err
	}

	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("received signal, canceling pipelines", logger.Fields("signal", sig.String()))
			cancel(fmt.Errorf("received %s", sig))
		case <-taskCtx.Done():
		}
	}()

	start := time.Now()
	taskErr := task(taskCtx)
	if taskErr != nil {
		a.Logger.Error("pipelines failed", logger.Fields(
			"error", taskErr.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		))
	} else {
		a.Logger.Info("pipelines completed", logger.Fields("duration_ms", time.Since(start).Milliseconds()))
	}

	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

func (a *App) startup(ctx context.Context) error {
	info := version.Get()
	fields := info.Fields()
	fields["name"] = a.Name
	a.Logger.Info("starting application", fields)

	if a.Cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, a.Cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracer: %w", err)
		}
		a.tracer = tp
	}
	if a.Cfg.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, &a.Cfg.Metrics)
		if err != nil {
			return fmt.Errorf("meter: %w", err)
		}
		a.meter = mp
	}
	if a.Cfg.Monitor.Enabled {
		srv := monitor.NewServer(a.Cfg.Monitor, a.Registry)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		a.monitor = srv
	}

	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	return nil
}

// MonitorAddr returns the bound monitor address, or "" when the monitor is
// disabled or not started.
func (a *App) MonitorAddr() string {
	if a.monitor == nil {
		return ""
	}
	return a.monitor.Addr()
}

// abortAll aborts every tracked node still running and waits for them
// within the graceful timeout.
func (a *App) abortAll(reason func(pipeline.Node) error) {
	nodes := a.Registry.Nodes()
	for _, n := range nodes {
		select {
		case <-n.Done():
		default:
			n.Abort(reason(n))
		}
	}

	deadline := time.NewTimer(a.gracefulTimeout)
	defer deadline.Stop()
	for _, n := range nodes {
		select {
		case <-n.Done():
		case <-deadline.C:
			a.Logger.Warn("stages still running after graceful timeout", logger.Fields(
				"stage", n.Name(),
				"timeout", a.gracefulTimeout.String(),
			))
			return
		}
	}
}

// Shutdown stops the monitor and flushes exporters. Use when managing your
// own lifecycle instead of Run.
func (a *App) Shutdown(_ context.Context) error {
	return a.stop()
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := runHooks(ctx, a.onStop); err != nil {
		errs = append(errs, fmt.Errorf("onStop: %w", err))
	}
	if a.monitor != nil {
		if err := a.monitor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		a.monitor = nil
	}
	if a.meter != nil {
		if err := a.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
		a.meter = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		a.tracer = nil
	}

	err := stderrors.Join(errs...)
	if err != nil {
		a.Logger.Error("shutdown completed with errors", logger.Fields("error", err.Error()))
		return err
	}
	a.Logger.Info("application shutdown complete")
	return nil
}
