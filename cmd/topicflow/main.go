// Package main implements the entry point for the topicflow runtime.
// Topicflow evaluates topic-triggered rules against message bus traffic,
// publishes derived messages, and schedules time and sun based topics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/flowkit/topicflow/config"
	"github.com/flowkit/topicflow/expression"
	"github.com/flowkit/topicflow/health"
	"github.com/flowkit/topicflow/memory"
	"github.com/flowkit/topicflow/metric"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/processor/rule"
	"github.com/flowkit/topicflow/scheduler"
	"github.com/flowkit/topicflow/script"
	"github.com/flowkit/topicflow/storage"
	"github.com/flowkit/topicflow/types"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "topicflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting topicflow",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	natsClient, err := createNATSClient(cfg)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := connectToNATS(ctx, natsClient); err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	metricsRegistry := metric.NewMetricsRegistry()

	repos, err := setupRepositories(ctx, cfg, natsClient)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	if err := seedSettings(ctx, cfg, repos.settings); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	proc, sched, cleanup, err := buildPipeline(ctx, cfg, natsClient, repos, metricsRegistry)
	if err != nil {
		return err
	}
	defer cleanup()

	monitor := health.NewMonitor()
	metricsServer := startMetricsServer(cfg, metricsRegistry, monitor)
	if metricsServer != nil {
		defer func() { _ = metricsServer.Stop() }()
	}

	return runWithSignalHandling(ctx, proc, sched, natsClient, monitor, cliCfg.ShutdownTimeout)
}

// repositories bundles the persistence backends selected by
// storage.mode.
type repositories struct {
	rules    types.RuleRepository
	scripts  types.ScriptRepository
	cronJobs types.CronJobRepository
	settings types.SettingsRepository
}

// createNATSClient builds the client from config, honoring credentials.
func createNATSClient(cfg *config.Config) (*natsclient.Client, error) {
	natsURL := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		natsURL = cfg.NATS.URLs[0]
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	return natsclient.NewClient(natsURL, opts...)
}

// connectToNATS establishes the connection and waits for it to be ready.
func connectToNATS(ctx context.Context, natsClient *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", natsClient.URL())
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// setupRepositories creates the persistence layer for the configured
// storage mode.
func setupRepositories(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client) (*repositories, error) {
	if cfg.Storage.Mode == config.StorageModeMemory {
		slog.Warn("Using in-memory storage, rules and scripts are lost on restart")
		return &repositories{
			rules:    storage.NewInMemoryRules(),
			scripts:  storage.NewInMemoryScripts(),
			cronJobs: storage.NewInMemoryCronJobs(),
			settings: storage.NewInMemorySettings(),
		}, nil
	}

	rulesKV, err := openBucket(ctx, natsClient, storage.RulesBucket)
	if err != nil {
		return nil, err
	}
	scriptsKV, err := openBucket(ctx, natsClient, storage.ScriptsBucket)
	if err != nil {
		return nil, err
	}
	cronJobsKV, err := openBucket(ctx, natsClient, storage.CronJobsBucket)
	if err != nil {
		return nil, err
	}
	settingsKV, err := openBucket(ctx, natsClient, storage.SettingsBucket)
	if err != nil {
		return nil, err
	}

	return &repositories{
		rules:    storage.NewRuleStore(rulesKV),
		scripts:  storage.NewScriptStore(scriptsKV),
		cronJobs: storage.NewCronJobStore(cronJobsKV),
		settings: storage.NewSettingsStore(settingsKV),
	}, nil
}

func openBucket(ctx context.Context, natsClient *natsclient.Client, name string) (*natsclient.KVStore, error) {
	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:  name,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return natsClient.NewKVStore(bucket), nil
}

// seedSettings writes the configured coordinates into the settings
// bucket when nothing is stored yet. Stored settings win afterwards.
func seedSettings(ctx context.Context, cfg *config.Config, repo types.SettingsRepository) error {
	if cfg.Scheduler.Latitude == 0 && cfg.Scheduler.Longitude == 0 {
		return nil
	}

	stored, err := repo.Get(ctx)
	if err != nil {
		return err
	}
	if stored.Latitude != 0 || stored.Longitude != 0 {
		return nil
	}

	slog.Info("Seeding location settings from config",
		"latitude", cfg.Scheduler.Latitude,
		"longitude", cfg.Scheduler.Longitude)
	return repo.Save(ctx, &types.Settings{
		Latitude:  cfg.Scheduler.Latitude,
		Longitude: cfg.Scheduler.Longitude,
	})
}

// buildPipeline wires the expression resolver, script executor, bus
// publisher, rule processor, and scheduler together.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	repos *repositories,
	metricsRegistry *metric.MetricsRegistry,
) (*rule.Processor, *scheduler.Scheduler, func(), error) {
	store := memory.NewStore(cfg.Storage.RecentCapacity)

	calc, err := expression.NewCalculator()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create calculator: %w", err)
	}

	scriptExec, err := script.NewExecutor(repos.scripts, metricsRegistry)
	if err != nil {
		_ = calc.Close()
		return nil, nil, nil, fmt.Errorf("create script executor: %w", err)
	}

	resolver := expression.NewResolver(store, calc,
		expression.WithScriptRunner(scriptExec))

	publisher := rule.NewBusPublisher(natsClient, cfg.Rules)
	if err := publisher.Initialize(ctx); err != nil {
		_ = scriptExec.Close()
		_ = calc.Close()
		return nil, nil, nil, fmt.Errorf("initialize publisher: %w", err)
	}

	proc, err := rule.NewProcessor(natsClient, cfg.Rules, store, repos.rules,
		resolver, publisher, metricsRegistry)
	if err != nil {
		_ = scriptExec.Close()
		_ = calc.Close()
		return nil, nil, nil, fmt.Errorf("create rule processor: %w", err)
	}

	sched := scheduler.New(publisher, repos.cronJobs, repos.settings)

	cleanup := func() {
		_ = scriptExec.Close()
		_ = calc.Close()
	}
	return proc, sched, cleanup, nil
}

// startMetricsServer starts the Prometheus and health endpoint when
// enabled. Start blocks, so it runs on its own goroutine.
func startMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry, monitor *health.Monitor) *metric.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	server.SetHealthHandler(health.Handler(monitor, appName))
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server started", "address", server.Address(), "path", cfg.Metrics.Path)
	return server
}

// runWithSignalHandling starts the processor and scheduler and blocks
// until a shutdown signal arrives.
func runWithSignalHandling(
	ctx context.Context,
	proc *rule.Processor,
	sched *scheduler.Scheduler,
	natsClient *natsclient.Client,
	monitor *health.Monitor,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	go watchHealth(signalCtx, monitor, proc, natsClient)

	if err := proc.Initialize(); err != nil {
		return fmt.Errorf("initialize rule processor: %w", err)
	}
	if err := proc.Start(signalCtx); err != nil {
		return fmt.Errorf("start rule processor: %w", err)
	}
	if err := sched.Start(signalCtx); err != nil {
		_ = proc.Stop(shutdownTimeout)
		return fmt.Errorf("start scheduler: %w", err)
	}

	slog.Info("Topicflow started")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	// Stop in reverse order, scheduler first so timed publishes drain
	// before the processor detaches from the bus.
	var firstErr error
	if err := sched.Stop(shutdownTimeout); err != nil {
		firstErr = err
		slog.Error("Scheduler stop failed", "error", err)
	}
	if err := proc.Stop(shutdownTimeout); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		slog.Error("Rule processor stop failed", "error", err)
	}

	if firstErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", firstErr)
	}
	slog.Info("Topicflow shutdown complete")
	return nil
}

// watchHealth feeds the health monitor from the processor and the NATS
// connection until the context ends.
func watchHealth(ctx context.Context, monitor *health.Monitor, proc *rule.Processor, natsClient *natsclient.Client) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	update := func() {
		monitor.Update("rule-processor", health.FromComponentHealth("rule-processor", proc.Health()))
		if natsClient.IsHealthy() {
			monitor.UpdateHealthy("nats", "Connected")
		} else {
			monitor.UpdateUnhealthy("nats", "Connection lost")
		}
	}

	update()
	for {
		select {
		case <-ticker.C:
			update()
		case <-ctx.Done():
			return
		}
	}
}

// loadConfig loads configuration from the given path, or defaults when
// the path is empty.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path == "" {
		return loader.Load()
	}
	return loader.LoadFile(path)
}
