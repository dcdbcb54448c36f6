package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"quill/internal/api"
	"quill/internal/compiler"
	"quill/internal/config"
	"quill/internal/event"
	"quill/internal/fsutil"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/project"
	"quill/internal/version"
	"quill/internal/vfs"
	"quill/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "path to quilld.yaml")
	rootFlag := flag.String("root", "", "project root (defaults to the working directory)")
	entryFlag := flag.String("entry", "", "entry file, absolute or relative to the root")
	flag.Parse()

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLogger(logBuffer, logging.LevelInfo)

	settings, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		logger.Error("settings load failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	settings = applyEnvOverrides(settings)
	if *rootFlag != "" {
		settings.Root = *rootFlag
	}
	if *entryFlag != "" {
		settings.Entry = *entryFlag
	}
	if settings.Root == "" {
		if cwd, err := os.Getwd(); err == nil {
			settings.Root = cwd
		}
	}

	if level, ok := logging.ParseLevel(settings.LogLevel); ok {
		logger = logging.NewLogger(logBuffer, level)
	}

	entry := fsutil.NormalizeEntry(settings.Root, settings.Entry)
	registry := metrics.Default

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus[event.Event](ctx, event.BusOptions{
		Name:        "project_events",
		HistorySize: 256,
		Registry:    registry,
	})

	forwarder := &changeForwarder{}
	watch, err := watcher.New(watcher.Options{
		Logger:         logger,
		Registry:       registry,
		RecheckDelay:   settings.RecheckDelay(),
		LifetimeRounds: settings.Watch.LifetimeRounds,
		OnChangeSet:    forwarder.forward,
	})
	if err != nil {
		logger.Error("watch actor start failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	scheduler, err := project.NewScheduler(project.Options{
		Root:           settings.Root,
		Entry:          entry,
		Compiler:       compiler.NewScanCompiler(),
		Watch:          watch,
		Logger:         logger,
		Registry:       registry,
		Bus:            bus,
		EvictionBudget: settings.Compile.EvictionBudget,
	})
	if err != nil {
		logger.Error("scheduler start failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	forwarder.bind(scheduler)

	logger.Info("quilld started", map[string]string{
		"version": version.Get().Version,
		"root":    settings.Root,
		"entry":   entry,
	})
	if entry != "" {
		scheduler.RequestCompile()
	}

	coordinator := newShutdownCoordinator(logger)

	if settings.API.Addr != "" {
		server := startStatusServer(settings, bus, registry, logger)
		coordinator.Add("status server", func(ctx context.Context) error {
			return server.Shutdown(ctx)
		})
	}
	coordinator.Add("scheduler", func(context.Context) error {
		scheduler.Settle()
		return nil
	})

	<-ctx.Done()
	logger.Info("shutdown requested", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := coordinator.Run(shutdownCtx); err != nil {
		os.Exit(1)
	}
}

func startStatusServer(settings config.Settings, bus *event.Bus[event.Event], registry *metrics.Registry, logger *logging.Logger) *http.Server {
	statusAPI := &api.Server{
		Bus:            bus,
		Registry:       registry,
		Logger:         logger,
		AuthToken:      settings.API.AuthToken,
		AllowedOrigins: settings.API.AllowedOrigins,
	}
	mux := http.NewServeMux()
	statusAPI.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              settings.API.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", map[string]string{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}()
	return server
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv("QUILL_CONFIG"); envValue != "" {
		return envValue
	}
	return "quilld.yaml"
}

func applyEnvOverrides(settings config.Settings) config.Settings {
	if value := os.Getenv("QUILL_ROOT"); value != "" {
		settings.Root = value
	}
	if value := os.Getenv("QUILL_ENTRY"); value != "" {
		settings.Entry = value
	}
	if value := os.Getenv("QUILL_LOG_LEVEL"); value != "" {
		settings.LogLevel = value
	}
	if value := os.Getenv("QUILL_API_ADDR"); value != "" {
		settings.API.Addr = value
	}
	if value := os.Getenv("QUILL_API_TOKEN"); value != "" {
		settings.API.AuthToken = value
	}
	return settings
}

// changeForwarder breaks the construction cycle between the watch actor
// and the scheduler: the watcher is created first with this as its
// consumer, the scheduler is bound right after.
type changeForwarder struct {
	mu        sync.Mutex
	scheduler *project.Scheduler
	backlog   []pendingChange
}

type pendingChange struct {
	set    vfs.ChangeSet
	update *watcher.UpstreamUpdate
}

func (f *changeForwarder) bind(scheduler *project.Scheduler) {
	f.mu.Lock()
	f.scheduler = scheduler
	backlog := f.backlog
	f.backlog = nil
	f.mu.Unlock()

	for _, change := range backlog {
		scheduler.HandleChangeSet(change.set, change.update)
	}
}

func (f *changeForwarder) forward(set vfs.ChangeSet, update *watcher.UpstreamUpdate) {
	f.mu.Lock()
	scheduler := f.scheduler
	if scheduler == nil {
		f.backlog = append(f.backlog, pendingChange{set: set, update: update})
	}
	f.mu.Unlock()

	if scheduler != nil {
		scheduler.HandleChangeSet(set, update)
	}
}
