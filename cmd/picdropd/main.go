// picdropd is the upload daemon: it owns the queue database, runs the
// disk-space monitor and the worker pool, and applies config changes live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"picdrop/internal/bandwidth"
	"picdrop/internal/config"
	"picdrop/internal/coordinator"
	"picdrop/internal/diskspace"
	"picdrop/internal/engine"
	"picdrop/internal/events"
	"picdrop/internal/hooks"
	"picdrop/internal/logging"
	"picdrop/internal/notifications"
	"picdrop/internal/queue"
	"picdrop/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "picdropd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, configPath, _, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewForDir(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// One daemon per data directory.
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "picdropd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another picdropd instance holds %s", lock.Path())
	}
	defer lock.Unlock() //nolint:errcheck

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	// Items stranded mid-upload by a crash go back to the queue with their
	// resume sets intact.
	if recovered, err := store.ResetStuckUploading(ctx); err != nil {
		logger.Warn("recover stuck items", logging.Error(err))
	} else if recovered > 0 {
		logger.Info("recovered interrupted uploads", logging.Int64("items", recovered))
	}

	if err := diskspace.EnsureReserve(cfg.Paths.DataDir); err != nil {
		logger.Warn("create disk reserve file", logging.Error(err))
	}

	bus := events.NewBus()
	manager := queue.NewManager(store, bus)
	notifier := notifications.NewService(cfg)
	hookRunner := hooks.NewRunner(cfg.Hooks, logger)

	monitor := diskspace.NewMonitor(cfg.Paths.DataDir, cfg.Paths.TempDir,
		diskspace.ThresholdsFromMB(cfg.Disk.WarningMB, cfg.Disk.CriticalMB, cfg.Disk.EmergencyMB),
		bus, logger)
	go monitor.Run(ctx)

	// Bridge tier changes to push notifications.
	unsubscribe := bus.Subscribe(func(ev events.Event) {
		if ev.Kind != events.KindTierChanged {
			return
		}
		free := ev.DataFree
		if ev.TempFree < free {
			free = ev.TempFree
		}
		if err := notifier.NotifyDiskPressure(ctx, ev.Tier, free); err != nil {
			logger.Debug("disk pressure notification failed", logging.Error(err))
		}
	})
	defer unsubscribe()

	coord := coordinator.New(cfg.Concurrency.GlobalLimit, cfg.Concurrency.PerHostLimit, logger)
	host := engine.NewIMXHost("", nil)
	sweeper := worker.NewRenameSweeper(host,
		time.Duration(cfg.Workflow.RenameSweepInterval)*time.Second, logger)

	var liveCfg atomic.Pointer[config.Config]
	liveCfg.Store(cfg)

	pool := worker.NewPool(cfg.Concurrency.Workers, worker.Deps{
		Config:    liveCfg.Load,
		Manager:   manager,
		Coord:     coord,
		Disk:      monitor,
		Bandwidth: bandwidth.New(),
		Uploader:  engine.New(host, logger),
		Bus:       bus,
		Notifier:  notifier,
		Hooks:     hookRunner,
		Sweeper:   sweeper,
		Logger:    logger,
	})

	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			liveCfg.Store(next)
			coord.UpdateLimits(next.Concurrency.GlobalLimit, next.Concurrency.PerHostLimit)
			monitor.UpdateThresholds(diskspace.ThresholdsFromMB(
				next.Disk.WarningMB, next.Disk.CriticalMB, next.Disk.EmergencyMB))
			monitor.UpdatePaths(next.Paths.DataDir, next.Paths.TempDir)
		})
		if err != nil {
			logger.Warn("config watcher stopped", logging.Error(err))
		}
	}()

	pool.Start(ctx)
	logger.Info("picdropd started",
		logging.Int("workers", cfg.Concurrency.Workers),
		logging.String("data_dir", cfg.Paths.DataDir))

	<-ctx.Done()
	logger.Info("picdropd shutting down")
	pool.Stop()
	return nil
}
