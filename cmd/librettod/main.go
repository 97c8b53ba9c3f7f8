package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"libretto/internal/catalog"
	"libretto/internal/config"
	"libretto/internal/dedupe"
	"libretto/internal/identity"
	"libretto/internal/logging"
	"libretto/internal/mapping"
	"libretto/internal/pipeline"
	"libretto/internal/staging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "librettod")

	// Single-instance guard: two daemons polling one staging database would
	// double heartbeat and reclaim traffic for no throughput gain.
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "librettod.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire daemon lock", logging.Error(err))
		os.Exit(1)
	}
	if !locked {
		fmt.Fprintln(os.Stderr, "librettod is already running")
		os.Exit(1)
	}
	defer lock.Unlock() //nolint:errcheck

	stagingStore, err := staging.Open(cfg)
	if err != nil {
		logger.Error("open staging store", logging.Error(err))
		os.Exit(1)
	}
	defer stagingStore.Close()

	identities, err := identity.Open(cfg)
	if err != nil {
		logger.Error("open identity store", logging.Error(err))
		os.Exit(1)
	}
	defer identities.Close()

	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		os.Exit(1)
	}
	defer catalogStore.Close()

	orchestrator := pipeline.NewOrchestrator(cfg, pipeline.Deps{
		Staging:    stagingStore,
		Registry:   mapping.NewDefaultRegistry(),
		Identities: identities,
		Matcher:    dedupe.NoopMatcher{},
		Catalog:    catalogStore,
	}, logger)

	if err := orchestrator.Start(ctx); err != nil {
		logger.Error("start orchestrator", logging.Error(err))
		os.Exit(1)
	}

	logger.Info("librettod started",
		logging.Int("workers", cfg.Pipeline.Workers),
		logging.String("data_dir", cfg.Paths.DataDir),
	)

	<-ctx.Done()
	logger.Info("librettod shutting down")
	orchestrator.Stop()
}
