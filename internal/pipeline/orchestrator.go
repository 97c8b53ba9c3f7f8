package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"libretto/internal/catalog"
	"libretto/internal/config"
	"libretto/internal/dedupe"
	"libretto/internal/identity"
	"libretto/internal/logging"
	"libretto/internal/mapping"
	"libretto/internal/staging"
)

// Deps are the collaborators the orchestrator drives. Catalog is an interface
// so tests can substitute counting fakes; Matcher defaults to the noop
// strategy when nil.
type Deps struct {
	Staging     *staging.Store
	Registry    *mapping.Registry
	Transformer mapping.Transformer
	Identities  *identity.Store
	Matcher     dedupe.Matcher
	Catalog     catalog.Store
}

// Orchestrator coordinates the normalization worker pool.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	linkRetryAttempts int
	claimBatchSize    int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator constructs the worker pool from configuration.
func NewOrchestrator(cfg *config.Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if deps.Matcher == nil {
		deps.Matcher = dedupe.NoopMatcher{}
	}
	return &Orchestrator{
		cfg:               cfg,
		deps:              deps,
		logger:            logging.NewComponentLogger(logger, "orchestrator"),
		pollInterval:      time.Duration(cfg.Pipeline.PollInterval) * time.Second,
		errorRetry:        time.Duration(cfg.Pipeline.ErrorRetryInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Pipeline.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Pipeline.HeartbeatTimeout) * time.Second,
		linkRetryAttempts: cfg.Pipeline.LinkRetryAttempts,
		claimBatchSize:    max(cfg.Pipeline.ClaimBatchSize, 1),
	}
}

// Start launches the worker pool. It returns immediately; workers run until
// Stop or context cancellation.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}
	workers := o.cfg.Pipeline.Workers
	if workers < 1 {
		return fmt.Errorf("invalid worker count %d", workers)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true

	o.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go o.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates the worker pool and waits for in-flight records to finish
// or abandon.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

func (o *Orchestrator) runWorker(ctx context.Context, index int) {
	defer o.wg.Done()
	logger := o.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.reclaimStale(ctx, logger)

		records, err := o.deps.Staging.ClaimBatch(ctx, o.claimBatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("failed to claim pending staging records",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check staging database access"),
			)
			if !sleepCtx(ctx, o.errorRetry) {
				return
			}
			continue
		}
		if len(records) == 0 {
			if !sleepCtx(ctx, o.pollInterval) {
				return
			}
			continue
		}

		for _, record := range records {
			// Records still claimed at shutdown return to pending via the
			// heartbeat reclaim.
			select {
			case <-ctx.Done():
				return
			default:
			}
			o.process(ctx, logger, record)
		}
	}
}

// NormalizeRecord runs the normalization flow for one specific record,
// claiming it first. Records that are not pending are skipped without side
// effects, which makes re-running a finished record a no-op.
func (o *Orchestrator) NormalizeRecord(ctx context.Context, id string) error {
	claimed, err := o.deps.Staging.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	record, err := o.deps.Staging.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("staging record %s disappeared after claim", id)
	}
	o.process(ctx, o.logger, record)
	return nil
}

// reclaimStale returns processing records with expired heartbeats to pending.
func (o *Orchestrator) reclaimStale(ctx context.Context, logger *slog.Logger) {
	if o.heartbeatTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-o.heartbeatTimeout)
	reclaimed, err := o.deps.Staging.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Warn("reclaim stale processing failed; stuck records may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check staging database access"),
		)
		return
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale records",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
}

// heartbeatLoop refreshes a claimed record's lease until processing ends.
func (o *Orchestrator) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, recordID string) {
	defer wg.Done()
	ticker := time.NewTicker(o.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.deps.Staging.UpdateHeartbeat(ctx, recordID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
