// Package engine is the central orchestrator of the solver.
//
// It wires together all subsystems:
//
//  1. OrderManager holds the owner/order/vault state rounds schedule against.
//  2. RoundScheduler pulls the next round-robin window and dispatches
//     process_order_init per pair, batched at MaxConcurrency.
//  3. OrderProcessor picks a trade mode, runs TradeSimulator, and submits via
//     TransactionPipeline.
//  4. Router keeps a background aggregator-quote feed warm between rounds.
//  5. TelemetryAssembler turns every settlement into a structured log line
//     and Prometheus observation.
//
// Lifecycle: New() → Start() → [runs until ctx is canceled] → Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rainsolver/internal/external"
	"rainsolver/internal/ordermanager"
	"rainsolver/internal/router"
	"rainsolver/internal/scheduler"
	"rainsolver/internal/telemetry"
)

// Config is the engine-relevant slice of solver configuration.
type Config struct {
	RoundInterval  time.Duration
	Shuffle        bool
	IndexerRefresh time.Duration // 0 disables the background indexer poll
}

// Engine owns the round-loop goroutine and the shared subsystems it drives.
type Engine struct {
	cfg       Config
	scheduler *scheduler.Scheduler
	router    *router.Router
	manager   *ordermanager.Manager
	indexer   external.OrderIndexer
	telemetry *telemetry.Assembler
	state     *telemetry.SharedState
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an Engine around its already-constructed subsystems. cmd/solver
// is responsible for building the OrderProcessor, Scheduler, and telemetry
// SharedState beforehand — Engine only owns the loop that drives them.
// indexer may be nil, in which case the background refresh is skipped.
func New(
	cfg Config,
	sched *scheduler.Scheduler,
	rt *router.Router,
	manager *ordermanager.Manager,
	indexer external.OrderIndexer,
	assembler *telemetry.Assembler,
	state *telemetry.SharedState,
	logger *slog.Logger,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		scheduler: sched,
		router:    rt,
		manager:   manager,
		indexer:   indexer,
		telemetry: assembler,
		state:     state,
		logger:    logger.With("component", "engine"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the telemetry HTTP surface, the router's background feed
// (if configured), and the main round loop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.state.Start(); err != nil {
			e.logger.Error("telemetry server error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.router.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("router feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runRounds()
	}()

	if e.indexer != nil && e.cfg.IndexerRefresh > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runIndexerRefresh()
		}()
	}

	return nil
}

// runIndexerRefresh periodically polls the subgraph indexer for newly
// discovered orders. Turning a fetched external.SgOrder into a fully
// indexed types.Pair requires resolving its vault layout on-chain — that
// resolution lives with whatever Client implementation a deployment wires
// in, so this loop only keeps the indexer connection warm and observable.
func (e *Engine) runIndexerRefresh() {
	ticker := time.NewTicker(e.cfg.IndexerRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			orders, err := e.indexer.FetchAll(e.ctx)
			if err != nil {
				e.logger.Warn("indexer refresh failed", "error", err)
				continue
			}
			e.logger.Debug("indexer refresh complete", "orders", len(orders))
		}
	}
}

// runRounds drives InitializeRound/FinalizeRound on a fixed interval until
// the engine's context is canceled.
func (e *Engine) runRounds() {
	ticker := time.NewTicker(e.cfg.RoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runOneRound()
		}
	}
}

// runOneRound dispatches finalize_round onto its own goroutine rather than
// awaiting it inline: a round's settlements (each already running in the
// background, per TransactionPipeline) may still be waiting on receipts
// well after this round's window closes, and round N+1 must not wait on
// them (§4.8/§7's non-blocking background-settlement design).
func (e *Engine) runOneRound() {
	settlements, reports := e.scheduler.InitializeRound(e.ctx, e.cfg.Shuffle)
	for _, r := range reports {
		_ = e.telemetry.ExportPreAssembledSpan(e.ctx, r)
	}
	if len(settlements) == 0 {
		return
	}

	e.state.RecordRound()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for _, span := range scheduler.FinalizeRound(e.ctx, settlements) {
			_ = e.telemetry.ExportPreAssembledSpan(e.ctx, span)
		}
	}()
}

// ApplyDownscaleProtection exposes the owner-manager's downscale pass so
// cmd/solver can schedule it on its own, slower cadence — it is not part of
// every round, only a periodic rebalance (§4.6).
func (e *Engine) ApplyDownscaleProtection() {
	e.manager.ApplyDownscaleProtection()
}

// Stop cancels the round loop, shuts down the telemetry server, and waits
// for every owned goroutine to exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.state.Stop(shutdownCtx); err != nil {
		e.logger.Error("failed to stop telemetry server", "error", err)
	}

	e.wg.Wait()
	e.logger.Info("shutdown complete")
}
