// RainSolver — an off-chain arbitrage solver for Rain Orderbook v4/v5
// orders, settling router, inter-orderbook, and intra-orderbook crossings.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires subsystems, waits for SIGINT/SIGTERM
//	internal/engine            — orchestrator: drives the round loop, owns the telemetry/router lifetime
//	internal/scheduler         — RoundScheduler: batched process_order_init dispatch
//	internal/orderprocessor    — mode selection + TradeSimulator + TransactionPipeline composition
//	internal/simulator         — TradeSimulator capability state machine (router/inter/intra)
//	internal/txpipeline        — transaction submission and background receipt settlement
//	internal/ordermanager      — owner/order/vault state and round-robin cursors
//	internal/contracts         — trade-type -> destination contract resolution
//	internal/router            — sushi-style aggregator quote cache
//	internal/profit            — inter/intra-orderbook profit estimators
//	internal/dryrun            — gas-probe against the configured signer
//	internal/counterparty      — opposing-order ranking for inter/intra crossings
//	internal/telemetry         — structured spans, Prometheus counters, /healthz
//	internal/adapters          — the external-collaborator seam (RPC, wallet, encoder)
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/automaxprocs/maxprocs"

	"rainsolver/internal/adapters"
	"rainsolver/internal/config"
	"rainsolver/internal/contracts"
	"rainsolver/internal/engine"
	"rainsolver/internal/external"
	"rainsolver/internal/orderprocessor"
	"rainsolver/internal/ordermanager"
	"rainsolver/internal/router"
	"rainsolver/internal/scheduler"
	"rainsolver/internal/simulator"
	"rainsolver/internal/telemetry"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("RAINSOLVER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if _, err := maxprocs.Set(maxprocs.Logger(func(fmt string, args ...any) { logger.Debug(fmt, args...) })); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	eng, err := buildEngine(*cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("rainsolver started",
		"max_concurrency", cfg.MaxConcurrency,
		"gas_coverage_percentage", cfg.GasCoveragePercentage,
		"rpc_urls", len(cfg.RPC.URLs),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

// buildEngine wires every subsystem from loaded config. It is split out of
// main so the wiring itself stays testable independent of process lifecycle.
func buildEngine(cfg config.Config, logger *slog.Logger) (*engine.Engine, error) {
	gasCoverageValue, err := cfg.GasCoveragePercentageValue()
	if err != nil {
		return nil, err
	}

	ownerLimits := make(map[common.Address]uint32, len(cfg.OwnerLimits))
	for addr, limit := range cfg.OwnerLimits {
		ownerLimits[common.HexToAddress(addr)] = limit
	}

	manager := ordermanager.New(ownerLimits, logger)
	registry := contracts.New(cfg.Contracts, logger)
	rt := router.New(cfg.RouterFeedURL, logger)

	state := telemetry.NewSharedState(telemetry.Config{ListenAddr: cfg.Telemetry.MetricsAddr}, logger)
	assembler := telemetry.NewAssembler(state, logger)

	keySigners, err := adapters.NewKeySigners(cfg.Wallet.PrivateKeys)
	if err != nil {
		return nil, err
	}

	var indexer external.OrderIndexer
	if idx, err := adapters.NewSubgraphIndexer(cfg.Indexer.URLs); err != nil {
		logger.Warn("subgraph indexer disabled", "error", err)
	} else {
		indexer = idx
	}

	var rpcClient *adapters.RPCClient
	if len(cfg.RPC.URLs) > 0 {
		rpcClient = adapters.NewRPCClient(cfg.RPC.URLs[0], state.RpcMetrics())
	}

	processor := orderprocessor.New(
		orderprocessor.Config{
			Simulator: simulator.Config{
				GasCoveragePercentage: cfg.GasCoveragePercentage,
				GasCoverageValue:      gasCoverageValue,
				GasLimitMultiplier:    cfg.GasLimitMultiplier,
			},
			NativeToken:     common.HexToAddress(cfg.NativeToken),
			ExplorerBaseURL: cfg.ExplorerBaseURL,
		},
		orderprocessor.Deps{
			OrderManager:     manager,
			Registry:         registry,
			Router:           rt,
			PriceOracle:      adapters.ParPriceOracle{},
			Compiler:         adapters.PassthroughCompiler{},
			Client:           rpcClient,
			Encoder:          adapters.OpaqueEncoder{},
			ReceiptProcessor: adapters.AcceptingReceiptProcessor{},
			GasPrice:         gasPriceFunc(),
		},
		logger,
	)

	sched := scheduler.New(
		manager,
		rpcClient,
		keySigners,
		rt,
		adapters.ParPriceOracle{},
		registry,
		processor,
		scheduler.Config{
			MaxConcurrency: cfg.MaxConcurrency,
			NativeToken:    common.HexToAddress(cfg.NativeToken),
		},
		logger,
	)

	return engine.New(
		engine.Config{RoundInterval: 2 * time.Second, Shuffle: true, IndexerRefresh: 30 * time.Second},
		sched,
		rt,
		manager,
		indexer,
		assembler,
		state,
		logger,
	), nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// gasPriceFunc returns a fixed 1 gwei gas price quote. Live gas-price
// discovery belongs to the same RPC transport seam internal/adapters leaves
// unwired — this keeps the second dryrun pass's headroom math exercised
// without fabricating an on-chain gas oracle.
func gasPriceFunc() func() *uint256.Int {
	gasPrice := uint256.NewInt(1_000_000_000)
	return func() *uint256.Int { return gasPrice }
}
