// Package scheduler implements RoundScheduler: the batched, bounded-
// concurrency control loop described in §4.7 — initialize_round pulls the
// next batch of pairs from OrderManager, warms per-order market data,
// dispatches process_order_init tasks, and finalize_round sequentially
// awaits the resulting settlement closures into structured telemetry spans.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"rainsolver/internal/contracts"
	"rainsolver/internal/external"
	"rainsolver/internal/ordermanager"
	"rainsolver/internal/router"
	"rainsolver/pkg/types"
)

// defaultPreCheckTradeType is the trade type process_order_init's cheap
// destination pre-check uses. The spec leaves get_addresses_for_trade's
// tradeType argument optional at this stage; Router is the solver's primary
// mode (§1 lists it first), so an order lacking even a router destination is
// rejected before a signer is ever reserved.
const defaultPreCheckTradeType = types.TradeRouter

// SettlementFunc is a deferred settlement: process_order_init either
// resolves it immediately (ZeroOutput / UndefinedTradeAddresses synthetic
// outcomes) or hands back the OrderProcessor's real settlement closure,
// awaited later by FinalizeRound.
type SettlementFunc func(ctx context.Context) types.PreAssembledSpan

// OrderProcessor is the mode-selecting, simulate-and-submit collaborator
// RoundScheduler dispatches each initialized order to. Its concrete
// implementation composes CounterpartySelector, the TradeSimulator
// variants, and TransactionPipeline — orchestration RoundScheduler itself
// stays agnostic of.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, pair *types.Pair, signer external.Signer, block uint64) SettlementFunc
}

// Config is the scheduler-relevant slice of solver configuration.
type Config struct {
	MaxConcurrency uint32
	// NativeToken is the wrapped-native (ETH-equivalent) token address used
	// to warm market-price lookups ahead of profit estimation.
	NativeToken common.Address
}

// Scheduler is the RoundScheduler component.
type Scheduler struct {
	orderManager *ordermanager.Manager
	client       external.Client
	wallets      external.WalletManager
	router       *router.Router
	priceOracle  external.MarketPriceOracle
	registry     *contracts.Registry
	processor    OrderProcessor
	cfg          Config
	logger       *slog.Logger
}

// New builds a Scheduler. MaxConcurrency is clamped to at least 1.
func New(
	orderManager *ordermanager.Manager,
	client external.Client,
	wallets external.WalletManager,
	rt *router.Router,
	priceOracle external.MarketPriceOracle,
	registry *contracts.Registry,
	processor OrderProcessor,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 1
	}
	return &Scheduler{
		orderManager: orderManager,
		client:       client,
		wallets:      wallets,
		router:       rt,
		priceOracle:  priceOracle,
		registry:     registry,
		processor:    processor,
		cfg:          cfg,
		logger:       logger.With("component", "round-scheduler"),
	}
}

// InitializeRound pulls the next round-robin window of pairs, processes them
// in batches of cfg.MaxConcurrency, and returns the collected settlement
// closures. A block-number fetch failure at round start is the only
// per-round fatal outcome (§7): it is reported as a checkpoint span and the
// round produces no settlements.
func (s *Scheduler) InitializeRound(ctx context.Context, shuffle bool) ([]SettlementFunc, []types.PreAssembledSpan) {
	orders := s.orderManager.GetNextRoundOrders(shuffle)

	block, err := s.client.GetBlockNumber(ctx)
	if err != nil {
		s.logger.Error("round preprocess failed", "error", err)
		return nil, []types.PreAssembledSpan{{
			Name:     "round_preprocess",
			Severity: types.SeverityHigh,
			Reason:   types.ReasonUnexpectedError,
			Attrs:    map[string]any{"error": err.Error()},
		}}
	}

	var settlements []SettlementFunc
	var batch []*types.Pair
	counter := s.cfg.MaxConcurrency

	flush := func() {
		if len(batch) == 0 {
			return
		}
		settlements = append(settlements, s.runBatch(ctx, batch, block)...)
		batch = nil
		counter = s.cfg.MaxConcurrency
		if newBlock, err := s.client.GetBlockNumber(ctx); err == nil {
			block = newBlock
		}
	}

	for _, pair := range orders {
		if counter == s.cfg.MaxConcurrency {
			go func(b uint64) { _ = s.router.Update(ctx, b) }(block)
		}
		go s.prepareRouter(ctx, pair, block)

		batch = append(batch, pair)
		counter--
		if counter == 0 {
			flush()
		}
	}
	flush()

	return settlements, nil
}

// runBatch runs process_order_init for every pair in the batch concurrently
// and waits for all of them — the "await all(batch)" step.
func (s *Scheduler) runBatch(ctx context.Context, pairs []*types.Pair, block uint64) []SettlementFunc {
	results := make([]SettlementFunc, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			results[i] = s.processOrderInit(gctx, pair, block)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// processOrderInit implements §4.7's four fast-path steps.
func (s *Scheduler) processOrderInit(ctx context.Context, pair *types.Pair, block uint64) SettlementFunc {
	s.orderManager.RefreshPairBalances(pair)

	if pair.SellTokenVaultBalance == nil || pair.SellTokenVaultBalance.IsZero() {
		return resolvedSettlement(pair, types.ReasonZeroOutput, types.SeverityLow, nil)
	}

	if addrs := s.registry.GetAddressesForTrade(pair, defaultPreCheckTradeType); !addrs.OK {
		return resolvedSettlement(pair, types.ReasonUndefinedTradeAddresses, types.SeverityHigh, map[string]any{
			"message": "no destination contract configured for this pair's trade type",
		})
	}

	signer, err := s.wallets.GetRandomSigner(ctx, true)
	if err != nil {
		return resolvedSettlement(pair, types.ReasonUnexpectedError, types.SeverityHigh, map[string]any{"error": err.Error()})
	}

	return s.processor.ProcessOrder(ctx, pair, signer, block)
}

// prepareRouter warms three market-price lookups ahead of the order's
// profit estimate: the direct sell/buy ratio and each side's price against
// the native token (used to convert profit legs into a common unit).
func (s *Scheduler) prepareRouter(ctx context.Context, pair *types.Pair, block uint64) {
	if s.priceOracle == nil {
		return
	}
	_, _ = s.priceOracle.GetMarketPrice(ctx, pair.BuyToken.Address, pair.SellToken.Address, block, false)
	_, _ = s.priceOracle.GetMarketPrice(ctx, pair.BuyToken.Address, s.cfg.NativeToken, block, false)
	_, _ = s.priceOracle.GetMarketPrice(ctx, pair.SellToken.Address, s.cfg.NativeToken, block, false)
}

func resolvedSettlement(pair *types.Pair, reason types.Reason, severity types.Severity, attrs map[string]any) SettlementFunc {
	merged := map[string]any{"pairId": pair.ID, "orderbook": pair.Orderbook.Hex()}
	for k, v := range attrs {
		merged[k] = v
	}
	return func(ctx context.Context) types.PreAssembledSpan {
		return types.PreAssembledSpan{
			Name:     "process_order",
			Attrs:    merged,
			Severity: severity,
			Reason:   reason,
		}
	}
}

// FinalizeRound sequentially awaits each settlement closure. The awaiting
// itself is cheap: every settlement's background transaction_settlement
// task is already running by the time FinalizeRound is called, so this only
// blocks on results arriving, not on triggering the work. Callers that must
// not stall on a slow receipt — such as the round loop, which starts round
// N+1 regardless of round N's settlements — should invoke this off their own
// goroutine.
func FinalizeRound(ctx context.Context, settlements []SettlementFunc) []types.PreAssembledSpan {
	reports := make([]types.PreAssembledSpan, 0, len(settlements))
	for _, settle := range settlements {
		reports = append(reports, settle(ctx))
	}
	return reports
}
