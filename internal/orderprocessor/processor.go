// Package orderprocessor composes CounterpartySelector, the TradeSimulator
// capability variants, and TransactionPipeline into the RoundScheduler's
// OrderProcessor collaborator: given one initialized pair and a reserved
// signer, pick a trade mode, simulate it, and submit the winning transaction.
package orderprocessor

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/contracts"
	"rainsolver/internal/counterparty"
	"rainsolver/internal/external"
	"rainsolver/internal/ordermanager"
	"rainsolver/internal/router"
	"rainsolver/internal/scheduler"
	"rainsolver/internal/simulator"
	"rainsolver/internal/txpipeline"
	"rainsolver/pkg/bignum"
	"rainsolver/pkg/types"
)

// Config carries the processor-relevant slice of solver configuration.
type Config struct {
	Simulator       simulator.Config
	NativeToken     common.Address
	ExplorerBaseURL string
}

// Deps bundles the Processor's collaborators. GasPrice is read fresh for
// every order so a single long-lived Processor always quotes against the
// current network gas price.
type Deps struct {
	OrderManager     *ordermanager.Manager
	Registry         *contracts.Registry
	Router           *router.Router
	PriceOracle      external.MarketPriceOracle
	Compiler         external.TaskCompiler
	Client           external.Client
	Encoder          external.Encoder
	ReceiptProcessor external.ReceiptProcessor
	GasPrice         func() *uint256.Int
}

// Processor implements scheduler.OrderProcessor.
type Processor struct {
	cfg      Config
	deps     Deps
	pipeline *txpipeline.Pipeline
	logger   *slog.Logger
}

// New builds a Processor.
func New(cfg Config, deps Deps, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		deps:     deps,
		pipeline: txpipeline.New(deps.ReceiptProcessor, logger),
		logger:   logger.With("component", "order-processor"),
	}
}

// ProcessOrder tries router, then inter-orderbook, then intra-orderbook
// capabilities in turn (§1's ordered trade-mode list) and submits the first
// one that clears TradeSimulator with positive estimated profit.
func (p *Processor) ProcessOrder(ctx context.Context, pair *types.Pair, signer external.Signer, block uint64) scheduler.SettlementFunc {
	simDeps := simulator.Deps{
		Compiler: p.deps.Compiler,
		Client:   p.deps.Client,
		Signer:   signer,
		GasPrice: p.deps.GasPrice(),
	}

	var lastReason types.Reason = types.ReasonNoRoute
	var lastErr error

	for _, cap := range p.buildCandidates(ctx, pair, block) {
		result, ferr := simulator.TrySimulateTrade(ctx, cap, p.cfg.Simulator, simDeps, block)
		if ferr != nil {
			lastReason, lastErr = ferr.Reason, ferr.Err
			continue
		}
		if result.EstimatedProfit == nil || result.EstimatedProfit.Sign() <= 0 {
			lastReason, lastErr = types.ReasonOrderRatioGreaterThanMarketPrice, nil
			continue
		}
		return p.submit(ctx, pair, signer, result)
	}

	attrs := map[string]any{}
	if lastErr != nil {
		attrs["error"] = lastErr.Error()
	}
	return func(ctx context.Context) types.PreAssembledSpan {
		return types.PreAssembledSpan{
			Name:     "process_order",
			Attrs:    attrs,
			Severity: types.SeverityLow,
			Reason:   lastReason,
		}
	}
}

// buildCandidates enumerates every Capability worth dryrunning for pair, in
// trade-mode priority order. A mode is skipped entirely when its
// prerequisite data (a router quote, an opposing order) isn't available —
// TrySimulateTrade is never spent on a mode that cannot possibly clear.
func (p *Processor) buildCandidates(ctx context.Context, pair *types.Pair, block uint64) []simulator.Capability {
	var caps []simulator.Capability

	if quote, ok := p.routerQuote(pair); ok {
		caps = append(caps, &simulator.RouterCapability{
			Pair: pair, Quote: quote, Registry: p.deps.Registry, Encoder: p.deps.Encoder,
		})
	}

	inputPrice, outputPrice := p.ethPrices(ctx, pair, block)

	for _, group := range p.interOrderbookCandidates(pair) {
		for _, cp := range group.candidates {
			caps = append(caps, &simulator.InterOrderbookCapability{
				Pair:                  pair,
				CounterpartyOrderbook: group.orderbook,
				CounterpartyTakeOrder: cp.takeOrder,
				CounterpartyRatio:     cp.candidate.Ratio,
				CounterpartyMaxOutput: cp.candidate.MaxOutput,
				InputEthPrice18:       inputPrice,
				OutputEthPrice18:      outputPrice,
				Registry:              p.deps.Registry,
				Encoder:               p.deps.Encoder,
			})
		}
	}

	for _, cp := range p.intraOrderbookCandidates(pair) {
		caps = append(caps, &simulator.IntraOrderbookCapability{
			Pair:                  pair,
			CounterpartyTakeOrder: cp.takeOrder,
			BountyVaultIDs:        bountyVaultIDs(pair, cp.takeOrder),
			InputEthPrice18:       inputPrice,
			OutputEthPrice18:      outputPrice,
			Registry:              p.deps.Registry,
			Encoder:               p.deps.Encoder,
		})
	}

	return caps
}

// routerQuote reads the router's cache for pair's direct sell->buy leg. An
// absent entry, or one whose Profit is nil or zero, disqualifies router mode
// for this round rather than dryrunning a quote known not to clear. The
// entry's age (UpdatedAt) is not checked.
func (p *Processor) routerQuote(pair *types.Pair) (external.RouterQuote, bool) {
	entry, ok := p.deps.Router.Get(pair.SellToken.Address.Hex(), pair.BuyToken.Address.Hex())
	if !ok || entry.Profit == nil || entry.Profit.IsZero() {
		return external.RouterQuote{}, false
	}
	return external.RouterQuote{Profit: entry.Profit}, true
}

// ethPrices warms the two native-denominated prices the cross-orderbook
// profit estimators need. A lookup failure falls back to ONE18 (par value)
// rather than aborting the whole candidate set over a single bad quote.
func (p *Processor) ethPrices(ctx context.Context, pair *types.Pair, block uint64) (*uint256.Int, *uint256.Int) {
	input := bignum.ONE18
	output := bignum.ONE18
	if p.deps.PriceOracle == nil {
		return input, output
	}
	if v, err := p.deps.PriceOracle.GetMarketPrice(ctx, pair.BuyToken.Address, p.cfg.NativeToken, block, true); err == nil && v != nil {
		input = v
	}
	if v, err := p.deps.PriceOracle.GetMarketPrice(ctx, pair.SellToken.Address, p.cfg.NativeToken, block, true); err == nil && v != nil {
		output = v
	}
	return input, output
}

type rankedCandidate struct {
	candidate counterparty.Candidate
	takeOrder types.TakeOrder
}

type orderbookGroup struct {
	orderbook  common.Address
	candidates []rankedCandidate
}

// counterpartyCandidates groups the opposing side of pair by orderbook: an
// order whose own sell token is what this pair wants to buy, and whose own
// buy token is what this pair wants to sell — the mirror image OrderManager
// indexes a pair's own (output, input) leg under.
func (p *Processor) counterpartyCandidates(pair *types.Pair) map[common.Address][]*types.Pair {
	return p.deps.OrderManager.CandidatesByOrderbook(pair.BuyToken.Address, pair.SellToken.Address)
}

func (p *Processor) interOrderbookCandidates(pair *types.Pair) []orderbookGroup {
	byOrderbook := p.counterpartyCandidates(pair)
	cands, byHash := toCandidateMap(byOrderbook)

	var groups []orderbookGroup
	for ob := range byOrderbook {
		if ob == pair.Orderbook {
			continue
		}
		// One orderbook at a time: SelectInterOrderbook's group-skipping
		// behavior (it drops an orderbook with zero surviving candidates)
		// would otherwise desynchronize a shared orderbook-index slice.
		ranked := counterparty.SelectInterOrderbook(pair.Orderbook, pair.TakeOrder.OrderHash, []common.Address{ob}, cands)
		if len(ranked) == 0 {
			continue
		}
		var out []rankedCandidate
		for _, c := range ranked[0] {
			out = append(out, rankedCandidate{candidate: c, takeOrder: byHash[c.OrderHash].TakeOrder})
		}
		groups = append(groups, orderbookGroup{orderbook: ob, candidates: out})
	}
	return groups
}

func (p *Processor) intraOrderbookCandidates(pair *types.Pair) []rankedCandidate {
	byOrderbook := p.counterpartyCandidates(pair)
	cands, byHash := toCandidateMap(byOrderbook)

	ranked := counterparty.SelectIntraOrderbook(pair.Orderbook, pair.TakeOrder.OrderHash, cands)
	var out []rankedCandidate
	for _, c := range ranked {
		out = append(out, rankedCandidate{candidate: c, takeOrder: byHash[c.OrderHash].TakeOrder})
	}
	return out
}

func toCandidateMap(byOrderbook map[common.Address][]*types.Pair) (map[common.Address][]counterparty.Candidate, map[types.OrderHash]*types.Pair) {
	cands := make(map[common.Address][]counterparty.Candidate, len(byOrderbook))
	byHash := make(map[types.OrderHash]*types.Pair)
	for ob, pairs := range byOrderbook {
		for _, pr := range pairs {
			c := counterparty.Candidate{
				OrderHash: pr.TakeOrder.OrderHash,
				Ratio:     pr.TakeOrder.Quote.Ratio,
				MaxOutput: pr.TakeOrder.Quote.MaxOutput,
			}
			cands[ob] = append(cands[ob], c)
			byHash[pr.TakeOrder.OrderHash] = pr
		}
	}
	return cands, byHash
}

// bountyVaultIDs picks the self and counterparty output vault IDs the
// intra-orderbook withdraw legs drain the bounty from.
func bountyVaultIDs(pair *types.Pair, counterpartyOrder types.TakeOrder) [2]*uint256.Int {
	var ids [2]*uint256.Int
	if pair.TakeOrder.ValidIOIndices() {
		ids[0] = pair.TakeOrder.Order.OutputVaults[pair.TakeOrder.OutputIOIndex].VaultID
	}
	if counterpartyOrder.ValidIOIndices() {
		ids[1] = counterpartyOrder.Order.OutputVaults[counterpartyOrder.OutputIOIndex].VaultID
	}
	return ids
}

// submit hands a cleared simulation to TransactionPipeline and adapts its
// result into a scheduler.SettlementFunc.
func (p *Processor) submit(ctx context.Context, pair *types.Pair, signer external.Signer, result *simulator.Result) scheduler.SettlementFunc {
	submitResult, failSpan := p.pipeline.ProcessTransaction(ctx, txpipeline.Args{
		RawTx:           result.RawTx,
		Signer:          signer,
		Orderbook:       pair.Orderbook,
		FromToken:       pair.SellToken,
		ToToken:         pair.BuyToken,
		ExplorerBaseURL: p.cfg.ExplorerBaseURL,
		EstimatedProfit: profitAsU256(result.EstimatedProfit),
	})
	if failSpan != nil {
		return func(ctx context.Context) types.PreAssembledSpan { return *failSpan }
	}

	return func(ctx context.Context) types.PreAssembledSpan {
		span := submitResult.Settlement(ctx)
		if span.Attrs == nil {
			span.Attrs = map[string]any{}
		}
		span.Attrs["txUrl"] = submitResult.TxURL
		span.Attrs["tradeType"] = string(result.TradeType)
		span.Attrs["estimatedProfitWei"] = types.U256JSON{Int: profitAsU256(result.EstimatedProfit)}
		return span
	}
}

// profitAsU256 clamps a signed estimated profit into the unsigned quantity
// the bounty spec and transaction pipeline carry for telemetry; a non-
// positive profit never reaches submit (ProcessOrder filters it above).
func profitAsU256(profit *big.Int) *uint256.Int {
	if profit == nil || profit.Sign() <= 0 {
		return uint256.NewInt(0)
	}
	v, overflow := uint256.FromBig(profit)
	if overflow {
		return bignum.MaxU256()
	}
	return v
}
