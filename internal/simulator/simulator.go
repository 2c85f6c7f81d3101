// Package simulator implements the TradeSimulator base state machine shared
// by the router, inter-orderbook, and intra-orderbook trade modes: a
// prepare -> set-tx-data -> dryrun -> adjust -> dryrun -> finalize pipeline
// that derives a minimum-profit guard from a two-pass gas probe.
package simulator

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/dryrun"
	"rainsolver/internal/external"
	"rainsolver/pkg/bignum"
	"rainsolver/pkg/types"
)

// PreparedParams is the invariant part of a transaction a Capability's
// PrepareTradeParams builds before the bounty-task bytecode is known.
type PreparedParams struct {
	RawTx       external.RawTx
	Destination common.Address
	Dispair     types.Dispair
	TradeType   types.TradeType
	Price       *uint256.Int // market price fed to EstimateProfit; nil where the mode doesn't use one
	SpanAttrs   map[string]any
}

// FailedSimulation is a recoverable per-order halt. It is never a panic or a
// round-aborting error — callers fold it into a synthetic settlement.
type FailedSimulation struct {
	Reason      types.Reason
	Err         error
	IsNodeError bool
	Attrs       map[string]any
}

func (f *FailedSimulation) Error() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Reason)
}

func (f *FailedSimulation) Unwrap() error { return f.Err }

// Capability is the per-trade-mode behavior the base state machine drives.
// prepare/assemble are mode-specific; set-tx-data's TaskCompiler call is
// common and lives in the base machine.
type Capability interface {
	PrepareTradeParams(ctx context.Context) (*PreparedParams, *FailedSimulation)
	BountyTaskSpec(minimumExpected *uint256.Int) external.BountyTaskSpec
	AssembleCallData(ctx context.Context, params *PreparedParams, bountyBytecode []byte) ([]byte, error)
	EstimateProfit(params *PreparedParams) *big.Int
}

// Config carries the simulator-relevant slice of the solver's configuration.
type Config struct {
	// GasCoveragePercentage is the raw configured string; "0" disables the
	// second dryrun pass entirely.
	GasCoveragePercentage string
	// GasCoverageValue is GasCoveragePercentage parsed to an integer percent.
	GasCoverageValue   uint64
	GasLimitMultiplier uint16
}

// Deps bundles the simulator's external collaborators.
type Deps struct {
	Compiler external.TaskCompiler
	Client   external.Client
	Signer   external.Signer
	GasPrice *uint256.Int
}

// Result is a successful simulation, ready to be handed to the
// TransactionPipeline.
type Result struct {
	TradeType        types.TradeType
	SpanAttrs        map[string]any
	RawTx            external.RawTx
	EstimatedGasCost *uint256.Int
	OppBlockNumber   uint64
	EstimatedProfit  *big.Int
	// DryrunCount records how many dryrun passes actually ran — 1 when
	// gasCoveragePercentage == "0", 2 otherwise (property 8).
	DryrunCount int
}

// TrySimulateTrade drives the s0-s5 state machine described in §4.4: prepare
// params, set a zero-minimum tx, dryrun once; if gas coverage is disabled
// stop there, otherwise recompute a headroom-padded minimum, dryrun again,
// set the final minimum, and estimate profit.
func TrySimulateTrade(ctx context.Context, cap Capability, cfg Config, deps Deps, block uint64) (*Result, *FailedSimulation) {
	params, ferr := cap.PrepareTradeParams(ctx)
	if ferr != nil {
		return nil, ferr
	}

	if ferr := setTransactionData(ctx, cap, deps, params, uint256.NewInt(0)); ferr != nil {
		return nil, ferr
	}

	estA, dErr := dryrun.Run(ctx, deps.Signer, &params.RawTx, deps.GasPrice, cfg.GasLimitMultiplier)
	if dErr != nil {
		return nil, noOpportunity(dErr, 1)
	}

	if cfg.GasCoveragePercentage == "0" {
		return finalize(cap, params, estA, block, 1), nil
	}

	headroom := bignum.RoundHeadroomPercent(cfg.GasCoverageValue)
	minExpected := bignum.MulDivSmall(estA.EstimatedGasCost, headroom, 100)
	if ferr := setTransactionData(ctx, cap, deps, params, minExpected); ferr != nil {
		return nil, ferr
	}

	estB, dErr := dryrun.Run(ctx, deps.Signer, &params.RawTx, deps.GasPrice, cfg.GasLimitMultiplier)
	if dErr != nil {
		return nil, noOpportunity(dErr, 2)
	}

	minExpected = bignum.MulDivSmall(estB.EstimatedGasCost, cfg.GasCoverageValue, 100)
	if ferr := setTransactionData(ctx, cap, deps, params, minExpected); ferr != nil {
		return nil, ferr
	}

	return finalize(cap, params, estB, block, 2), nil
}

func setTransactionData(ctx context.Context, cap Capability, deps Deps, params *PreparedParams, minimumExpected *uint256.Int) *FailedSimulation {
	spec := cap.BountyTaskSpec(minimumExpected)
	bytecode, err := deps.Compiler.GetEnsureBountyTaskBytecode(ctx, spec, deps.Client, params.Dispair)
	if err != nil {
		isNode := false
		var tcErr *external.TaskCompileError
		if errors.As(err, &tcErr) {
			isNode = tcErr.Type == external.TaskCompileParseError
		}
		return &FailedSimulation{
			Reason:      types.ReasonFailedToGetTaskBytecode,
			Err:         err,
			IsNodeError: isNode,
			Attrs:       map[string]any{"stage": "set_transaction_data"},
		}
	}

	data, err := cap.AssembleCallData(ctx, params, bytecode)
	if err != nil {
		return &FailedSimulation{
			Reason: types.ReasonFailedToGetTaskBytecode,
			Err:    err,
			Attrs:  map[string]any{"stage": "assemble_call_data"},
		}
	}
	params.RawTx.Data = data
	return nil
}

func noOpportunity(dErr *dryrun.Error, stage int) *FailedSimulation {
	return &FailedSimulation{
		Reason:      types.ReasonNoOpportunity,
		Err:         dErr,
		IsNodeError: dErr.IsNodeError,
		Attrs:       mergeAttrs(dErr.Attrs, map[string]any{"stage": stage}),
	}
}

func finalize(cap Capability, params *PreparedParams, est dryrun.Result, block uint64, dryrunCount int) *Result {
	return &Result{
		TradeType:        params.TradeType,
		SpanAttrs:        params.SpanAttrs,
		RawTx:            params.RawTx,
		EstimatedGasCost: est.EstimatedGasCost,
		OppBlockNumber:   block,
		EstimatedProfit:  cap.EstimateProfit(params),
		DryrunCount:      dryrunCount,
	}
}

func mergeAttrs(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
