// Package dryrun implements the single gas-probe against an external
// transaction simulator (the Signer collaborator's EstimateGasCost RPC).
package dryrun

import (
	"context"
	"errors"
	"strings"

	"github.com/holiman/uint256"

	"rainsolver/internal/external"
)

// Result is a successful gas-probe outcome.
type Result struct {
	Gas              uint64
	L1Cost           *uint256.Int
	EstimatedGasCost *uint256.Int
	Attrs            map[string]any
}

// Error is a failed gas-probe outcome. Only logic (non-node) failures
// populate NoneNodeError — per §4.3, node errors (rate-limit, transport,
// transient) never do.
type Error struct {
	Attrs         map[string]any
	IsNodeError   bool
	NoneNodeError error
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return "dryrun failed"
}

func (e *Error) Unwrap() error { return e.cause }

var errZeroGasEstimate = errors.New("execution reverted")

// nodeErrorSubstrings classifies a raised RPC error as transient/transport
// rather than an on-chain logic failure — the contains_node_error hook
// referenced by §7's node-error classification.
var nodeErrorSubstrings = []string{
	"rate limit",
	"429",
	"timeout",
	"connection reset",
	"eof",
	"temporarily unavailable",
	"too many requests",
	"context deadline exceeded",
}

// ContainsNodeError reports whether err looks like an RPC transport/rate
// limit failure rather than an on-chain revert.
func ContainsNodeError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range nodeErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Run performs one gas-probe: estimates gas against the signer, applies
// gasLimitMultiplier (a percent), writes the resulting gas limit back into
// tx.Gas, and derives the total estimated gas cost including L1 data cost.
func Run(ctx context.Context, signer external.Signer, tx *external.RawTx, gasPrice *uint256.Int, gasLimitMultiplier uint16) (Result, *Error) {
	estimate, err := signer.EstimateGasCost(ctx, *tx)
	if err != nil {
		isNode := ContainsNodeError(err)
		dErr := &Error{
			Attrs:       map[string]any{"stage": "estimate_gas"},
			IsNodeError: isNode,
			cause:       err,
		}
		if !isNode {
			dErr.NoneNodeError = err
		}
		return Result{}, dErr
	}

	gasLimit := estimate.Gas * uint64(gasLimitMultiplier) / 100
	if gasLimit == 0 {
		return Result{}, &Error{
			Attrs:         map[string]any{"stage": "gas_limit"},
			IsNodeError:   false,
			NoneNodeError: errZeroGasEstimate,
			cause:         errZeroGasEstimate,
		}
	}
	tx.Gas = gasLimit

	gasCost := new(uint256.Int).Mul(uint256.NewInt(gasLimit), gasPrice)
	l1Cost := estimate.L1Cost
	if l1Cost == nil {
		l1Cost = uint256.NewInt(0)
	}
	estimatedGasCost := new(uint256.Int).Add(gasCost, l1Cost)

	return Result{
		Gas:              gasLimit,
		L1Cost:           l1Cost,
		EstimatedGasCost: estimatedGasCost,
		Attrs:            map[string]any{"gas": gasLimit},
	}, nil
}
