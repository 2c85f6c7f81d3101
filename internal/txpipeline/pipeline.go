// Package txpipeline implements TransactionPipeline (§4.8): submitting a
// simulated transaction and asynchronously settling its receipt.
package txpipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/dryrun"
	"rainsolver/internal/external"
	"rainsolver/pkg/types"
)

// Args bundles everything process_transaction needs to submit a simulated
// trade.
type Args struct {
	RawTx           external.RawTx
	Signer          external.Signer
	Orderbook       common.Address
	FromToken       types.Token
	ToToken         types.Token
	ExplorerBaseURL string // txURL = ExplorerBaseURL + hash, explorer encoding is opaque
	EstimatedProfit *uint256.Int
}

// SubmitResult is the immediately-available outcome of process_transaction.
type SubmitResult struct {
	TxURL      string
	EndTime    time.Time
	Settlement func(ctx context.Context) types.PreAssembledSpan
}

// Pipeline is the TransactionPipeline component.
type Pipeline struct {
	receiptProcessor external.ReceiptProcessor
	logger           *slog.Logger
}

// New builds a Pipeline.
func New(receiptProcessor external.ReceiptProcessor, logger *slog.Logger) *Pipeline {
	return &Pipeline{receiptProcessor: receiptProcessor, logger: logger.With("component", "tx-pipeline")}
}

// ProcessTransaction forces tx.type=legacy, submits via the write-signer,
// and returns a closure yielding {txUrl, endTime, settlement} immediately.
// transaction_settlement itself is already running in the background by the
// time this returns; the settlement closure only waits for that task's
// result, so finalize_round awaiting it never re-triggers the receipt wait.
func (p *Pipeline) ProcessTransaction(ctx context.Context, args Args) (SubmitResult, *types.PreAssembledSpan) {
	args.RawTx.Type = "legacy"

	writer := args.Signer.AsWriteSigner()
	hash, err := writer.SendTx(ctx, args.RawTx)
	if err != nil {
		args.RawTx.From = args.Signer.Address()
		isNode := dryrun.ContainsNodeError(err)
		isTimeout := errors.Is(err, context.DeadlineExceeded)
		return SubmitResult{}, &types.PreAssembledSpan{
			Name:     "process_transaction",
			EndTime:  timeNow(),
			Severity: types.SeverityFor(types.ReasonTxFailed, isTimeout, ""),
			Reason:   types.ReasonTxFailed,
			Attrs: map[string]any{
				"error":       err.Error(),
				"isNodeError": isNode,
				"from":        args.RawTx.From.Hex(),
			},
		}
	}

	txURL := args.ExplorerBaseURL + hash.Hex()

	// transaction_settlement is spawned here, not inside the returned
	// closure: it starts waiting on the receipt the instant the tx is
	// submitted, runs independently of whatever round the caller is on by
	// the time it awaits this closure, and keeps running even if that
	// round has already finished.
	done := make(chan struct{})
	var final types.PreAssembledSpan
	go func() {
		final = p.transactionSettlement(context.Background(), args, hash, txURL)
		close(done)
	}()

	settlement := func(ctx context.Context) types.PreAssembledSpan {
		select {
		case <-done:
			return final
		case <-ctx.Done():
			return types.PreAssembledSpan{
				Name:     "transaction_settlement",
				EndTime:  timeNow(),
				Severity: types.SeverityHigh,
				Reason:   types.ReasonTxMineFailed,
				Attrs:    map[string]any{"error": ctx.Err().Error(), "txUrl": txURL},
			}
		}
	}

	return SubmitResult{
		TxURL:      txURL,
		EndTime:    timeNow(),
		Settlement: settlement,
	}, nil
}

// transactionSettlement is the background task: wait for the receipt,
// delegate accounting to ReceiptProcessor, and classify the outcome.
func (p *Pipeline) transactionSettlement(ctx context.Context, args Args, hash common.Hash, txURL string) types.PreAssembledSpan {
	sendTime := timeNow()

	receipt, err := args.Signer.WaitForReceipt(ctx, hash)
	if err != nil {
		isTimeout := errors.Is(err, context.DeadlineExceeded)
		return types.PreAssembledSpan{
			Name:      "transaction_settlement",
			StartTime: sendTime,
			EndTime:   timeNow(),
			Severity:  types.SeverityFor(types.ReasonTxMineFailed, isTimeout, ""),
			Reason:    types.ReasonTxMineFailed,
			Attrs:     map[string]any{"error": err.Error(), "txUrl": txURL},
		}
	}

	result, err := p.receiptProcessor.ProcessReceipt(ctx, external.ProcessReceiptArgs{
		Receipt:    receipt,
		Signer:     args.Signer,
		RawTx:      args.RawTx,
		Orderbook:  args.Orderbook,
		FromToken:  args.FromToken,
		ToToken:    args.ToToken,
		TxURL:      txURL,
		TxSendTime: sendTime.Unix(),
	})
	if err != nil {
		return types.PreAssembledSpan{
			Name:      "transaction_settlement",
			StartTime: sendTime,
			EndTime:   timeNow(),
			Severity:  types.SeverityHigh,
			Reason:    types.ReasonUnexpectedError,
			Attrs:     map[string]any{"error": err.Error(), "txUrl": txURL},
		}
	}

	if !result.Success {
		txNoneNodeError := !types.IsKnownErrorMessage(result.RevertedMsg)
		severity := types.SeverityFor(types.ReasonTxReverted, false, result.RevertedMsg)
		return types.PreAssembledSpan{
			Name:      "transaction_settlement",
			StartTime: sendTime,
			EndTime:   timeNow(),
			Severity:  severity,
			Reason:    types.ReasonTxReverted,
			Attrs: map[string]any{
				"revertMessage":   result.RevertedMsg,
				"txNoneNodeError": txNoneNodeError,
				"txUrl":           txURL,
			},
		}
	}

	return types.PreAssembledSpan{
		Name:      "transaction_settlement",
		StartTime: sendTime,
		EndTime:   timeNow(),
		Severity:  types.SeverityLow,
		Reason:    types.ReasonFoundOpportunity,
		Attrs: map[string]any{
			"gasCostWei": types.U256JSON{Int: result.GasCostWei},
			"txUrl":      txURL,
		},
	}
}

// timeNow is a seam so tests can observe deterministic-ish ordering without
// the package depending on a wall-clock wrapper elsewhere.
var timeNow = time.Now
