package dryrun

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/external"
)

type stubSigner struct {
	estimate external.GasEstimate
	err      error
}

func (s *stubSigner) Address() common.Address { return common.Address{} }
func (s *stubSigner) EstimateGasCost(ctx context.Context, tx external.RawTx) (external.GasEstimate, error) {
	return s.estimate, s.err
}
func (s *stubSigner) AsWriteSigner() external.WriteSigner { return nil }
func (s *stubSigner) WaitForReceipt(ctx context.Context, hash common.Hash) (*external.Receipt, error) {
	return nil, nil
}

func TestRunSuccessWritesGasLimitAndCost(t *testing.T) {
	t.Parallel()

	signer := &stubSigner{estimate: external.GasEstimate{
		Gas:    100_000,
		L1Cost: uint256.NewInt(500),
	}}
	tx := &external.RawTx{}
	gasPrice := uint256.NewInt(10)

	result, dErr := Run(context.Background(), signer, tx, gasPrice, 120)
	if dErr != nil {
		t.Fatalf("Run() error = %v", dErr)
	}
	wantGas := uint64(100_000 * 120 / 100)
	if result.Gas != wantGas || tx.Gas != wantGas {
		t.Errorf("Gas = %d, tx.Gas = %d, want %d", result.Gas, tx.Gas, wantGas)
	}
	wantCost := wantGas*10 + 500
	if result.EstimatedGasCost.Uint64() != wantCost {
		t.Errorf("EstimatedGasCost = %v, want %d", result.EstimatedGasCost, wantCost)
	}
}

func TestRunZeroGasEstimateFails(t *testing.T) {
	t.Parallel()

	signer := &stubSigner{estimate: external.GasEstimate{Gas: 0}}
	tx := &external.RawTx{}

	_, dErr := Run(context.Background(), signer, tx, uint256.NewInt(1), 100)
	if dErr == nil {
		t.Fatal("Run() = nil error, want zero-gas failure")
	}
	if dErr.IsNodeError {
		t.Error("zero-gas estimate should not classify as a node error")
	}
	if dErr.NoneNodeError == nil {
		t.Error("expected NoneNodeError to be populated for a logic failure")
	}
}

func TestRunClassifiesNodeErrors(t *testing.T) {
	t.Parallel()

	signer := &stubSigner{err: errors.New("429 Too Many Requests")}
	tx := &external.RawTx{}

	_, dErr := Run(context.Background(), signer, tx, uint256.NewInt(1), 100)
	if dErr == nil {
		t.Fatal("Run() = nil error, want estimate failure")
	}
	if !dErr.IsNodeError {
		t.Error("expected rate-limit error to classify as a node error")
	}
	if dErr.NoneNodeError != nil {
		t.Error("node errors must not populate NoneNodeError")
	}
}
