// Package external declares every collaborator the solver core consumes but
// does not implement in depth: RPC transport, wallet key management, order
// ingestion, market pricing, task compilation, and receipt accounting. These
// are the seams named in the system overview as "out of scope" — concrete
// production implementations live outside this module; the types here only
// pin down the contract the core codes against.
//
// Router and ContractRegistry are the two exceptions: their concrete
// behavior (the quote cache, the trade-type dispatch table) is specified in
// detail, so rainsolver ships real implementations for them in
// internal/router and internal/contracts.
package external

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/pkg/types"
)

// RawTx is the opaque transaction the core builds and hands to a Signer.
// Encoding of on-chain calls is treated as opaque per the spec's non-goals;
// Data is the call data a trade mode's Capability assembles around the
// TaskCompiler's bounty bytecode.
type RawTx struct {
	To       common.Address
	Data     []byte
	Gas      uint64
	GasPrice *uint256.Int
	Type     string // forced to "legacy" by TransactionPipeline before submit
	From     common.Address
}

// GasEstimate is the result of a Signer.EstimateGasCost call.
type GasEstimate struct {
	Gas          uint64
	L1Cost       *uint256.Int
	TotalGasCost *uint256.Int
	GasPrice     *uint256.Int
	L1GasPrice   *uint256.Int
}

// Receipt is the minimal on-chain receipt shape the core reasons about.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64 // 1 success, 0 revert
	GasUsed     uint64
	RevertMsg   string // populated only when Status == 0 and decodable
}

// Client is the read-only RPC collaborator.
type Client interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
	ReadContract(ctx context.Context, addr common.Address, abiJSON, method string, args ...any) ([]byte, error)
}

// WriteSigner is the write-capable half of a Signer, obtained via
// Signer.AsWriteSigner() immediately before submission.
type WriteSigner interface {
	SendTx(ctx context.Context, tx RawTx) (common.Hash, error)
}

// Signer models one wallet's signing and gas-estimation capability.
type Signer interface {
	Address() common.Address
	EstimateGasCost(ctx context.Context, tx RawTx) (GasEstimate, error)
	AsWriteSigner() WriteSigner
	WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// WalletManager hands out signers from the wallet pool. GetRandomSigner
// blocks until one is free when block is true, per the §5 concurrency
// model's "blocking random free" acquisition policy.
type WalletManager interface {
	GetRandomSigner(ctx context.Context, block bool) (Signer, error)
}

// SgOrder is an order as returned by the subgraph indexer, before it is
// turned into the core's OrderStruct/Pair representation.
type SgOrder struct {
	OrderHash types.OrderHash
	Owner     common.Address
	Orderbook common.Address
	Version   types.OrderVersion
	Active    bool
}

// SgTransaction is an upstream indexing event, grouped by source URL in
// UpstreamEventsResult.
type SgTransaction struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// UpstreamEventsResult is the result of OrderIndexer.GetUpstreamEvents.
type UpstreamEventsResult struct {
	Status string
	Result map[string][]SgTransaction
}

// OrderIndexer is the subgraph-backed order source.
type OrderIndexer interface {
	FetchAll(ctx context.Context) ([]SgOrder, error)
	GetUpstreamEvents(ctx context.Context) (UpstreamEventsResult, error)
}

// MarketPriceOracle resolves a spot price between two tokens at a block.
type MarketPriceOracle interface {
	GetMarketPrice(ctx context.Context, from, to common.Address, block uint64, allowEstimate bool) (*uint256.Int, error)
}

// BountyTaskKind selects whether the ensure-bounty check runs inside the
// destination contract (Internal) or as a standalone pre-flight (External).
type BountyTaskKind int

const (
	BountyTaskInternal BountyTaskKind = iota
	BountyTaskExternal
)

// BountyTaskSpec parameterizes a TaskCompiler.GetEnsureBountyTaskBytecode
// call.
type BountyTaskSpec struct {
	Kind            BountyTaskKind
	MinimumExpected *uint256.Int
	Orderbook       common.Address
}

// TaskCompileErrorType classifies a TaskCompiler failure. ParseError
// specifically signals a node-level (non-logic) failure.
type TaskCompileErrorType int

const (
	TaskCompileUnknownError TaskCompileErrorType = iota
	TaskCompileParseError
)

// TaskCompileError is returned by TaskCompiler on failure.
type TaskCompileError struct {
	Type TaskCompileErrorType
	Err  error
}

func (e *TaskCompileError) Error() string {
	if e.Err == nil {
		return "task compile error"
	}
	return e.Err.Error()
}

func (e *TaskCompileError) Unwrap() error { return e.Err }

// TaskCompiler compiles the small program attached to a transaction that
// aborts execution unless the realized profit meets spec.MinimumExpected.
type TaskCompiler interface {
	GetEnsureBountyTaskBytecode(ctx context.Context, spec BountyTaskSpec, client Client, dispair types.Dispair) ([]byte, error)
}

// RouteLeg is one opaque hop of a router-supplied route; the wire encoding
// of the underlying swap call is treated as opaque per the spec's non-goals.
type RouteLeg struct {
	PoolAddress common.Address
	TokenIn     common.Address
	TokenOut    common.Address
}

// RouterQuote is the pre-computed external router quote a Router-mode
// TradeSimulator is seeded with.
type RouterQuote struct {
	Profit *uint256.Int
	Legs   []RouteLeg
}

// Encoder builds the opaque call data for each trade mode. Concrete ABI
// encoding is out of core scope; the core only ever asks for the finished
// bytes given its own typed inputs plus the already-compiled bounty
// bytecode.
type Encoder interface {
	EncodeRouterCall(ctx context.Context, quote RouterQuote, bountyBytecode []byte) ([]byte, error)
	EncodeInterOrderbookCall(ctx context.Context, selfOrderbook, counterpartyOrderbook common.Address, selfTakeOrder types.TakeOrder, counterpartyTakeOrders []types.TakeOrder, bountyBytecode []byte) ([]byte, error)
	EncodeIntraOrderbookCall(ctx context.Context, orderbook common.Address, selfTakeOrder, counterpartyTakeOrder types.TakeOrder, bountyVaultIDs [2]*uint256.Int, bountyBytecode []byte) ([]byte, error)
}

// ProcessReceiptArgs bundles everything ReceiptProcessor needs to turn a
// mined receipt into accounted profit.
type ProcessReceiptArgs struct {
	Receipt    *Receipt
	Signer     Signer
	RawTx      RawTx
	Orderbook  common.Address
	FromToken  types.Token
	ToToken    types.Token
	TxURL      string
	TxSendTime int64
}

// ProcessReceiptResult is the outcome ReceiptProcessor hands back for
// telemetry assembly.
type ProcessReceiptResult struct {
	GasCostWei  *uint256.Int
	RevertedMsg string
	Success     bool
}

// ReceiptProcessor turns a mined receipt into accounted gas cost and, on
// revert, a human-readable snapshot. The profit-accounting pipeline itself
// is out of core scope; only this narrow hook is.
type ReceiptProcessor interface {
	ProcessReceipt(ctx context.Context, args ProcessReceiptArgs) (ProcessReceiptResult, error)
}

// Logger exports one pre-assembled telemetry span. Core code never builds
// OTel spans directly — it only ever produces a types.PreAssembledSpan and
// hands it here.
type Logger interface {
	ExportPreAssembledSpan(ctx context.Context, report types.PreAssembledSpan) error
}
