// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the solver — orders, vaults,
// pairs, and the error/severity taxonomy attached to a settlement. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ————————————————————————————————————————————————————————————————————————
// Tokens, orders, vaults
// ————————————————————————————————————————————————————————————————————————

// Token describes an ERC20 the solver moves value through.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// AddressKey renders an address as its lowercase hex string. OrderManager's
// order and pair indices key on common.Address values directly and do not
// use it.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// OrderVersion identifies the order's expression-runtime generation, which
// in turn selects the configured contract set (v4 vs v5) used to resolve
// trade destinations for it.
type OrderVersion string

const (
	OrderVersionV3 OrderVersion = "V3"
	OrderVersionV4 OrderVersion = "V4"
)

// OrderHash identifies an order uniquely within an orderbook.
type OrderHash [32]byte

// VaultRef is one entry of an order's input or output vault list.
type VaultRef struct {
	VaultID *uint256.Int
	Token   Token
}

// OrderStruct is the opaque on-chain order record the solver reasons about.
// RainSolver never interprets anything beyond owner identity and vault
// lists; the rest of the order's expression bytecode is out of scope.
type OrderStruct struct {
	Owner        common.Address
	InputVaults  []VaultRef
	OutputVaults []VaultRef
	Version      OrderVersion
}

// Quote is a counterparty or order's standing offer, in 18-decimal fixed
// point. A zero Ratio means "accept any output price" (unbounded).
type Quote struct {
	MaxOutput *uint256.Int
	Ratio     *uint256.Int
}

// TakeOrder is the quoted, vault-indexed view of an order ready to be taken
// against a specific input/output leg.
type TakeOrder struct {
	OrderHash     OrderHash
	Order         OrderStruct
	InputIOIndex  int
	OutputIOIndex int
	Quote         Quote
}

// ValidIOIndices reports whether InputIOIndex/OutputIOIndex are valid
// positions into the order's vault lists.
func (t TakeOrder) ValidIOIndices() bool {
	if t.InputIOIndex < 0 || t.InputIOIndex >= len(t.Order.InputVaults) {
		return false
	}
	if t.OutputIOIndex < 0 || t.OutputIOIndex >= len(t.Order.OutputVaults) {
		return false
	}
	return true
}

// Pair is the unit of scheduling: one (outputToken, inputToken) slice of an
// order, carrying its own cached vault balances so the scheduler can read a
// best-effort fresh snapshot without holding any lock.
type Pair struct {
	ID        uint64
	Orderbook common.Address

	BuyToken  Token
	SellToken Token

	// BuyTokenVaultBalance / SellTokenVaultBalance are refreshed from the
	// owner-token-vault map at the start of each round; they are the only
	// fields a non-owning goroutine may mutate (see OrderManager).
	BuyTokenVaultBalance  *uint256.Int
	SellTokenVaultBalance *uint256.Int

	TakeOrder TakeOrder
}

// Valid enforces the buyToken != sellToken invariant plus vault-index
// bounds; callers should reject a Pair that fails this before scheduling it.
func (p *Pair) Valid() bool {
	if p.BuyToken.Address == p.SellToken.Address {
		return false
	}
	return p.TakeOrder.ValidIOIndices()
}

// VaultRecord is a subgraph-sourced vault balance. Keyed externally by
// (orderbook, owner, tokenAddress, vaultId); vaults are never deleted, only
// updated.
type VaultRecord struct {
	ID      *uint256.Int
	Balance *uint256.Int
	Token   Token
}

// ————————————————————————————————————————————————————————————————————————
// Owner / order bookkeeping
// ————————————————————————————————————————————————————————————————————————

// DefaultOwnerLimit is the initial per-owner, per-orderbook round-robin
// quota before any downscale protection factor is applied.
const DefaultOwnerLimit uint32 = 25

// OrderProfile tracks one order's liveness and its enumerated takeable pairs.
type OrderProfile struct {
	Active     bool
	Order      OrderStruct
	TakeOrders []*Pair
}

// OwnerProfile is the per-(orderbook, owner) round-robin cursor.
type OwnerProfile struct {
	Limit     uint32
	Orders    map[OrderHash]*OrderProfile
	LastIndex uint32
}

// FlattenTakeOrders concatenates the TakeOrders of the orders named in
// orderKeys, in that order, skipping hashes with no profile or an inactive
// one. OrderManager passes its per-owner slice of order hashes in
// registration order, which keeps the round-robin window deterministic.
func (o *OwnerProfile) FlattenTakeOrders(orderKeys []OrderHash) []*Pair {
	var out []*Pair
	for _, h := range orderKeys {
		profile, ok := o.Orders[h]
		if !ok || !profile.Active {
			continue
		}
		out = append(out, profile.TakeOrders...)
	}
	return out
}

// ————————————————————————————————————————————————————————————————————————
// RPC metrics
// ————————————————————————————————————————————————————————————————————————

// URLMetrics holds last-writer-wins counters for one normalized RPC URL.
// Exact counts are not a correctness requirement — see the concurrency
// model's shared-resource policy.
type URLMetrics struct {
	Requests uint64
	Success  uint64
	Failure  uint64
}

// RpcMetrics is the process-wide request/success/failure table keyed by
// normalized URL. It is part of the startup-created, shutdown-torn-down
// shared state (see internal/telemetry.SharedState).
type RpcMetrics struct {
	mu      sync.Mutex
	perURL  map[string]*URLMetrics
}

// NewRpcMetrics builds an empty metrics table.
func NewRpcMetrics() *RpcMetrics {
	return &RpcMetrics{perURL: make(map[string]*URLMetrics)}
}

// RecordRequest increments the request counter for url, creating its entry
// on first observation.
func (m *RpcMetrics) RecordRequest(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(url).Requests++
}

// RecordResult increments the success or failure counter for url.
func (m *RpcMetrics) RecordResult(url string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(url)
	if ok {
		e.Success++
	} else {
		e.Failure++
	}
}

// Snapshot returns a copy of the current per-URL counters.
func (m *RpcMetrics) Snapshot() map[string]URLMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]URLMetrics, len(m.perURL))
	for k, v := range m.perURL {
		out[k] = *v
	}
	return out
}

func (m *RpcMetrics) entry(url string) *URLMetrics {
	e, ok := m.perURL[url]
	if !ok {
		e = &URLMetrics{}
		m.perURL[url] = e
	}
	return e
}

// ————————————————————————————————————————————————————————————————————————
// Trade mode dispatch
// ————————————————————————————————————————————————————————————————————————

// TradeType is the tagged-sum trade mode a Pair can be settled through.
type TradeType string

const (
	TradeRouter         TradeType = "Router"
	TradeRouteProcessor TradeType = "RouteProcessor"
	TradeBalancer       TradeType = "Balancer"
	TradeStabull        TradeType = "Stabull"
	TradeInterOrderbook TradeType = "InterOrderbook"
	TradeIntraOrderbook TradeType = "IntraOrderbook"
)

// Dispair identifies a compatible expression-runtime version as the triple
// (deployer, interpreter, store).
type Dispair struct {
	Deployer    common.Address
	Interpreter common.Address
	Store       common.Address
}

// TradeAddresses is the resolved destination for a settlement, or the zero
// value with OK=false when no destination is configured for the trade type.
type TradeAddresses struct {
	Dispair     Dispair
	Destination common.Address
	OK          bool
}

// ————————————————————————————————————————————————————————————————————————
// Error / status taxonomy (§7)
// ————————————————————————————————————————————————————————————————————————

// Reason is the closed set of process-order, simulation, and order-status
// outcomes a round can produce.
type Reason string

const (
	// Process-order halt
	ReasonFailedToQuote      Reason = "FailedToQuote"
	ReasonFailedToGetEthPrice Reason = "FailedToGetEthPrice"
	ReasonFailedToGetPools   Reason = "FailedToGetPools"
	ReasonFailedToUpdatePools Reason = "FailedToUpdatePools"
	ReasonTxFailed           Reason = "TxFailed"
	ReasonTxReverted         Reason = "TxReverted"
	ReasonTxMineFailed       Reason = "TxMineFailed"
	ReasonUnexpectedError    Reason = "UnexpectedError"

	// Simulation halt
	ReasonNoOpportunity                  Reason = "NoOpportunity"
	ReasonNoRoute                        Reason = "NoRoute"
	ReasonOrderRatioGreaterThanMarketPrice Reason = "OrderRatioGreaterThanMarketPrice"
	ReasonFailedToGetTaskBytecode         Reason = "FailedToGetTaskBytecode"
	ReasonUndefinedTradeDestinationAddress Reason = "UndefinedTradeDestinationAddress"

	// Order status
	ReasonZeroOutput            Reason = "ZeroOutput"
	ReasonFoundOpportunity      Reason = "FoundOpportunity"
	ReasonUndefinedTradeAddresses Reason = "UndefinedTradeAddresses"
)

// Severity is the telemetry severity a Reason maps to.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// knownErrorSubstrings is the list of revert messages treated as "known" —
// a revert matching none of these is escalated to HIGH severity.
var knownErrorSubstrings = []string{
	"insufficient output amount",
	"min amount not met",
	"slippage",
	"order not found",
	"order exhausted",
}

// IsKnownErrorMessage reports whether msg matches a recognized on-chain
// revert cause.
func IsKnownErrorMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range knownErrorSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// SeverityFor derives the telemetry severity for a settlement outcome per
// the §7 mapping. isTimeout applies to tx-send/receipt-wait failures only;
// revertMessage is the on-chain revert string when reason is TxReverted.
func SeverityFor(reason Reason, isTimeout bool, revertMessage string) Severity {
	if isTimeout {
		return SeverityLow
	}
	switch reason {
	case ReasonFailedToGetPools:
		return SeverityMedium
	case ReasonTxReverted:
		if revertMessage != "" && IsKnownErrorMessage(revertMessage) {
			return SeverityMedium
		}
		return SeverityHigh
	case ReasonTxFailed, ReasonUnexpectedError:
		return SeverityHigh
	default:
		return SeverityHigh
	}
}
