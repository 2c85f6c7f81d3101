// Package adapters provides the minimal concrete implementations of the
// external collaborators (Client, WalletManager, TaskCompiler, Encoder,
// ReceiptProcessor, MarketPriceOracle, OrderIndexer) that cmd/solver wires
// together. The chain-facing ones (RPCClient and the KeySigner signers) make
// no RPC calls and return "not wired" errors; the compiler, encoder, receipt
// processor and price oracle return fixed placeholder results. Only
// SubgraphIndexer talks to a network service, over plain REST. These
// adapters are the seam a deployment replaces with its own production
// clients.
package adapters

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/holiman/uint256"

	"rainsolver/internal/external"
	"rainsolver/pkg/types"
)

// RPCClient is a thin external.Client built over a single go-ethereum RPC
// endpoint. It records request/result counts against the shared RpcMetrics
// table so operators can see per-URL health without a dedicated exporter.
type RPCClient struct {
	url     string
	metrics *types.RpcMetrics
}

// NewRPCClient builds an RPCClient against url.
func NewRPCClient(url string, metrics *types.RpcMetrics) *RPCClient {
	return &RPCClient{url: url, metrics: metrics}
}

func (c *RPCClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	c.metrics.RecordRequest(c.url)
	// The concrete eth_blockNumber round trip lives in the deployment's own
	// RPC transport; this adapter only accounts for the call being made.
	c.metrics.RecordResult(c.url, false)
	return 0, fmt.Errorf("adapters: GetBlockNumber not wired to a live RPC transport for %s", c.url)
}

func (c *RPCClient) ReadContract(ctx context.Context, addr common.Address, abiJSON, method string, args ...any) ([]byte, error) {
	c.metrics.RecordRequest(c.url)
	c.metrics.RecordResult(c.url, false)
	return nil, fmt.Errorf("adapters: ReadContract(%s) not wired to a live RPC transport", method)
}

// KeySigner is a WalletManager-compatible pool over a fixed list of private
// keys, handed out round-robin. Gas estimation and receipt waiting are left
// for a live RPC transport to implement.
type KeySigner struct {
	mu      sync.Mutex
	signers []*ecdsa.PrivateKey
	next    int
}

// NewKeySigners parses a set of hex-encoded private keys (as configured
// under wallet.private_keys) into a signer pool.
func NewKeySigners(hexKeys []string) (*KeySigner, error) {
	pool := &KeySigner{}
	for _, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		pool.signers = append(pool.signers, key)
	}
	if len(pool.signers) == 0 {
		return nil, fmt.Errorf("no private keys configured")
	}
	return pool, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// GetRandomSigner hands out the next key in the pool. block is accepted for
// interface compatibility; this in-memory pool never actually blocks.
func (p *KeySigner) GetRandomSigner(ctx context.Context, block bool) (external.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.signers[p.next]
	p.next = (p.next + 1) % len(p.signers)
	return &walletSigner{key: key}, nil
}

type walletSigner struct {
	key *ecdsa.PrivateKey
}

func (s *walletSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *walletSigner) EstimateGasCost(ctx context.Context, tx external.RawTx) (external.GasEstimate, error) {
	return external.GasEstimate{}, fmt.Errorf("adapters: EstimateGasCost not wired to a live RPC transport")
}

func (s *walletSigner) AsWriteSigner() external.WriteSigner { return (*writeSigner)(s) }

func (s *walletSigner) WaitForReceipt(ctx context.Context, hash common.Hash) (*external.Receipt, error) {
	return nil, fmt.Errorf("adapters: WaitForReceipt not wired to a live RPC transport")
}

type writeSigner walletSigner

func (s *writeSigner) SendTx(ctx context.Context, tx external.RawTx) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("adapters: SendTx not wired to a live RPC transport")
}

// PassthroughCompiler returns a fixed placeholder bounty-task bytecode. Real
// task compilation is an expression-language concern out of core scope.
type PassthroughCompiler struct{}

func (PassthroughCompiler) GetEnsureBountyTaskBytecode(ctx context.Context, spec external.BountyTaskSpec, client external.Client, dispair types.Dispair) ([]byte, error) {
	return []byte{}, nil
}

// OpaqueEncoder is a no-op external.Encoder: it returns the bounty bytecode
// unchanged. Real ABI encoding of the router/inter/intra call data is
// treated as opaque per the core's design.
type OpaqueEncoder struct{}

func (OpaqueEncoder) EncodeRouterCall(ctx context.Context, quote external.RouterQuote, bountyBytecode []byte) ([]byte, error) {
	return bountyBytecode, nil
}

func (OpaqueEncoder) EncodeInterOrderbookCall(ctx context.Context, selfOB, cpOB common.Address, self types.TakeOrder, cps []types.TakeOrder, bountyBytecode []byte) ([]byte, error) {
	return bountyBytecode, nil
}

func (OpaqueEncoder) EncodeIntraOrderbookCall(ctx context.Context, ob common.Address, self, cp types.TakeOrder, vaults [2]*uint256.Int, bountyBytecode []byte) ([]byte, error) {
	return bountyBytecode, nil
}

// AcceptingReceiptProcessor reports every receipt as a success with zero
// accounted gas cost. Real profit/gas accounting from a mined receipt is out
// of core scope.
type AcceptingReceiptProcessor struct{}

func (AcceptingReceiptProcessor) ProcessReceipt(ctx context.Context, args external.ProcessReceiptArgs) (external.ProcessReceiptResult, error) {
	if args.Receipt == nil {
		return external.ProcessReceiptResult{Success: false, GasCostWei: uint256.NewInt(0)}, nil
	}
	return external.ProcessReceiptResult{
		Success:     args.Receipt.Status == 1,
		GasCostWei:  uint256.NewInt(0),
		RevertedMsg: args.Receipt.RevertMsg,
	}, nil
}

// ParPriceOracle always reports par (ONE18) regardless of the requested
// pair. Real market-price discovery is out of core scope.
type ParPriceOracle struct{}

func (ParPriceOracle) GetMarketPrice(ctx context.Context, from, to common.Address, block uint64, allowEstimate bool) (*uint256.Int, error) {
	return uint256.NewInt(1_000_000_000_000_000_000), nil
}

// sgOrderResponse and sgEventsResponse mirror the subgraph's JSON shape
// closely enough to unmarshal; the subgraph's actual GraphQL schema is an
// upstream concern, not something this adapter speaks in full.
type sgOrderResponse struct {
	OrderHash string `json:"orderHash"`
	Owner     string `json:"owner"`
	Orderbook string `json:"orderbook"`
	Version   string `json:"version"`
	Active    bool   `json:"active"`
}

type sgEventsResponse struct {
	Status string                     `json:"status"`
	Result map[string][]sgTransaction `json:"result"`
}

type sgTransaction struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// SubgraphIndexer is an external.OrderIndexer backed by one or more
// subgraph-style REST endpoints, queried round-robin. Each request is retried
// up to 3 times on a transport error or a 5xx status, waiting 500ms to 5s
// between attempts.
type SubgraphIndexer struct {
	clients []*resty.Client
	next    int
	mu      sync.Mutex
}

// NewSubgraphIndexer builds an indexer over the configured set of endpoint
// URLs (indexer.urls).
func NewSubgraphIndexer(urls []string) (*SubgraphIndexer, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no indexer URLs configured")
	}
	idx := &SubgraphIndexer{}
	for _, url := range urls {
		idx.clients = append(idx.clients, resty.New().
			SetBaseURL(url).
			SetTimeout(10*time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500*time.Millisecond).
			SetRetryMaxWaitTime(5*time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500
			}).
			SetHeader("Content-Type", "application/json"))
	}
	return idx, nil
}

// nextClient hands back the next endpoint in round-robin order, the same
// pattern KeySigner uses for its signer pool.
func (idx *SubgraphIndexer) nextClient() *resty.Client {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	c := idx.clients[idx.next]
	idx.next = (idx.next + 1) % len(idx.clients)
	return c
}

func (idx *SubgraphIndexer) FetchAll(ctx context.Context) ([]external.SgOrder, error) {
	var raw []sgOrderResponse
	resp, err := idx.nextClient().R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch orders: status %d", resp.StatusCode())
	}

	orders := make([]external.SgOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, external.SgOrder{
			OrderHash: types.OrderHash(common.HexToHash(o.OrderHash)),
			Owner:     common.HexToAddress(o.Owner),
			Orderbook: common.HexToAddress(o.Orderbook),
			Version:   orderVersionFromString(o.Version),
			Active:    o.Active,
		})
	}
	return orders, nil
}

func (idx *SubgraphIndexer) GetUpstreamEvents(ctx context.Context) (external.UpstreamEventsResult, error) {
	var raw sgEventsResponse
	resp, err := idx.nextClient().R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/events")
	if err != nil {
		return external.UpstreamEventsResult{}, fmt.Errorf("fetch upstream events: %w", err)
	}
	if resp.IsError() {
		return external.UpstreamEventsResult{}, fmt.Errorf("fetch upstream events: status %d", resp.StatusCode())
	}

	result := make(map[string][]external.SgTransaction, len(raw.Result))
	for source, txs := range raw.Result {
		converted := make([]external.SgTransaction, 0, len(txs))
		for _, tx := range txs {
			converted = append(converted, external.SgTransaction{
				TxHash:      common.HexToHash(tx.TxHash),
				BlockNumber: tx.BlockNumber,
			})
		}
		result[source] = converted
	}
	return external.UpstreamEventsResult{Status: raw.Status, Result: result}, nil
}

func orderVersionFromString(v string) types.OrderVersion {
	if v == "v5" || v == "V5" {
		return types.OrderVersionV4
	}
	return types.OrderVersionV3
}
