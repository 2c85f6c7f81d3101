package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/config"
	"rainsolver/internal/contracts"
	"rainsolver/internal/external"
	"rainsolver/internal/ordermanager"
	"rainsolver/internal/router"
	"rainsolver/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubClient struct {
	block    uint64
	err      error
	callsMu  sync.Mutex
	numCalls int
}

func (c *stubClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	c.callsMu.Lock()
	c.numCalls++
	c.callsMu.Unlock()
	return c.block, c.err
}
func (c *stubClient) ReadContract(ctx context.Context, addr common.Address, abiJSON, method string, args ...any) ([]byte, error) {
	return nil, nil
}

type stubWallets struct {
	signer external.Signer
	err    error
}

func (w *stubWallets) GetRandomSigner(ctx context.Context, block bool) (external.Signer, error) {
	return w.signer, w.err
}

type stubSigner struct{ addr common.Address }

func (s *stubSigner) Address() common.Address { return s.addr }
func (s *stubSigner) EstimateGasCost(ctx context.Context, tx external.RawTx) (external.GasEstimate, error) {
	return external.GasEstimate{}, nil
}
func (s *stubSigner) AsWriteSigner() external.WriteSigner { return nil }
func (s *stubSigner) WaitForReceipt(ctx context.Context, hash common.Hash) (*external.Receipt, error) {
	return nil, nil
}

type stubOracle struct{ calls int32 }

func (o *stubOracle) GetMarketPrice(ctx context.Context, from, to common.Address, block uint64, allowEstimate bool) (*uint256.Int, error) {
	atomic.AddInt32(&o.calls, 1)
	return uint256.NewInt(1), nil
}

type countingProcessor struct {
	calls int32
}

func (p *countingProcessor) ProcessOrder(ctx context.Context, pair *types.Pair, signer external.Signer, block uint64) SettlementFunc {
	atomic.AddInt32(&p.calls, 1)
	return func(ctx context.Context) types.PreAssembledSpan {
		return types.PreAssembledSpan{Name: "process_order", Reason: types.ReasonFoundOpportunity}
	}
}

func testRegistry(t *testing.T, withRouter bool) *contracts.Registry {
	t.Helper()
	cs := config.ContractSet{Dispair: config.DispairConfig{
		Deployer: "0x1", Interpreter: "0x2", Store: "0x3",
	}}
	if withRouter {
		cs.SushiArb = "0x4"
	}
	cfg := config.ContractsConfig{V4: cs, V5: cs}
	return contracts.New(cfg, testLogger())
}

func makePair(id uint64, sellBalance uint64, owner common.Address) *types.Pair {
	return &types.Pair{
		ID:                    id,
		Orderbook:             common.HexToAddress("0xOB"),
		BuyToken:              types.Token{Address: common.HexToAddress("0xBuy")},
		SellToken:             types.Token{Address: common.HexToAddress("0xSell")},
		SellTokenVaultBalance: uint256.NewInt(sellBalance),
		BuyTokenVaultBalance:  uint256.NewInt(1),
		TakeOrder: types.TakeOrder{
			Order: types.OrderStruct{Owner: owner},
		},
	}
}

func TestInitializeRoundReturnsEmptyOnBlockNumberFailure(t *testing.T) {
	t.Parallel()

	om := ordermanager.New(nil, testLogger())
	client := &stubClient{err: errors.New("rpc down")}
	s := New(om, client, &stubWallets{}, router.New("", testLogger()), nil, testRegistry(t, true), &countingProcessor{}, Config{MaxConcurrency: 2}, testLogger())

	settlements, reports := s.InitializeRound(context.Background(), false)
	if settlements != nil {
		t.Errorf("settlements = %v, want nil on block-fetch failure", settlements)
	}
	if len(reports) != 1 || reports[0].Reason != types.ReasonUnexpectedError {
		t.Errorf("reports = %v, want one round_preprocess UnexpectedError report", reports)
	}
}

func TestProcessOrderInitZeroOutputSkipsProcessor(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0xOwner")
	om := ordermanager.New(nil, testLogger())
	pair := makePair(1, 0, owner)
	om.RegisterOrder(pair.Orderbook, owner, types.OrderHash{1}, pair.TakeOrder.Order, []*types.Pair{pair})

	processor := &countingProcessor{}
	client := &stubClient{block: 100}
	s := New(om, client, &stubWallets{signer: &stubSigner{}}, router.New("", testLogger()), &stubOracle{}, testRegistry(t, true), processor, Config{MaxConcurrency: 4}, testLogger())

	settlement := s.processOrderInit(context.Background(), pair, 100)
	span := settlement(context.Background())
	if span.Reason != types.ReasonZeroOutput {
		t.Errorf("Reason = %v, want ZeroOutput", span.Reason)
	}
	if processor.calls != 0 {
		t.Errorf("processor.calls = %d, want 0 (zero-output should short-circuit)", processor.calls)
	}
}

func TestProcessOrderInitUndefinedTradeAddresses(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0xOwner")
	om := ordermanager.New(nil, testLogger())
	pair := makePair(1, 50, owner)

	processor := &countingProcessor{}
	client := &stubClient{block: 1}
	// No router contract configured -> GetAddressesForTrade(Router) fails.
	s := New(om, client, &stubWallets{signer: &stubSigner{}}, router.New("", testLogger()), &stubOracle{}, testRegistry(t, false), processor, Config{MaxConcurrency: 4}, testLogger())

	settlement := s.processOrderInit(context.Background(), pair, 1)
	span := settlement(context.Background())
	if span.Reason != types.ReasonUndefinedTradeAddresses {
		t.Errorf("Reason = %v, want UndefinedTradeAddresses", span.Reason)
	}
	if processor.calls != 0 {
		t.Errorf("processor.calls = %d, want 0", processor.calls)
	}
}

func TestProcessOrderInitDispatchesToProcessor(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0xOwner")
	om := ordermanager.New(nil, testLogger())
	pair := makePair(1, 50, owner)

	processor := &countingProcessor{}
	client := &stubClient{block: 1}
	s := New(om, client, &stubWallets{signer: &stubSigner{}}, router.New("", testLogger()), &stubOracle{}, testRegistry(t, true), processor, Config{MaxConcurrency: 4}, testLogger())

	settlement := s.processOrderInit(context.Background(), pair, 1)
	span := settlement(context.Background())
	if span.Reason != types.ReasonFoundOpportunity {
		t.Errorf("Reason = %v, want FoundOpportunity (from the injected processor)", span.Reason)
	}
	if processor.calls != 1 {
		t.Errorf("processor.calls = %d, want 1", processor.calls)
	}
}

func TestInitializeRoundBatchesAndCollectsAllSettlements(t *testing.T) {
	t.Parallel()

	om := ordermanager.New(nil, testLogger())
	owners := []common.Address{common.HexToAddress("0xA"), common.HexToAddress("0xB"), common.HexToAddress("0xC")}
	for i, owner := range owners {
		pair := makePair(uint64(i), 50, owner)
		om.RegisterOrder(pair.Orderbook, owner, types.OrderHash{byte(i + 1)}, pair.TakeOrder.Order, []*types.Pair{pair})
	}

	processor := &countingProcessor{}
	client := &stubClient{block: 1}
	oracle := &stubOracle{}
	s := New(om, client, &stubWallets{signer: &stubSigner{}}, router.New("", testLogger()), oracle, testRegistry(t, true), processor, Config{MaxConcurrency: 2}, testLogger())

	settlements, reports := s.InitializeRound(context.Background(), false)
	if len(reports) != 0 {
		t.Errorf("reports = %v, want none on success", reports)
	}
	if len(settlements) != 3 {
		t.Fatalf("len(settlements) = %d, want 3", len(settlements))
	}
	if processor.calls != 3 {
		t.Errorf("processor.calls = %d, want 3", processor.calls)
	}

	spans := FinalizeRound(context.Background(), settlements)
	if len(spans) != 3 {
		t.Errorf("len(spans) = %d, want 3", len(spans))
	}
	for _, span := range spans {
		if span.Reason != types.ReasonFoundOpportunity {
			t.Errorf("span.Reason = %v, want FoundOpportunity", span.Reason)
		}
	}
}
