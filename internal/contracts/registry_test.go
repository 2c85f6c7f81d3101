package contracts

import (
	"io"
	"log/slog"
	"testing"

	"rainsolver/internal/config"
	"rainsolver/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *Registry {
	cfg := config.ContractsConfig{
		V5: config.ContractSet{
			Dispair:    config.DispairConfig{Deployer: "0x1", Interpreter: "0x2", Store: "0x3"},
			SushiArb:   "0xaaa",
			GenericArb: "0xbbb",
		},
	}
	return New(cfg, testLogger())
}

func pairWithVersion(v types.OrderVersion) *types.Pair {
	return &types.Pair{
		Orderbook: testAddr("0xccc"),
		TakeOrder: types.TakeOrder{Order: types.OrderStruct{Version: v}},
	}
}

func testAddr(s string) (a [20]byte) {
	copy(a[:], s)
	return a
}

func TestGetAddressesForTradeRouterPrefersSushi(t *testing.T) {
	t.Parallel()

	r := testRegistry()
	pair := pairWithVersion(types.OrderVersionV4)
	got := r.GetAddressesForTrade(pair, types.TradeRouter)
	if !got.OK {
		t.Fatal("expected OK destination for configured sushi arb")
	}
}

func TestGetAddressesForTradeBalancerUnconfigured(t *testing.T) {
	t.Parallel()

	r := testRegistry()
	pair := pairWithVersion(types.OrderVersionV4)
	got := r.GetAddressesForTrade(pair, types.TradeBalancer)
	if got.OK {
		t.Error("expected no destination for unconfigured balancer arb")
	}
}

func TestGetAddressesForTradeIntraOrderbookUsesPairOrderbook(t *testing.T) {
	t.Parallel()

	r := testRegistry()
	pair := pairWithVersion(types.OrderVersionV4)
	got := r.GetAddressesForTrade(pair, types.TradeIntraOrderbook)
	if !got.OK || got.Destination != pair.Orderbook {
		t.Errorf("GetAddressesForTrade(IntraOrderbook) = %+v, want destination == pair.Orderbook", got)
	}
}

func TestGetAddressesForTradeVersionSelectsContractSet(t *testing.T) {
	t.Parallel()

	r := testRegistry()
	// V3 resolves against the (unconfigured) v4 set.
	pair := pairWithVersion(types.OrderVersionV3)
	got := r.GetAddressesForTrade(pair, types.TradeRouter)
	if got.OK {
		t.Error("expected V3 order to resolve against empty v4 set")
	}
}
