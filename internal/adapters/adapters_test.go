package adapters

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/external"
	"rainsolver/pkg/types"
)

func common0x1() common.Address { return common.HexToAddress("0x1") }
func common0x2() common.Address { return common.HexToAddress("0x2") }

func TestNewKeySignersRejectsEmptyList(t *testing.T) {
	t.Parallel()

	if _, err := NewKeySigners(nil); err == nil {
		t.Error("NewKeySigners(nil) = nil error, want error")
	}
}

func TestNewKeySignersRejectsBadHex(t *testing.T) {
	t.Parallel()

	if _, err := NewKeySigners([]string{"not-a-hex-key"}); err == nil {
		t.Error("NewKeySigners() = nil error, want parse error")
	}
}

func TestKeySignerRoundRobinsAndDerivesDistinctAddresses(t *testing.T) {
	t.Parallel()

	pool, err := NewKeySigners([]string{
		"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		"0xd3e48b5fd13472d2c1d3a93d4e18d7a9eaabce6f32a51d9a6f13f2a0a9b91f1c",
	})
	if err != nil {
		t.Fatalf("NewKeySigners() error = %v", err)
	}

	first, err := pool.GetRandomSigner(context.Background(), true)
	if err != nil {
		t.Fatalf("GetRandomSigner() error = %v", err)
	}
	second, err := pool.GetRandomSigner(context.Background(), true)
	if err != nil {
		t.Fatalf("GetRandomSigner() error = %v", err)
	}
	third, err := pool.GetRandomSigner(context.Background(), true)
	if err != nil {
		t.Fatalf("GetRandomSigner() error = %v", err)
	}

	if first.Address() == second.Address() {
		t.Errorf("first.Address() == second.Address() = %v, want distinct keys", first.Address())
	}
	if first.Address() != third.Address() {
		t.Errorf("third.Address() = %v, want wraparound back to first = %v", third.Address(), first.Address())
	}
}

func TestTrimHexPrefix(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0xabc": "abc",
		"0Xabc": "abc",
		"abc":   "abc",
		"0":     "0",
		"":      "",
	}
	for in, want := range cases {
		if got := trimHexPrefix(in); got != want {
			t.Errorf("trimHexPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAcceptingReceiptProcessorNilReceiptIsFailure(t *testing.T) {
	t.Parallel()

	result, err := (AcceptingReceiptProcessor{}).ProcessReceipt(context.Background(), external.ProcessReceiptArgs{Receipt: nil})
	if err != nil {
		t.Fatalf("ProcessReceipt() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true, want false for a nil receipt")
	}
}

func TestAcceptingReceiptProcessorSuccessStatus(t *testing.T) {
	t.Parallel()

	result, err := (AcceptingReceiptProcessor{}).ProcessReceipt(context.Background(), external.ProcessReceiptArgs{
		Receipt: &external.Receipt{Status: 1},
	})
	if err != nil {
		t.Fatalf("ProcessReceipt() error = %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true for Status == 1")
	}
}

func TestAcceptingReceiptProcessorRevertedStatus(t *testing.T) {
	t.Parallel()

	result, err := (AcceptingReceiptProcessor{}).ProcessReceipt(context.Background(), external.ProcessReceiptArgs{
		Receipt: &external.Receipt{Status: 0, RevertMsg: "insufficient output"},
	})
	if err != nil {
		t.Fatalf("ProcessReceipt() error = %v", err)
	}
	if result.Success {
		t.Error("Success = true, want false for Status == 0")
	}
	if result.RevertedMsg != "insufficient output" {
		t.Errorf("RevertedMsg = %q, want %q", result.RevertedMsg, "insufficient output")
	}
}

func TestParPriceOracleAlwaysReturnsOne18(t *testing.T) {
	t.Parallel()

	price, err := (ParPriceOracle{}).GetMarketPrice(context.Background(), common0x1(), common0x2(), 1, false)
	if err != nil {
		t.Fatalf("GetMarketPrice() error = %v", err)
	}
	if price.Cmp(uint256.NewInt(1_000_000_000_000_000_000)) != 0 {
		t.Errorf("GetMarketPrice() = %v, want 1e18", price)
	}
}

func TestOpaqueEncoderPassesBountyBytecodeThrough(t *testing.T) {
	t.Parallel()

	bytecode := []byte{0xde, 0xad, 0xbe, 0xef}
	encoder := OpaqueEncoder{}

	out, err := encoder.EncodeRouterCall(context.Background(), external.RouterQuote{}, bytecode)
	if err != nil {
		t.Fatalf("EncodeRouterCall() error = %v", err)
	}
	if string(out) != string(bytecode) {
		t.Errorf("EncodeRouterCall() = %x, want %x unchanged", out, bytecode)
	}

	out, err = encoder.EncodeIntraOrderbookCall(context.Background(), common0x1(), types.TakeOrder{}, types.TakeOrder{}, [2]*uint256.Int{uint256.NewInt(1), uint256.NewInt(2)}, bytecode)
	if err != nil {
		t.Fatalf("EncodeIntraOrderbookCall() error = %v", err)
	}
	if string(out) != string(bytecode) {
		t.Errorf("EncodeIntraOrderbookCall() = %x, want %x unchanged", out, bytecode)
	}
}

func TestNewSubgraphIndexerRejectsEmptyURLs(t *testing.T) {
	t.Parallel()

	if _, err := NewSubgraphIndexer(nil); err == nil {
		t.Error("NewSubgraphIndexer(nil) = nil error, want error")
	}
}

func TestSubgraphIndexerRoundRobinsClients(t *testing.T) {
	t.Parallel()

	idx, err := NewSubgraphIndexer([]string{"http://a.example", "http://b.example"})
	if err != nil {
		t.Fatalf("NewSubgraphIndexer() error = %v", err)
	}

	first := idx.nextClient()
	second := idx.nextClient()
	third := idx.nextClient()

	if first == second {
		t.Error("nextClient() returned the same client twice in a row, want round-robin")
	}
	if first != third {
		t.Error("nextClient() did not wrap around to the first client on the third call")
	}
}

func TestOrderVersionFromString(t *testing.T) {
	t.Parallel()

	if got := orderVersionFromString("v5"); got != types.OrderVersionV4 {
		t.Errorf("orderVersionFromString(v5) = %v, want V4", got)
	}
	if got := orderVersionFromString("v4"); got != types.OrderVersionV3 {
		t.Errorf("orderVersionFromString(v4) = %v, want V3", got)
	}
}
