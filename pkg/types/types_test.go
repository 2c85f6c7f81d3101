package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestAddressKeyLowercases(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	got := AddressKey(addr)
	if got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("AddressKey() = %q, want lowercase hex", got)
	}
}

func TestPairValidRejectsSameToken(t *testing.T) {
	t.Parallel()

	tok := Token{Address: common.HexToAddress("0x1")}
	p := &Pair{
		BuyToken:  tok,
		SellToken: tok,
		TakeOrder: TakeOrder{
			Order: OrderStruct{
				InputVaults:  []VaultRef{{}},
				OutputVaults: []VaultRef{{}},
			},
		},
	}
	if p.Valid() {
		t.Error("Valid() = true for buyToken == sellToken, want false")
	}
}

func TestPairValidRejectsBadIndices(t *testing.T) {
	t.Parallel()

	p := &Pair{
		BuyToken:  Token{Address: common.HexToAddress("0x1")},
		SellToken: Token{Address: common.HexToAddress("0x2")},
		TakeOrder: TakeOrder{
			InputIOIndex:  3,
			OutputIOIndex: 0,
			Order: OrderStruct{
				InputVaults:  []VaultRef{{}},
				OutputVaults: []VaultRef{{}},
			},
		},
	}
	if p.Valid() {
		t.Error("Valid() = true with out-of-range InputIOIndex, want false")
	}
}

func TestOwnerProfileFlattenTakeOrdersSkipsInactive(t *testing.T) {
	t.Parallel()

	hashA := OrderHash{0x01}
	hashB := OrderHash{0x02}
	pairA := &Pair{ID: 1}
	pairB := &Pair{ID: 2}

	owner := &OwnerProfile{
		Orders: map[OrderHash]*OrderProfile{
			hashA: {Active: true, TakeOrders: []*Pair{pairA}},
			hashB: {Active: false, TakeOrders: []*Pair{pairB}},
		},
	}

	got := owner.FlattenTakeOrders([]OrderHash{hashA, hashB})
	if len(got) != 1 || got[0] != pairA {
		t.Errorf("FlattenTakeOrders() = %v, want [pairA]", got)
	}
}

func TestIsKnownErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{"execution reverted: Min Amount Not Met", true},
		{"Insufficient Output Amount", true},
		{"execution reverted: custom panic 0x11", false},
	}
	for _, tt := range tests {
		if got := IsKnownErrorMessage(tt.msg); got != tt.want {
			t.Errorf("IsKnownErrorMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestSeverityForMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reason    Reason
		isTimeout bool
		revertMsg string
		want      Severity
	}{
		{"timeout always low", ReasonTxMineFailed, true, "", SeverityLow},
		{"pool fetch failure is medium", ReasonFailedToGetPools, false, "", SeverityMedium},
		{"unknown revert is high", ReasonTxReverted, false, "custom panic", SeverityHigh},
		{"known revert is medium", ReasonTxReverted, false, "slippage exceeded", SeverityMedium},
		{"tx failed without timeout is high", ReasonTxFailed, false, "", SeverityHigh},
		{"unexpected error is high", ReasonUnexpectedError, false, "", SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SeverityFor(tt.reason, tt.isTimeout, tt.revertMsg)
			if got != tt.want {
				t.Errorf("SeverityFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRpcMetricsRecordsLastWriterWins(t *testing.T) {
	t.Parallel()

	m := NewRpcMetrics()
	m.RecordRequest("https://rpc.example")
	m.RecordResult("https://rpc.example", true)
	m.RecordResult("https://rpc.example", false)

	snap := m.Snapshot()
	got := snap["https://rpc.example"]
	if got.Requests != 1 || got.Success != 1 || got.Failure != 1 {
		t.Errorf("Snapshot() = %+v, want {Requests:1 Success:1 Failure:1}", got)
	}
}

func TestQuoteZeroRatioMeansUnbounded(t *testing.T) {
	t.Parallel()

	q := Quote{MaxOutput: uint256.NewInt(10), Ratio: uint256.NewInt(0)}
	if !q.Ratio.IsZero() {
		t.Errorf("expected zero ratio to remain zero, got %v", q.Ratio)
	}
}
