package profit

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"rainsolver/pkg/bignum"
	"rainsolver/pkg/types"
)

func one18x(n int64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(uint64(n)), bignum.ONE18)
}

// S1 — Inter typical.
func TestEstimateInterOrderbookScenarioS1(t *testing.T) {
	t.Parallel()

	got := EstimateInterOrderbook(
		one18x(2),
		one18x(10),
		CounterpartyQuote{Ratio: mulFrac(one18x(1), 15, 10), MaxOutput: one18x(5)},
		one18x(1),
		one18x(3),
	)
	want := one18x(10).ToBig()
	if got.Cmp(want) != 0 {
		t.Errorf("S1 total = %v, want %v", got, want)
	}
}

// S2 — Inter, order ratio 0.
func TestEstimateInterOrderbookScenarioS2(t *testing.T) {
	t.Parallel()

	got := EstimateInterOrderbook(
		uint256.NewInt(0),
		one18x(10),
		CounterpartyQuote{Ratio: one18x(1), MaxOutput: one18x(5)},
		one18x(1),
		one18x(2),
	)
	want := one18x(15).ToBig()
	if got.Cmp(want) != 0 {
		t.Errorf("S2 total = %v, want %v", got, want)
	}
}

// S3 — Intra both ratios zero.
func TestEstimateIntraOrderbookScenarioS3(t *testing.T) {
	t.Parallel()

	a := types.Quote{MaxOutput: one18x(6), Ratio: uint256.NewInt(0)}
	b := types.Quote{MaxOutput: one18x(4), Ratio: uint256.NewInt(0)}

	got := EstimateIntraOrderbook(a, b, one18x(2), one18x(3))
	want := one18x(26).ToBig()
	if got.Cmp(want) != 0 {
		t.Errorf("S3 total = %v, want %v", got, want)
	}
}

// Property 3: increasing counterpartyMaxOutput never decreases total.
func TestInterOrderbookMonotonicInCounterpartyMaxOutput(t *testing.T) {
	t.Parallel()

	base := EstimateInterOrderbook(
		one18x(1),
		one18x(10),
		CounterpartyQuote{Ratio: one18x(1), MaxOutput: one18x(2)},
		one18x(1),
		one18x(1),
	)
	bigger := EstimateInterOrderbook(
		one18x(1),
		one18x(10),
		CounterpartyQuote{Ratio: one18x(1), MaxOutput: one18x(8)},
		one18x(1),
		one18x(1),
	)
	if bigger.Cmp(base) < 0 {
		t.Errorf("increasing counterpartyMaxOutput decreased profit: %v -> %v", base, bigger)
	}
}

// Property 4: intra-orderbook symmetry at zero ratios.
func TestIntraOrderbookSymmetryAtZeroRatios(t *testing.T) {
	t.Parallel()

	a := types.Quote{MaxOutput: one18x(7), Ratio: uint256.NewInt(0)}
	b := types.Quote{MaxOutput: one18x(3), Ratio: uint256.NewInt(0)}

	got := EstimateIntraOrderbook(a, b, one18x(4), one18x(5))

	want := new(big.Int).Add(
		new(big.Int).Mul(big.NewInt(7), one18x(5).ToBig()),
		new(big.Int).Mul(big.NewInt(3), one18x(4).ToBig()),
	)
	if got.Cmp(want) != 0 {
		t.Errorf("symmetric zero-ratio total = %v, want %v", got, want)
	}
}

func TestEstimateRouterPassesThroughQuoteProfit(t *testing.T) {
	t.Parallel()

	got := EstimateRouter(one18x(42))
	if got.Cmp(one18x(42).ToBig()) != 0 {
		t.Errorf("EstimateRouter() = %v, want %v", got, one18x(42))
	}
}

// mulFrac returns base * num / den, used to build ratios like 1.5 * ONE18.
func mulFrac(base *uint256.Int, num, den int64) *uint256.Int {
	n := new(uint256.Int).Mul(base, uint256.NewInt(uint64(num)))
	return new(uint256.Int).Div(n, uint256.NewInt(uint64(den)))
}
