package counterparty

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/pkg/types"
)

func hash(b byte) types.OrderHash {
	var h types.OrderHash
	h[0] = b
	return h
}

func TestSelectInterOrderbookCapsAtTopN(t *testing.T) {
	t.Parallel()

	ob := common.HexToAddress("0x1")
	self := common.HexToAddress("0xself")

	candidates := make([]Candidate, 0, 5)
	for i := byte(1); i <= 5; i++ {
		candidates = append(candidates, Candidate{
			OrderHash: hash(i),
			Ratio:     uint256.NewInt(uint64(i)),
			MaxOutput: uint256.NewInt(100),
		})
	}

	groups := SelectInterOrderbook(self, hash(0), []common.Address{ob}, map[common.Address][]Candidate{ob: candidates})
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	if len(groups[0]) != topN {
		t.Errorf("len(groups[0]) = %d, want %d", len(groups[0]), topN)
	}
	// Highest ratio (5) must come first.
	if groups[0][0].Ratio.Uint64() != 5 {
		t.Errorf("groups[0][0].Ratio = %v, want 5 (descending)", groups[0][0].Ratio)
	}
}

func TestSelectInterOrderbookSkipsSelfOrderbook(t *testing.T) {
	t.Parallel()

	self := common.HexToAddress("0xself")
	candidates := []Candidate{{OrderHash: hash(1), Ratio: uint256.NewInt(1), MaxOutput: uint256.NewInt(1)}}

	groups := SelectInterOrderbook(self, hash(0), []common.Address{self}, map[common.Address][]Candidate{self: candidates})
	if len(groups) != 0 {
		t.Errorf("len(groups) = %d, want 0 (self orderbook must be excluded)", len(groups))
	}
}

func TestRankDescendingStableOnTies(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{OrderHash: hash(1), Ratio: uint256.NewInt(5)},
		{OrderHash: hash(2), Ratio: uint256.NewInt(5)},
		{OrderHash: hash(3), Ratio: uint256.NewInt(5)},
	}
	ranked := rankDescending(candidates)
	for i, c := range ranked {
		if c.OrderHash != candidates[i].OrderHash {
			t.Errorf("ranked[%d] = %v, want insertion order preserved on tie", i, c.OrderHash)
		}
	}
}

func TestSelectIntraOrderbookExcludesSelf(t *testing.T) {
	t.Parallel()

	ob := common.HexToAddress("0x1")
	candidates := []Candidate{
		{OrderHash: hash(0), Ratio: uint256.NewInt(9)},
		{OrderHash: hash(1), Ratio: uint256.NewInt(3)},
	}
	got := SelectIntraOrderbook(ob, hash(0), map[common.Address][]Candidate{ob: candidates})
	if len(got) != 1 || got[0].OrderHash != hash(1) {
		t.Errorf("SelectIntraOrderbook() = %v, want [hash(1)]", got)
	}
}
