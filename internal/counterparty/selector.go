// Package counterparty implements CounterpartySelector: ranking opposing
// orders by ratio for both inter- and intra-orderbook crossing.
package counterparty

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/pkg/types"
)

// topN caps how many opposing orders per counterparty orderbook the
// inter-orderbook selection returns.
const topN = 3

// Candidate is one opposing order's quote, ready to be ranked.
type Candidate struct {
	OrderHash types.OrderHash
	Ratio     *uint256.Int
	MaxOutput *uint256.Int
}

// rankDescending sorts by ratio descending (most favorable to the searching
// side first). Ties keep the caller's original order — sort.SliceStable is
// the documented resolution of the ratio-equal tie-breaking open question.
func rankDescending(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ratio.Cmp(sorted[j].Ratio) > 0
	})
	return sorted
}

func filterSelf(candidates []Candidate, selfHash types.OrderHash) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.OrderHash == selfHash {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SelectInterOrderbook returns, for each counterparty orderbook other than
// selfOrderbook, up to the top 3 opposing orders sorted by ratio descending.
// orderbooks fixes the iteration order across counterparty orderbooks so
// the result is deterministic given deterministic candidate ordering.
func SelectInterOrderbook(
	selfOrderbook common.Address,
	selfOrderHash types.OrderHash,
	orderbooks []common.Address,
	byOrderbook map[common.Address][]Candidate,
) [][]Candidate {
	var groups [][]Candidate
	for _, ob := range orderbooks {
		if ob == selfOrderbook {
			continue
		}
		ranked := rankDescending(filterSelf(byOrderbook[ob], selfOrderHash))
		if len(ranked) > topN {
			ranked = ranked[:topN]
		}
		if len(ranked) > 0 {
			groups = append(groups, ranked)
		}
	}
	return groups
}

// SelectIntraOrderbook returns every opposing order in the same orderbook,
// sorted by ratio descending, excluding the searching order itself.
func SelectIntraOrderbook(
	selfOrderbook common.Address,
	selfOrderHash types.OrderHash,
	byOrderbook map[common.Address][]Candidate,
) []Candidate {
	return rankDescending(filterSelf(byOrderbook[selfOrderbook], selfOrderHash))
}
