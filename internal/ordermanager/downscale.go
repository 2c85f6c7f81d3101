package ordermanager

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/pkg/types"
)

// tokenStat accumulates one token's per-owner vault balance totals within a
// single orderbook, for downscale protection's owner-vs-others comparison.
type tokenStat struct {
	sum     *big.Float
	byOwner map[common.Address]*big.Float
}

// ApplyDownscaleProtection recomputes every non-pinned owner's round-robin
// limit from its relative vault balance standing against the rest of the
// orderbook's owners, one token at a time, then combines the per-token
// factors with a geometric mean. Owners with a pinned entry in ownerLimits
// are exempt and left untouched.
func (m *Manager) ApplyDownscaleProtection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ob := range m.orderbooks {
		m.downscaleOrderbook(ob)
	}
}

func (m *Manager) downscaleOrderbook(ob common.Address) {
	owners := m.ownersByOB[ob]
	vaults := m.ownerTokenVaultMap[ob]

	stats := make(map[common.Address]*tokenStat)
	for _, owner := range owners {
		for token, byVault := range vaults[owner] {
			st, ok := stats[token]
			if !ok {
				st = &tokenStat{sum: new(big.Float), byOwner: make(map[common.Address]*big.Float)}
				stats[token] = st
			}
			ownerSum := new(big.Float)
			for _, rec := range byVault {
				ownerSum.Add(ownerSum, toFloat(rec.Balance))
			}
			avgOwnerBalance := ownerSum.Quo(ownerSum, big.NewFloat(float64(len(byVault))))
			st.byOwner[owner] = avgOwnerBalance
			st.sum.Add(st.sum, avgOwnerBalance)
		}
	}

	for _, owner := range owners {
		if _, pinned := m.ownerLimits[owner]; pinned {
			continue
		}
		profile := m.ownersMap[ob][owner]
		factor := ownerProtectionFactor(owner, stats)
		newLimit := uint32(math.Floor(float64(types.DefaultOwnerLimit) * factor))
		if newLimit < 1 {
			newLimit = 1
		}
		profile.Limit = newLimit
	}
}

// ownerProtectionFactor is the geometric mean, across every token owner
// holds a vault in, of min(1.0, avgOwnerBalance / max(1, othersBalance /
// otherOwnerCount)). An owner holding no vaults in this orderbook gets the
// neutral factor 1.0 (no protection applied, not yet observed).
func ownerProtectionFactor(owner common.Address, stats map[common.Address]*tokenStat) float64 {
	logSum := 0.0
	count := 0

	for _, st := range stats {
		ownerSum, ok := st.byOwner[owner]
		if !ok {
			continue
		}
		ownerBalance, _ := ownerSum.Float64()

		othersSum := new(big.Float).Sub(st.sum, ownerSum)
		othersBalance, _ := othersSum.Float64()
		otherOwnerCount := len(st.byOwner) - 1

		denom := 0.0
		if otherOwnerCount > 0 {
			denom = othersBalance / float64(otherOwnerCount)
		}
		if denom < 1 {
			denom = 1
		}

		factor := ownerBalance / denom
		if factor > 1.0 {
			factor = 1.0
		}
		if factor <= 0 {
			factor = math.SmallestNonzeroFloat64
		}

		logSum += math.Log(factor)
		count++
	}

	if count == 0 {
		return 1.0
	}
	return math.Exp(logSum / float64(count))
}

func toFloat(v *uint256.Int) *big.Float {
	if v == nil {
		return new(big.Float)
	}
	return new(big.Float).SetInt(v.ToBig())
}
