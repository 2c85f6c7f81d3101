// Package ordermanager owns the solver's core shared mutable state: the
// per-(orderbook, owner) round-robin cursors, the owner-token-vault
// balance table, and the two pair indices used for O(1) counterparty
// lookup. Per the concurrency model, all map mutation happens on the
// scheduler's goroutine; Manager's own mutex exists as a defensive
// boundary, not as a substitute for that single-writer discipline.
package ordermanager

import (
	"log/slog"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/pkg/types"
)

// Manager is the OrderManager component: owner limits, vault balances, and
// the oiPairMap/ioPairMap counterparty indices.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger

	// ownerLimits holds pinned per-owner overrides; these owners start at
	// their pinned limit instead of DefaultOwnerLimit and are exempt from
	// downscale protection.
	ownerLimits map[common.Address]uint32

	// orderbooks preserves registration order so iteration (and therefore
	// round-robin scheduling) is deterministic rather than Go's randomized
	// map order.
	orderbooks []common.Address
	ownersByOB map[common.Address][]common.Address // owner insertion order per orderbook

	ownersMap  map[common.Address]map[common.Address]*types.OwnerProfile
	orderKeys  map[common.Address]map[common.Address][]types.OrderHash // stable per-owner order insertion order

	// oiPairMap[orderbook][outputToken][inputToken][orderHash] -> Pair
	oiPairMap map[common.Address]map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair
	// ioPairMap is the inverse: [orderbook][inputToken][outputToken][orderHash] -> Pair
	ioPairMap map[common.Address]map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair

	// ownerTokenVaultMap[orderbook][owner][token][vaultIdDecimal] -> record
	ownerTokenVaultMap map[common.Address]map[common.Address]map[common.Address]map[string]*types.VaultRecord
}

// New builds an empty Manager. ownerLimits pins specific owners to a fixed
// round-robin quota, exempting them from the default and from downscale
// protection.
func New(ownerLimits map[common.Address]uint32, logger *slog.Logger) *Manager {
	if ownerLimits == nil {
		ownerLimits = make(map[common.Address]uint32)
	}
	return &Manager{
		logger:             logger.With("component", "order-manager"),
		ownerLimits:        ownerLimits,
		ownersByOB:         make(map[common.Address][]common.Address),
		ownersMap:          make(map[common.Address]map[common.Address]*types.OwnerProfile),
		orderKeys:          make(map[common.Address]map[common.Address][]types.OrderHash),
		oiPairMap:          make(map[common.Address]map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair),
		ioPairMap:          make(map[common.Address]map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair),
		ownerTokenVaultMap: make(map[common.Address]map[common.Address]map[common.Address]map[string]*types.VaultRecord),
	}
}

// RegisterOrder ingests a new (or updated) order's takeable pairs. Owner
// profiles are created lazily, seeded with DefaultOwnerLimit unless the
// owner has a pinned override.
func (m *Manager) RegisterOrder(orderbook, owner common.Address, hash types.OrderHash, order types.OrderStruct, takeOrders []*types.Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureOrderbook(orderbook)
	m.ensureOwner(orderbook, owner)

	profile := m.ownersMap[orderbook][owner]
	if _, exists := profile.Orders[hash]; !exists {
		m.orderKeys[orderbook][owner] = append(m.orderKeys[orderbook][owner], hash)
	}
	profile.Orders[hash] = &types.OrderProfile{Active: true, Order: order, TakeOrders: takeOrders}

	for _, pair := range takeOrders {
		m.indexPair(orderbook, pair)
	}
}

// RemoveOrder deletes an order from its owner's profile and drops its pairs
// from both counterparty indices. Per §3's lifecycle note, a Pair is removed only
// when its order is explicitly removed — RemoveOrder is that explicit call.
func (m *Manager) RemoveOrder(orderbook, owner common.Address, hash types.OrderHash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owners, ok := m.ownersMap[orderbook]
	if !ok {
		return
	}
	profile, ok := owners[owner]
	if !ok {
		return
	}
	orderProfile, ok := profile.Orders[hash]
	if !ok {
		return
	}
	for _, pair := range orderProfile.TakeOrders {
		m.unindexPair(orderbook, pair)
	}
	delete(profile.Orders, hash)
}

// UpsertVault records a vault balance observation, creating the record on
// first sight and updating it thereafter. Vaults are never deleted.
func (m *Manager) UpsertVault(orderbook, owner, token common.Address, vaultID *uint256.Int, balance *uint256.Int, tok types.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownerTokenVaultMap[orderbook]; !ok {
		m.ownerTokenVaultMap[orderbook] = make(map[common.Address]map[common.Address]map[string]*types.VaultRecord)
	}
	if _, ok := m.ownerTokenVaultMap[orderbook][owner]; !ok {
		m.ownerTokenVaultMap[orderbook][owner] = make(map[common.Address]map[string]*types.VaultRecord)
	}
	if _, ok := m.ownerTokenVaultMap[orderbook][owner][token]; !ok {
		m.ownerTokenVaultMap[orderbook][owner][token] = make(map[string]*types.VaultRecord)
	}

	key := vaultID.Dec()
	rec, ok := m.ownerTokenVaultMap[orderbook][owner][token][key]
	if !ok {
		rec = &types.VaultRecord{ID: vaultID, Token: tok}
		m.ownerTokenVaultMap[orderbook][owner][token][key] = rec
	}
	rec.Balance = balance
}

// LookupOIPair returns the Pair for (orderbook, outputToken, inputToken,
// orderHash), if any — the oiPairMap lookup.
func (m *Manager) LookupOIPair(orderbook, outputToken, inputToken common.Address, hash types.OrderHash) (*types.Pair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.oiPairMap[orderbook][outputToken][inputToken][hash]
	return p, ok
}

// LookupIOPair is the inverse lookup (input token -> output token).
func (m *Manager) LookupIOPair(orderbook, inputToken, outputToken common.Address, hash types.OrderHash) (*types.Pair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ioPairMap[orderbook][inputToken][outputToken][hash]
	return p, ok
}

// CandidatesByOrderbook groups every active pair's quote by orderbook and by
// (outputToken, inputToken) via the oiPairMap, for feeding into
// counterparty.SelectInterOrderbook / SelectIntraOrderbook.
func (m *Manager) CandidatesByOrderbook(outputToken, inputToken common.Address) map[common.Address][]*types.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[common.Address][]*types.Pair)
	for ob, byOutput := range m.oiPairMap {
		byInput, ok := byOutput[outputToken]
		if !ok {
			continue
		}
		pairs, ok := byInput[inputToken]
		if !ok {
			continue
		}
		for _, p := range pairs {
			out[ob] = append(out[ob], p)
		}
	}
	return out
}

func (m *Manager) ensureOrderbook(orderbook common.Address) {
	if _, ok := m.ownersMap[orderbook]; ok {
		return
	}
	m.orderbooks = append(m.orderbooks, orderbook)
	m.ownersMap[orderbook] = make(map[common.Address]*types.OwnerProfile)
	m.orderKeys[orderbook] = make(map[common.Address][]types.OrderHash)
	m.oiPairMap[orderbook] = make(map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair)
	m.ioPairMap[orderbook] = make(map[common.Address]map[common.Address]map[types.OrderHash]*types.Pair)
}

func (m *Manager) ensureOwner(orderbook, owner common.Address) {
	if _, ok := m.ownersMap[orderbook][owner]; ok {
		return
	}
	m.ownersByOB[orderbook] = append(m.ownersByOB[orderbook], owner)
	limit := types.DefaultOwnerLimit
	if pinned, ok := m.ownerLimits[owner]; ok {
		limit = pinned
	}
	m.ownersMap[orderbook][owner] = &types.OwnerProfile{
		Limit:  limit,
		Orders: make(map[types.OrderHash]*types.OrderProfile),
	}
}

func (m *Manager) indexPair(orderbook common.Address, pair *types.Pair) {
	output, input, hash := pair.SellToken.Address, pair.BuyToken.Address, pair.TakeOrder.OrderHash

	if _, ok := m.oiPairMap[orderbook][output]; !ok {
		m.oiPairMap[orderbook][output] = make(map[common.Address]map[types.OrderHash]*types.Pair)
	}
	if _, ok := m.oiPairMap[orderbook][output][input]; !ok {
		m.oiPairMap[orderbook][output][input] = make(map[types.OrderHash]*types.Pair)
	}
	m.oiPairMap[orderbook][output][input][hash] = pair

	if _, ok := m.ioPairMap[orderbook][input]; !ok {
		m.ioPairMap[orderbook][input] = make(map[common.Address]map[types.OrderHash]*types.Pair)
	}
	if _, ok := m.ioPairMap[orderbook][input][output]; !ok {
		m.ioPairMap[orderbook][input][output] = make(map[types.OrderHash]*types.Pair)
	}
	m.ioPairMap[orderbook][input][output][hash] = pair
}

func (m *Manager) unindexPair(orderbook common.Address, pair *types.Pair) {
	output, input, hash := pair.SellToken.Address, pair.BuyToken.Address, pair.TakeOrder.OrderHash
	delete(m.oiPairMap[orderbook][output][input], hash)
	delete(m.ioPairMap[orderbook][input][output], hash)
}

func (m *Manager) lookupVault(orderbook, owner, token common.Address, vaultID *uint256.Int) (*types.VaultRecord, bool) {
	byOwner, ok := m.ownerTokenVaultMap[orderbook]
	if !ok {
		return nil, false
	}
	byToken, ok := byOwner[owner]
	if !ok {
		return nil, false
	}
	byVault, ok := byToken[token]
	if !ok {
		return nil, false
	}
	rec, ok := byVault[vaultID.Dec()]
	return rec, ok
}

// ————————————————————————————————————————————————————————————————————————
// getNextRoundOrders (§4.6)
// ————————————————————————————————————————————————————————————————————————

// GetNextRoundOrders consumes the next round-robin window from every
// registered owner and refreshes each consumed Pair's cached vault
// balances from the owner-token-vault map, falling back to the Pair's
// existing cached balance when no record exists yet.
func (m *Manager) GetNextRoundOrders(shuffle bool) []*types.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	var collected []*types.Pair
	for _, ob := range m.orderbooks {
		for _, owner := range m.ownersByOB[ob] {
			profile := m.ownersMap[ob][owner]
			keys := m.orderKeys[ob][owner]
			flat := profile.FlattenTakeOrders(keys)
			if len(flat) == 0 {
				continue
			}

			window, newLastIndex := consumeWindow(flat, profile.LastIndex, profile.Limit)
			profile.LastIndex = newLastIndex

			for _, pair := range window {
				m.refreshBalances(ob, owner, pair)
			}
			collected = append(collected, window...)
		}
	}

	if shuffle {
		rand.Shuffle(len(collected), func(i, j int) {
			collected[i], collected[j] = collected[j], collected[i]
		})
	}
	return collected
}

// consumeWindow consumes min(limit, len(pairs)) items starting at lastIndex,
// wrapping to index 0 when the quota isn't filled by the tail of the slice.
// Returns the consumed window and the new lastIndex (advanced by the
// consumed count, modulo len(pairs)).
func consumeWindow(pairs []*types.Pair, lastIndex, limit uint32) ([]*types.Pair, uint32) {
	n := uint32(len(pairs))
	if n == 0 {
		return nil, 0
	}
	k := limit
	if k > n {
		k = n
	}

	window := make([]*types.Pair, 0, k)
	idx := lastIndex % n
	for i := uint32(0); i < k; i++ {
		window = append(window, pairs[idx])
		idx = (idx + 1) % n
	}
	return window, (lastIndex + k) % n
}

// RefreshPairBalances re-reads pair's cached vault balances from the
// owner-token-vault map, falling back to the existing cached value when no
// record exists. This is the same refresh GetNextRoundOrders performs,
// exposed so process_order_init can re-apply it with a fresh read.
func (m *Manager) RefreshPairBalances(pair *types.Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshBalances(pair.Orderbook, pair.TakeOrder.Order.Owner, pair)
}

func (m *Manager) refreshBalances(orderbook, owner common.Address, pair *types.Pair) {
	order := pair.TakeOrder.Order
	if pair.TakeOrder.InputIOIndex < len(order.InputVaults) {
		inputVault := order.InputVaults[pair.TakeOrder.InputIOIndex]
		if rec, ok := m.lookupVault(orderbook, owner, pair.BuyToken.Address, inputVault.VaultID); ok {
			pair.BuyTokenVaultBalance = rec.Balance
		}
	}
	if pair.TakeOrder.OutputIOIndex < len(order.OutputVaults) {
		outputVault := order.OutputVaults[pair.TakeOrder.OutputIOIndex]
		if rec, ok := m.lookupVault(orderbook, owner, pair.SellToken.Address, outputVault.VaultID); ok {
			pair.SellTokenVaultBalance = rec.Balance
		}
	}
}
