// Package contracts implements the ContractRegistry collaborator: resolving
// a Pair's trade destination and dispair from the configured v4/v5 contract
// sets.
package contracts

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"rainsolver/internal/config"
	"rainsolver/pkg/types"
)

// Registry resolves {dispair, destination} for a (Pair, TradeType) per the
// dispatch table in the external-interfaces section: Router prefers sushi,
// then balancer, then stabull; RouteProcessor/Balancer/Stabull each pin a
// single contract; InterOrderbook routes through the generic-arb contract;
// IntraOrderbook's destination is the pair's own orderbook.
type Registry struct {
	v4     resolvedSet
	v5     resolvedSet
	logger *slog.Logger
}

type resolvedSet struct {
	dispair     types.Dispair
	sushiArb    common.Address
	genericArb  common.Address
	balancerArb common.Address
	stabullArb  common.Address
	hasSushi    bool
	hasGeneric  bool
	hasBalancer bool
	hasStabull  bool
}

// New builds a Registry from the loaded contracts configuration.
func New(cfg config.ContractsConfig, logger *slog.Logger) *Registry {
	return &Registry{
		v4:     resolveSet(cfg.V4),
		v5:     resolveSet(cfg.V5),
		logger: logger.With("component", "contract-registry"),
	}
}

func resolveSet(cs config.ContractSet) resolvedSet {
	set := resolvedSet{
		dispair: types.Dispair{
			Deployer:    common.HexToAddress(cs.Dispair.Deployer),
			Interpreter: common.HexToAddress(cs.Dispair.Interpreter),
			Store:       common.HexToAddress(cs.Dispair.Store),
		},
	}
	if cs.SushiArb != "" {
		set.sushiArb = common.HexToAddress(cs.SushiArb)
		set.hasSushi = true
	}
	if cs.GenericArb != "" {
		set.genericArb = common.HexToAddress(cs.GenericArb)
		set.hasGeneric = true
	}
	if cs.BalancerArb != "" {
		set.balancerArb = common.HexToAddress(cs.BalancerArb)
		set.hasBalancer = true
	}
	if cs.StabullArb != "" {
		set.stabullArb = common.HexToAddress(cs.StabullArb)
		set.hasStabull = true
	}
	return set
}

// setFor picks the v4 or v5 contract set for an order's version. V3 orders
// resolve against the v4 set, V4 orders against the v5 set.
func (r *Registry) setFor(version types.OrderVersion) resolvedSet {
	if version == types.OrderVersionV4 {
		return r.v5
	}
	return r.v4
}

// GetAddressesForTrade resolves the dispair and destination contract for a
// pair under the given trade type. OK is false when no contract is
// configured for that trade type.
func (r *Registry) GetAddressesForTrade(pair *types.Pair, tradeType types.TradeType) types.TradeAddresses {
	set := r.setFor(pair.TakeOrder.Order.Version)

	switch tradeType {
	case types.TradeRouter:
		if set.hasSushi {
			return types.TradeAddresses{Dispair: set.dispair, Destination: set.sushiArb, OK: true}
		}
		if set.hasBalancer {
			return types.TradeAddresses{Dispair: set.dispair, Destination: set.balancerArb, OK: true}
		}
		if set.hasStabull {
			return types.TradeAddresses{Dispair: set.dispair, Destination: set.stabullArb, OK: true}
		}
		return types.TradeAddresses{}
	case types.TradeRouteProcessor:
		if !set.hasSushi {
			return types.TradeAddresses{}
		}
		return types.TradeAddresses{Dispair: set.dispair, Destination: set.sushiArb, OK: true}
	case types.TradeBalancer:
		if !set.hasBalancer {
			return types.TradeAddresses{}
		}
		return types.TradeAddresses{Dispair: set.dispair, Destination: set.balancerArb, OK: true}
	case types.TradeStabull:
		if !set.hasStabull {
			return types.TradeAddresses{}
		}
		return types.TradeAddresses{Dispair: set.dispair, Destination: set.stabullArb, OK: true}
	case types.TradeInterOrderbook:
		if !set.hasGeneric {
			return types.TradeAddresses{}
		}
		return types.TradeAddresses{Dispair: set.dispair, Destination: set.genericArb, OK: true}
	case types.TradeIntraOrderbook:
		return types.TradeAddresses{Dispair: set.dispair, Destination: pair.Orderbook, OK: true}
	default:
		r.logger.Warn("unrecognized trade type", "trade_type", tradeType)
		return types.TradeAddresses{}
	}
}
