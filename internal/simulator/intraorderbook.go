package simulator

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"

	"rainsolver/internal/contracts"
	"rainsolver/internal/external"
	"rainsolver/internal/profit"
	"rainsolver/pkg/types"
)

// IntraOrderbookCapability settles a Pair directly against an opposing order
// in the same orderbook via multicall([clear, withdrawInput, withdrawOutput]).
// BountyVaultIDs names the two bounty vaults the withdraw legs drain; the
// output-side withdrawal carries the ensure-bounty task.
type IntraOrderbookCapability struct {
	Pair                  *types.Pair
	CounterpartyTakeOrder types.TakeOrder
	BountyVaultIDs        [2]*uint256.Int
	InputEthPrice18       *uint256.Int
	OutputEthPrice18      *uint256.Int
	Registry              *contracts.Registry
	Encoder               external.Encoder
}

func (c *IntraOrderbookCapability) PrepareTradeParams(ctx context.Context) (*PreparedParams, *FailedSimulation) {
	addrs := c.Registry.GetAddressesForTrade(c.Pair, types.TradeIntraOrderbook)
	if !addrs.OK {
		return nil, &FailedSimulation{
			Reason: types.ReasonUndefinedTradeDestinationAddress,
			Err:    errUndefinedDestination,
		}
	}
	return &PreparedParams{
		RawTx:       external.RawTx{To: addrs.Destination},
		Destination: addrs.Destination,
		Dispair:     addrs.Dispair,
		TradeType:   types.TradeIntraOrderbook,
		SpanAttrs: map[string]any{
			"tradeType": string(types.TradeIntraOrderbook),
			"pairId":    c.Pair.ID,
		},
	}, nil
}

func (c *IntraOrderbookCapability) BountyTaskSpec(minimumExpected *uint256.Int) external.BountyTaskSpec {
	return external.BountyTaskSpec{
		Kind:            external.BountyTaskInternal,
		MinimumExpected: minimumExpected,
		Orderbook:       c.Pair.Orderbook,
	}
}

func (c *IntraOrderbookCapability) AssembleCallData(ctx context.Context, params *PreparedParams, bountyBytecode []byte) ([]byte, error) {
	return c.Encoder.EncodeIntraOrderbookCall(
		ctx,
		c.Pair.Orderbook,
		c.Pair.TakeOrder,
		c.CounterpartyTakeOrder,
		c.BountyVaultIDs,
		bountyBytecode,
	)
}

func (c *IntraOrderbookCapability) EstimateProfit(params *PreparedParams) *big.Int {
	return profit.EstimateIntraOrderbook(
		c.Pair.TakeOrder.Quote,
		c.CounterpartyTakeOrder.Quote,
		c.InputEthPrice18,
		c.OutputEthPrice18,
	)
}
