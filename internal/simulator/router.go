package simulator

import (
	"context"
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"rainsolver/internal/contracts"
	"rainsolver/internal/external"
	"rainsolver/internal/profit"
	"rainsolver/pkg/types"
)

var errUndefinedDestination = errors.New("no destination contract configured for this trade type")

// RouterCapability settles a Pair against an external AMM aggregator route.
// Its profit estimator is a pass-through of the externally supplied quote.
type RouterCapability struct {
	Pair     *types.Pair
	Quote    external.RouterQuote
	Registry *contracts.Registry
	Encoder  external.Encoder
}

func (c *RouterCapability) PrepareTradeParams(ctx context.Context) (*PreparedParams, *FailedSimulation) {
	addrs := c.Registry.GetAddressesForTrade(c.Pair, types.TradeRouter)
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
		TradeType:   types.TradeRouter,
		SpanAttrs: map[string]any{
			"tradeType": string(types.TradeRouter),
			"pairId":    c.Pair.ID,
			"legs":      len(c.Quote.Legs),
		},
	}, nil
}

func (c *RouterCapability) BountyTaskSpec(minimumExpected *uint256.Int) external.BountyTaskSpec {
	return external.BountyTaskSpec{
		Kind:            external.BountyTaskExternal,
		MinimumExpected: minimumExpected,
		Orderbook:       c.Pair.Orderbook,
	}
}

func (c *RouterCapability) AssembleCallData(ctx context.Context, params *PreparedParams, bountyBytecode []byte) ([]byte, error) {
	return c.Encoder.EncodeRouterCall(ctx, c.Quote, bountyBytecode)
}

func (c *RouterCapability) EstimateProfit(params *PreparedParams) *big.Int {
	return profit.EstimateRouter(c.Quote.Profit)
}
