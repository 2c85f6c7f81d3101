package simulator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rainsolver/internal/contracts"
	"rainsolver/internal/external"
	"rainsolver/internal/profit"
	"rainsolver/pkg/types"
)

// InterOrderbookCapability settles a Pair against a single opposing order
// held in a different orderbook. The outer transaction is a takeOrders call
// on the pair's own orderbook whose data embeds an inner takeOrders call on
// the counterparty's orderbook (per §4.4's nested-call description);
// building that nested byte string is delegated to Encoder.
type InterOrderbookCapability struct {
	Pair                   *types.Pair
	CounterpartyOrderbook  common.Address
	CounterpartyTakeOrder  types.TakeOrder
	CounterpartyRatio      *uint256.Int
	CounterpartyMaxOutput  *uint256.Int
	InputEthPrice18        *uint256.Int
	OutputEthPrice18       *uint256.Int
	Registry               *contracts.Registry
	Encoder                external.Encoder
}

func (c *InterOrderbookCapability) PrepareTradeParams(ctx context.Context) (*PreparedParams, *FailedSimulation) {
	addrs := c.Registry.GetAddressesForTrade(c.Pair, types.TradeInterOrderbook)
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
		TradeType:   types.TradeInterOrderbook,
		SpanAttrs: map[string]any{
			"tradeType":             string(types.TradeInterOrderbook),
			"pairId":                c.Pair.ID,
			"counterpartyOrderbook": c.CounterpartyOrderbook.Hex(),
		},
	}, nil
}

func (c *InterOrderbookCapability) BountyTaskSpec(minimumExpected *uint256.Int) external.BountyTaskSpec {
	return external.BountyTaskSpec{
		Kind:            external.BountyTaskInternal,
		MinimumExpected: minimumExpected,
		Orderbook:       c.Pair.Orderbook,
	}
}

func (c *InterOrderbookCapability) AssembleCallData(ctx context.Context, params *PreparedParams, bountyBytecode []byte) ([]byte, error) {
	return c.Encoder.EncodeInterOrderbookCall(
		ctx,
		c.Pair.Orderbook,
		c.CounterpartyOrderbook,
		c.Pair.TakeOrder,
		[]types.TakeOrder{c.CounterpartyTakeOrder},
		bountyBytecode,
	)
}

func (c *InterOrderbookCapability) EstimateProfit(params *PreparedParams) *big.Int {
	return profit.EstimateInterOrderbook(
		c.Pair.TakeOrder.Quote.Ratio,
		c.Pair.TakeOrder.Quote.MaxOutput,
		profit.CounterpartyQuote{Ratio: c.CounterpartyRatio, MaxOutput: c.CounterpartyMaxOutput},
		c.InputEthPrice18,
		c.OutputEthPrice18,
	)
}
