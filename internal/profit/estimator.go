// Package profit implements the inter- and intra-orderbook profit
// estimators. All intermediate fixed-point math runs on unsigned 256-bit
// integers; only the final signed subtractions (where a leg's cost can
// exceed its gross) are carried out on math/big so a momentarily
// unprofitable crossing never wraps instead of going negative.
package profit

import (
	"math/big"

	"github.com/holiman/uint256"

	"rainsolver/pkg/bignum"
	"rainsolver/pkg/types"
)

// CounterpartyQuote is the opposing side's standing offer used by the
// inter-orderbook estimator.
type CounterpartyQuote struct {
	Ratio     *uint256.Int
	MaxOutput *uint256.Int
}

// EstimateInterOrderbook computes the signed total profit for taking
// maxInputFixed of the order's output token against a counterparty order,
// per §4.2's inter-orderbook formula.
func EstimateInterOrderbook(
	orderRatio *uint256.Int,
	maxInputFixed *uint256.Int,
	counterparty CounterpartyQuote,
	inputEthPrice18, outputEthPrice18 *uint256.Int,
) *big.Int {
	orderOutput := maxInputFixed
	orderInput := bignum.MulDiv18(maxInputFixed, orderRatio)

	var opposingMaxInput, opposingMaxIORatio *uint256.Int
	if orderRatio.IsZero() {
		opposingMaxInput = bignum.MaxU256()
		opposingMaxIORatio = bignum.MaxU256()
	} else {
		opposingMaxInput = bignum.MulDiv18(maxInputFixed, orderRatio)
		opposingMaxIORatio = bignum.InvertRatio18(orderRatio)
	}

	var counterpartyOutput, counterpartyInput *uint256.Int
	if opposingMaxIORatio.Cmp(counterparty.Ratio) >= 0 {
		takeAmount := opposingMaxInput
		if counterparty.MaxOutput.Lt(takeAmount) {
			takeAmount = counterparty.MaxOutput
		}
		counterpartyOutput = takeAmount
		counterpartyInput = bignum.MulDiv18(takeAmount, counterparty.Ratio)
	} else {
		counterpartyOutput = uint256.NewInt(0)
		counterpartyInput = uint256.NewInt(0)
	}

	outputDelta := new(big.Int).Sub(orderOutput.ToBig(), counterpartyInput.ToBig())
	outputProfit := scaleBigByPrice18(outputDelta, outputEthPrice18)

	inputDelta := new(big.Int).Sub(counterpartyOutput.ToBig(), orderInput.ToBig())
	inputProfit := scaleBigByPrice18(inputDelta, inputEthPrice18)

	return new(big.Int).Add(outputProfit, inputProfit)
}

// EstimateIntraOrderbook computes the signed total profit for directly
// crossing two orders in the same orderbook, per §4.2's intra-orderbook
// rule: each side's realized output is capped by the other side's
// ratio-scaled capacity, and profit is the sum of the two non-negative
// surpluses after each side pays its own ratio-implied cost.
func EstimateIntraOrderbook(
	a, b types.Quote,
	inputEthPrice18, outputEthPrice18 *uint256.Int,
) *big.Int {
	realizedA := realizedOutput(a.MaxOutput, b.Ratio, b.MaxOutput)
	realizedB := realizedOutput(b.MaxOutput, a.Ratio, a.MaxOutput)

	costA := bignum.MulDiv18(realizedA, a.Ratio)
	costB := bignum.MulDiv18(realizedB, b.Ratio)

	outputDelta := clampNonNegative(new(big.Int).Sub(realizedA.ToBig(), costB.ToBig()))
	outputProfit := scaleBigByPrice18(outputDelta, outputEthPrice18)

	inputDelta := clampNonNegative(new(big.Int).Sub(realizedB.ToBig(), costA.ToBig()))
	inputProfit := scaleBigByPrice18(inputDelta, inputEthPrice18)

	return new(big.Int).Add(outputProfit, inputProfit)
}

// EstimateRouter passes through the externally supplied quote profit
// unchanged; the router mode's estimator is defined entirely by its quote.
func EstimateRouter(quoteProfit *uint256.Int) *big.Int {
	return quoteProfit.ToBig()
}

// realizedOutput is one side's capacity in the intra-orderbook crossing: its
// own maxOutput, capped by the counterparty's ratio-scaled capacity unless
// the counterparty accepts any price (ratio == 0).
func realizedOutput(ownMaxOutput, otherRatio, otherMaxOutput *uint256.Int) *uint256.Int {
	if otherRatio.IsZero() {
		return ownMaxOutput
	}
	otherCapacity := bignum.MulDiv18(otherMaxOutput, otherRatio)
	if otherCapacity.Lt(ownMaxOutput) {
		return otherCapacity
	}
	return ownMaxOutput
}

func scaleBigByPrice18(delta *big.Int, price18 *uint256.Int) *big.Int {
	num := new(big.Int).Mul(delta, price18.ToBig())
	// Quo truncates toward zero, matching signed-integer division semantics
	// (Div would floor toward -inf for a negative numerator).
	return new(big.Int).Quo(num, bignum.ONE18.ToBig())
}

func clampNonNegative(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return big.NewInt(0)
	}
	return v
}
