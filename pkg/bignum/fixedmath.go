// Package bignum implements fixed-point arithmetic on unsigned 256-bit
// integers. All prices and amounts inside the solver are carried in
// 18-decimal fixed point ("ONE18 = 10^18"); this package is the only place
// that scales between a token's native decimals and that common basis.
package bignum

import (
	"math/big"

	"github.com/holiman/uint256"
)

// ONE18 is the fixed-point unit: 10^18.
var ONE18 = uint256.NewInt(1_000_000_000_000_000_000)

// MaxU256 returns a fresh all-ones uint256 (the saturation value used by
// CalculatePrice18's division-by-zero rule).
func MaxU256() *uint256.Int {
	return new(uint256.Int).Not(uint256.NewInt(0))
}

func pow10(n uint8) *uint256.Int {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		result = new(uint256.Int).Mul(result, ten)
	}
	return result
}

// ScaleTo18 rescales value from its native decimals into 18-decimal fixed
// point. Values with more than 18 decimals are truncated (integer division),
// which is the source of the round-trip's lossiness documented on
// ScaleFrom18.
func ScaleTo18(value *uint256.Int, decimals uint8) *uint256.Int {
	if decimals > 18 {
		return new(uint256.Int).Div(value, pow10(decimals-18))
	}
	return new(uint256.Int).Mul(value, pow10(18-decimals))
}

// ScaleFrom18 is the inverse of ScaleTo18. When target has more than 18
// decimals the result is exact; when target has fewer than 18 decimals the
// conversion truncates, so ScaleFrom18(ScaleTo18(v, d), d) == v only holds
// for d <= 18 or when v is already a multiple of 10^(d-18).
func ScaleFrom18(value *uint256.Int, target uint8) *uint256.Int {
	if target > 18 {
		return new(uint256.Int).Mul(value, pow10(target-18))
	}
	return new(uint256.Int).Div(value, pow10(18-target))
}

// CalculatePrice18 returns the 18-decimal fixed-point price of amountOut per
// amountIn, i.e. (scaleTo18(amountOut) * ONE18) / scaleTo18(amountIn). A zero
// amountIn saturates to MaxU256 rather than dividing by zero.
func CalculatePrice18(amountIn, amountOut *uint256.Int, decIn, decOut uint8) *uint256.Int {
	if amountIn.IsZero() {
		return MaxU256()
	}
	scaledOut := ScaleTo18(amountOut, decOut)
	scaledIn := ScaleTo18(amountIn, decIn)
	num := new(uint256.Int).Mul(scaledOut, ONE18)
	return new(uint256.Int).Div(num, scaledIn)
}

// MulDiv18 computes (a * b) / ONE18 — the standard 18-decimal fixed-point
// multiplication used throughout the profit estimator.
func MulDiv18(a, b *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(a, b)
	return new(uint256.Int).Div(num, ONE18)
}

// InvertRatio18 returns ONE18^2 / ratio, the "opposing max IO ratio" used by
// the inter-orderbook estimator. Callers must guard the ratio == 0 case
// themselves (it means "unbounded", not "divide by zero").
func InvertRatio18(ratio *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(ONE18, ONE18)
	return new(uint256.Int).Div(num, ratio)
}

// MulDivSmall computes (a * num) / den for small uint64 scale factors — the
// percent-of-gas-cost arithmetic the TradeSimulator uses to derive
// minimumExpected from a dryrun's estimatedGasCost.
func MulDivSmall(a *uint256.Int, num, den uint64) *uint256.Int {
	product := new(uint256.Int).Mul(a, uint256.NewInt(num))
	return new(uint256.Int).Div(product, uint256.NewInt(den))
}

// RoundHeadroomPercent applies the TradeSimulator's gas-coverage headroom
// rule — banker's rounding of percentage * 1.01 — without floating
// point. percentage * 1.01 == (percentage * 101) / 100 exactly; the division
// is rounded half-to-even so that x.5 rounds toward the nearest even integer
// instead of always up, matching the reference implementation's
// Number.toFixed() behavior.
func RoundHeadroomPercent(percentage uint64) uint64 {
	scaled := new(big.Int).Mul(big.NewInt(int64(percentage)), big.NewInt(101))
	hundred := big.NewInt(100)

	quotient, remainder := new(big.Int).QuoRem(scaled, hundred, new(big.Int))
	twiceRemainder := new(big.Int).Mul(remainder, big.NewInt(2))

	switch twiceRemainder.Cmp(hundred) {
	case 1: // remainder > half: round up
		quotient.Add(quotient, big.NewInt(1))
	case 0: // exactly half: round to even
		if quotient.Bit(0) == 1 {
			quotient.Add(quotient, big.NewInt(1))
		}
	}
	return quotient.Uint64()
}
