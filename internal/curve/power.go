// internal/curve/power.go
package curve

import (
	"math/big"
)

// The pricing kernel works in unsigned Q128 fixed point: a ratio r is
// represented as floor(r * 2^128). Intermediate products exceed 256 bits, so
// the kernel runs on math/big; callers convert from uint256 at the boundary.
//
// Both fixedLog and fixedExp truncate toward zero at every step, so the
// composed power (b^w = exp(w*ln(b))) never over-approximates. The relative
// error of the composition is below 2^-64 across the supported domain, which
// is far inside the one-atomic-unit rounding budget of any vault operation.

const qBits = 128

var (
	qOne = new(big.Int).Lsh(big.NewInt(1), qBits)
	qTwo = new(big.Int).Lsh(big.NewInt(2), qBits)

	// ln(2) and e scaled by 2^128.
	ln2Q, _ = new(big.Int).SetString("235865763225513294137944142764154484399", 10)
	eQ, _   = new(big.Int).SetString("924983374546220337150911035843336795079", 10)

	// Largest exponent the kernel accepts, 192 in Q128. e^192 needs ~405
	// bits, comfortably representable, and any curve state mapping beyond it
	// is degenerate (a deposit ~e^480 times the reserve at the lowest
	// weight).
	maxExpInput = new(big.Int).Lsh(big.NewInt(192), qBits)
)

// fixedLog returns ln(x/2^128) in Q128. x must be >= 2^128; the pricing
// formulas only take logarithms of ratios >= 1.
func fixedLog(x *big.Int) *big.Int {
	x = new(big.Int).Set(x)
	res := new(big.Int)

	// Integer part: halve x until it drops below 2, adding ln(2) each time.
	for x.Cmp(qTwo) >= 0 {
		res.Add(res, ln2Q)
		x.Rsh(x, 1)
	}

	// Fractional part: repeated squaring extracts one bit of the mantissa
	// per round.
	for i := uint(1); i <= qBits; i++ {
		if x.Cmp(qOne) == 0 {
			break
		}
		x.Mul(x, x)
		x.Rsh(x, qBits)
		if x.Cmp(qTwo) >= 0 {
			res.Add(res, new(big.Int).Rsh(ln2Q, i))
			x.Rsh(x, 1)
		}
	}
	return res
}

// fixedExp returns e^(x/2^128) in Q128 via the Maclaurin series. Terms are
// accumulated until they truncate to zero, so the result under-approximates
// by strictly less than one Q128 unit of the final term.
func fixedExp(x *big.Int) *big.Int {
	res := new(big.Int).Set(qOne)
	term := new(big.Int).Set(qOne)
	for n := int64(1); ; n++ {
		term.Mul(term, x)
		term.Rsh(term, qBits)
		term.Div(term, big.NewInt(n))
		if term.Sign() == 0 {
			break
		}
		res.Add(res, term)
	}
	return res
}

// fixedPow returns (baseN/baseD)^(expN/expD) in Q128, truncated. Requires
// baseN >= baseD > 0 and expD > 0. Returns ErrInvalidCurveState when the
// scaled exponent leaves the supported domain.
func fixedPow(baseN, baseD *big.Int, expN, expD int64) (*big.Int, error) {
	base := new(big.Int).Lsh(baseN, qBits)
	base.Div(base, baseD)

	x := fixedLog(base)
	x.Mul(x, big.NewInt(expN))
	x.Div(x, big.NewInt(expD))

	if x.Cmp(maxExpInput) > 0 {
		return nil, ErrInvalidCurveState
	}
	return fixedExp(x), nil
}
