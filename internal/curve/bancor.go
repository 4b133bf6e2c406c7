// internal/curve/bancor.go
package curve

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const KindBancor = "bancor"

// Bancor is the reserve-ratio formula. With connector weight w in (0,1]:
//
//	purchase: S * ((1 + D/R)^w - 1)
//	sale:     R * (1 - (1 - T/S)^(1/w))
//
// Pricing depends only on the aggregate (supply, reserve); the caller's own
// balance does not enter. Both directions truncate downward, so a buy
// followed by an immediate sell of the minted tokens never returns more
// currency than was deposited.
type Bancor struct {
	weightPPM uint32
}

// NewBancor validates the connector weight, given in parts per million of
// the maximum. 1000000 means a fully connected (pro-rata) curve.
func NewBancor(weightPPM uint32) (*Bancor, error) {
	if weightPPM == 0 || weightPPM > PPM {
		return nil, fmt.Errorf("connector weight %d ppm outside (0, %d]: %w", weightPPM, PPM, ErrInvalidCurveState)
	}
	return &Bancor{weightPPM: weightPPM}, nil
}

func (b *Bancor) Kind() string { return KindBancor }

// WeightPPM reports the configured connector weight.
func (b *Bancor) WeightPPM() uint32 { return b.weightPPM }

func (b *Bancor) PurchaseReturn(supply, callerBalance, reserve, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit.IsZero() {
		return uint256.NewInt(0), nil
	}
	if supply.IsZero() || reserve.IsZero() {
		return nil, fmt.Errorf("bancor purchase with supply=%s reserve=%s: %w", supply, reserve, ErrInvalidCurveState)
	}

	s := supply.ToBig()
	r := reserve.ToBig()
	d := deposit.ToBig()

	var out *big.Int
	if b.weightPPM == PPM {
		// Fully connected: straight pro-rata mint.
		out = new(big.Int).Mul(s, d)
		out.Div(out, r)
	} else {
		pow, err := fixedPow(new(big.Int).Add(r, d), r, int64(b.weightPPM), PPM)
		if err != nil {
			return nil, fmt.Errorf("bancor purchase: %w", err)
		}
		pow.Sub(pow, qOne)
		out = pow.Mul(s, pow)
		out.Rsh(out, qBits)
	}

	if out.Sign() == 0 {
		return nil, fmt.Errorf("bancor purchase of %s truncates to zero: %w", deposit, ErrInvalidCurveState)
	}
	return toUint256(out)
}

func (b *Bancor) SaleReturn(supply, callerBalance, reserve, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens.IsZero() {
		return uint256.NewInt(0), nil
	}
	if supply.IsZero() || reserve.IsZero() {
		return nil, fmt.Errorf("bancor sale with supply=%s reserve=%s: %w", supply, reserve, ErrInvalidCurveState)
	}
	if tokens.Gt(supply) {
		return nil, fmt.Errorf("bancor sale of %s exceeds supply %s: %w", tokens, supply, ErrInvalidCurveState)
	}
	if tokens.Eq(supply) {
		// Liquidating the whole supply drains the whole reserve.
		return reserve.Clone(), nil
	}

	s := supply.ToBig()
	r := reserve.ToBig()
	t := tokens.ToBig()

	var out *big.Int
	if b.weightPPM == PPM {
		out = new(big.Int).Mul(r, t)
		out.Div(out, s)
	} else {
		// R * (1 - (1-T/S)^(1/w)) computed as R * (p - 1) / p with
		// p = (S/(S-T))^(1/w), which rounds down and can never exceed R.
		pow, err := fixedPow(s, new(big.Int).Sub(s, t), PPM, int64(b.weightPPM))
		if err != nil {
			return nil, fmt.Errorf("bancor sale: %w", err)
		}
		out = new(big.Int).Sub(pow, qOne)
		out.Mul(out, r)
		out.Div(out, pow)
	}
	return toUint256(out)
}
