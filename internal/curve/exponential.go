// internal/curve/exponential.go
package curve

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	KindExponentialGrowth    = "exponential-growth"
	KindExponentialDeflation = "exponential-deflation"
	KindGrowingInflation     = "growing-inflation"
)

// The exponential family prices around the pro-rata exchange rate (S/R for
// purchases, R/S for sales) scaled by a multiplier in (0, 1]. The multiplier
// is a function of the caller's fractional share of supply s = B/S, taken
// before the transaction mutates anything, so two donors depositing the same
// amount at the same aggregate state can receive different token amounts.
//
// Every multiplier is capped at 1, which is what guarantees the round-trip
// bound: a buy immediately unwound by a sell can never net out above the
// original deposit. With a nonzero purchase spread the bound is strict, and
// every purchase raises the reserve-per-token backing of existing holders.

// expShared carries the spread and the common helpers.
type expShared struct {
	spreadPPM uint32
}

func validateSpread(spreadPPM uint32) error {
	if spreadPPM >= PPM {
		return fmt.Errorf("purchase spread %d ppm must be below %d: %w", spreadPPM, PPM, ErrInvalidCurveState)
	}
	return nil
}

// share returns the caller's fraction of supply in Q128. supply must be
// nonzero.
func share(supply, callerBalance *uint256.Int) *big.Int {
	s := new(big.Int).Lsh(callerBalance.ToBig(), qBits)
	return s.Div(s, supply.ToBig())
}

func checkState(op string, supply, reserve *uint256.Int) error {
	if supply.IsZero() || reserve.IsZero() {
		return fmt.Errorf("%s with supply=%s reserve=%s: %w", op, supply, reserve, ErrInvalidCurveState)
	}
	return nil
}

func finishPurchase(deposit *uint256.Int, out *big.Int) (*uint256.Int, error) {
	if out.Sign() == 0 {
		return nil, fmt.Errorf("purchase of %s truncates to zero: %w", deposit, ErrInvalidCurveState)
	}
	return toUint256(out)
}

// capReserve clamps a computed sale return at the full reserve. The
// multipliers make this unreachable for token amounts within the caller's
// balance, but the formula itself stays defensive.
func capReserve(out *big.Int, reserve *uint256.Int) (*uint256.Int, error) {
	if out.Cmp(reserve.ToBig()) > 0 {
		return reserve.Clone(), nil
	}
	return toUint256(out)
}

// ExponentialDeflation discounts both entry and exit by e^-s: the larger the
// caller's existing share, the steeper their marginal price. Used to blunt
// whale accumulation.
type ExponentialDeflation struct {
	expShared
}

func NewExponentialDeflation(spreadPPM uint32) (*ExponentialDeflation, error) {
	if err := validateSpread(spreadPPM); err != nil {
		return nil, err
	}
	return &ExponentialDeflation{expShared{spreadPPM: spreadPPM}}, nil
}

func (f *ExponentialDeflation) Kind() string { return KindExponentialDeflation }

// PurchaseReturn: D * (S/R) * (1-spread) * e^-s.
func (f *ExponentialDeflation) PurchaseReturn(supply, callerBalance, reserve, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("exponential-deflation purchase", supply, reserve); err != nil {
		return nil, err
	}
	es := fixedExp(share(supply, callerBalance))

	out := new(big.Int).Mul(deposit.ToBig(), supply.ToBig())
	out.Mul(out, big.NewInt(int64(PPM-f.spreadPPM)))
	out.Lsh(out, qBits)
	out.Div(out, new(big.Int).Mul(reserve.ToBig(), es))
	out.Div(out, big.NewInt(PPM))
	return finishPurchase(deposit, out)
}

// SaleReturn: T * (R/S) * e^-s.
func (f *ExponentialDeflation) SaleReturn(supply, callerBalance, reserve, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("exponential-deflation sale", supply, reserve); err != nil {
		return nil, err
	}
	es := fixedExp(share(supply, callerBalance))

	out := new(big.Int).Mul(tokens.ToBig(), reserve.ToBig())
	out.Lsh(out, qBits)
	out.Div(out, new(big.Int).Mul(supply.ToBig(), es))
	return capReserve(out, reserve)
}

// ExponentialGrowth rewards committed holders: the purchase multiplier
// e^(s-1) grows with the caller's share, approaching pro-rata for a caller
// holding the entire supply. Exit is discounted by e^-(1-s) symmetrically.
type ExponentialGrowth struct {
	expShared
}

func NewExponentialGrowth(spreadPPM uint32) (*ExponentialGrowth, error) {
	if err := validateSpread(spreadPPM); err != nil {
		return nil, err
	}
	return &ExponentialGrowth{expShared{spreadPPM: spreadPPM}}, nil
}

func (f *ExponentialGrowth) Kind() string { return KindExponentialGrowth }

// PurchaseReturn: D * (S/R) * (1-spread) * e^(s-1).
func (f *ExponentialGrowth) PurchaseReturn(supply, callerBalance, reserve, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("exponential-growth purchase", supply, reserve); err != nil {
		return nil, err
	}
	es := fixedExp(share(supply, callerBalance))

	out := new(big.Int).Mul(deposit.ToBig(), supply.ToBig())
	out.Mul(out, big.NewInt(int64(PPM-f.spreadPPM)))
	out.Mul(out, es)
	out.Div(out, new(big.Int).Mul(reserve.ToBig(), eQ))
	out.Div(out, big.NewInt(PPM))
	return finishPurchase(deposit, out)
}

// SaleReturn: T * (R/S) * e^(s-1).
func (f *ExponentialGrowth) SaleReturn(supply, callerBalance, reserve, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("exponential-growth sale", supply, reserve); err != nil {
		return nil, err
	}
	es := fixedExp(share(supply, callerBalance))

	out := new(big.Int).Mul(tokens.ToBig(), reserve.ToBig())
	out.Mul(out, es)
	out.Div(out, new(big.Int).Mul(supply.ToBig(), eQ))
	return capReserve(out, reserve)
}

// GrowingInflation mints progressively less per currency unit as supply
// inflates past its genesis value: the purchase multiplier is
// min(S0/S, 1). Exit is pro-rata and caller-insensitive.
type GrowingInflation struct {
	expShared
	genesisSupply *uint256.Int
}

func NewGrowingInflation(spreadPPM uint32, genesisSupply *uint256.Int) (*GrowingInflation, error) {
	if err := validateSpread(spreadPPM); err != nil {
		return nil, err
	}
	if genesisSupply == nil || genesisSupply.IsZero() {
		return nil, fmt.Errorf("growing-inflation requires a nonzero genesis supply: %w", ErrInvalidCurveState)
	}
	return &GrowingInflation{expShared{spreadPPM: spreadPPM}, genesisSupply.Clone()}, nil
}

func (f *GrowingInflation) Kind() string { return KindGrowingInflation }

// PurchaseReturn: D * (S/R) * (1-spread) * min(S0/S, 1).
func (f *GrowingInflation) PurchaseReturn(supply, callerBalance, reserve, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("growing-inflation purchase", supply, reserve); err != nil {
		return nil, err
	}

	effective := f.genesisSupply
	if supply.Lt(f.genesisSupply) {
		effective = supply
	}
	out := new(big.Int).Mul(deposit.ToBig(), effective.ToBig())
	out.Mul(out, big.NewInt(int64(PPM-f.spreadPPM)))
	out.Div(out, reserve.ToBig())
	out.Div(out, big.NewInt(PPM))
	return finishPurchase(deposit, out)
}

// SaleReturn: T * R / S.
func (f *GrowingInflation) SaleReturn(supply, callerBalance, reserve, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := checkState("growing-inflation sale", supply, reserve); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(tokens.ToBig(), reserve.ToBig())
	out.Div(out, supply.ToBig())
	return capReserve(out, reserve)
}
