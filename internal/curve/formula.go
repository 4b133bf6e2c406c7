// internal/curve/formula.go
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidCurveState is returned when a formula is asked to price
	// against degenerate aggregate state: zero supply or reserve where a
	// positive value is required, or a computed return that truncates to
	// zero for a positive input.
	ErrInvalidCurveState = errors.New("invalid curve state")

	// ErrInvalidAmount is returned when a computed return does not fit in
	// 256 bits.
	ErrInvalidAmount = errors.New("invalid amount")
)

// PPM is the parts-per-million denominator used for connector weights and
// purchase spreads.
const PPM = 1_000_000

// Formula prices a single buy or sell against the current aggregate state.
// Implementations are pure and stateless: the same inputs always produce the
// same output, and nothing is mutated.
//
// callerBalance is the caller's token balance before the transaction's own
// mutation is applied. The Bancor variant ignores it; the exponential family
// prices against the caller's fractional share of supply.
type Formula interface {
	// Kind identifies the variant for audit events.
	Kind() string

	// PurchaseReturn computes the tokens minted for depositAmount of
	// currency. A zero deposit returns zero with no error.
	PurchaseReturn(supply, callerBalance, reserve, deposit *uint256.Int) (*uint256.Int, error)

	// SaleReturn computes the currency released for burning tokens. A zero
	// token amount returns zero with no error.
	SaleReturn(supply, callerBalance, reserve, tokens *uint256.Int) (*uint256.Int, error)
}

// New builds a formula from its configured kind. Recognized kinds:
// "bancor", "exponential-growth", "exponential-deflation",
// "growing-inflation".
func New(kind string, weightPPM, spreadPPM uint32, genesisSupply *uint256.Int) (Formula, error) {
	switch kind {
	case KindBancor:
		return NewBancor(weightPPM)
	case KindExponentialGrowth:
		return NewExponentialGrowth(spreadPPM)
	case KindExponentialDeflation:
		return NewExponentialDeflation(spreadPPM)
	case KindGrowingInflation:
		return NewGrowingInflation(spreadPPM, genesisSupply)
	default:
		return nil, fmt.Errorf("unknown formula kind %q", kind)
	}
}

// toUint256 converts a kernel result back to the ledger type, rejecting
// anything that does not fit.
func toUint256(v *big.Int) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return out, nil
}
