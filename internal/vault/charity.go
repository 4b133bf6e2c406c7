// internal/vault/charity.go
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/convert"
	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/types"
)

// ErrInsufficientFunds is returned when a disbursement exceeds the charity
// vault's stable balance.
var ErrInsufficientFunds = errors.New("insufficient charity funds")

// Authorizer answers whether an address may disburse charity funds. The
// owning community implements it with its signer set.
type Authorizer interface {
	IsSigner(addr types.Address) bool
}

// CharityVault accounts the charity-designated share of every donation in
// the stable unit. Per-donor totals and the global sum only ever grow; the
// held balance shrinks only through authorized disbursement.
type CharityVault struct {
	mu        sync.RWMutex
	community string
	logger    *zap.Logger
	bus       *events.Bus
	auth      Authorizer
	deposits  map[types.Address]*uint256.Int
	globalSum *uint256.Int
	balance   *uint256.Int
}

func NewCharity(logger *zap.Logger, bus *events.Bus, community string, auth Authorizer) *CharityVault {
	return &CharityVault{
		community: community,
		logger:    logger.Named("charity_vault"),
		bus:       bus,
		auth:      auth,
		deposits:  make(map[types.Address]*uint256.Int),
		globalSum: uint256.NewInt(0),
		balance:   uint256.NewInt(0),
	}
}

// Deposit is the standalone entry point for funding one vault directly:
// it converts rawAmount and credits the result in a single call, mutating
// only when conversion and the credit check both pass. The community
// orchestrator does not use it; a donation converts once for the whole
// split and calls Credit after the curve purchase commits.
func (v *CharityVault) Deposit(ctx context.Context, donor types.Address, rawAmount *uint256.Int, conv convert.Converter, kind types.AssetKind) (*uint256.Int, error) {
	if rawAmount.IsZero() {
		return uint256.NewInt(0), nil
	}
	stable, err := conv.ConvertToStable(ctx, rawAmount, kind)
	if err != nil {
		return nil, fmt.Errorf("charity deposit for %q: %w", donor, err)
	}
	if err := v.AcceptsCredit(stable); err != nil {
		return nil, fmt.Errorf("charity deposit for %q: %w", donor, err)
	}
	v.Credit(ctx, donor, stable)
	return stable, nil
}

// AcceptsCredit reports whether crediting stable would overflow the
// lifetime sum. Per-donor totals and the held balance never exceed the
// lifetime sum, so this one check covers every counter Credit touches.
func (v *CharityVault) AcceptsCredit(stable *uint256.Int) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, overflow := new(uint256.Int).AddOverflow(v.globalSum, stable); overflow {
		return fmt.Errorf("credit of %s overflows lifetime sum %s: %w", stable.Dec(), v.globalSum.Dec(), curve.ErrInvalidAmount)
	}
	return nil
}

// Credit records an already-converted stable amount for donor. Infallible
// by contract: callers verify AcceptsCredit first, after every other
// fallible step of the donation has succeeded.
func (v *CharityVault) Credit(ctx context.Context, donor types.Address, stable *uint256.Int) {
	if stable.IsZero() {
		return
	}
	v.mu.Lock()
	if existing, ok := v.deposits[donor]; ok {
		existing.Add(existing, stable)
	} else {
		v.deposits[donor] = stable.Clone()
	}
	v.globalSum.Add(v.globalSum, stable)
	v.balance.Add(v.balance, stable)
	sum := v.globalSum.Clone()
	v.mu.Unlock()

	v.logger.Info("Charity deposit",
		zap.String("community", v.community),
		zap.String("donor", string(donor)),
		zap.String("stable_amount", stable.Dec()),
		zap.String("global_sum", sum.Dec()))
	v.bus.Publish(ctx, events.CharityDeposit{
		BaseEvent:    events.NewBase(events.TypeCharityDeposit, v.community),
		Donor:        donor,
		StableAmount: stable.Clone(),
		GlobalSum:    sum,
	})
}

// PassToCharity transfers amount of stable funds to an intermediary.
// Signer-gated. metadataRef is an opaque content-addressed pointer carried
// into the audit event, never interpreted here.
func (v *CharityVault) PassToCharity(ctx context.Context, caller types.Address, amount *uint256.Int, intermediary types.Address, metadataRef string) error {
	if !v.auth.IsSigner(caller) {
		return fmt.Errorf("pass to charity by %q: %w", caller, ErrNotAuthorized)
	}
	if intermediary == types.ZeroAddress {
		return errors.New("charity intermediary required")
	}

	v.mu.Lock()
	if amount.Gt(v.balance) {
		held := v.balance.Clone()
		v.mu.Unlock()
		return fmt.Errorf("disburse %s of %s held: %w", amount, held, ErrInsufficientFunds)
	}
	v.balance.Sub(v.balance, amount)
	v.mu.Unlock()

	v.logger.Info("Passed to charity",
		zap.String("community", v.community),
		zap.String("actor", string(caller)),
		zap.String("intermediary", string(intermediary)),
		zap.String("amount", amount.Dec()),
		zap.String("metadata_ref", metadataRef))
	v.bus.Publish(ctx, events.PassedToCharity{
		BaseEvent:    events.NewBase(events.TypePassedToCharity, v.community),
		Actor:        caller,
		Intermediary: intermediary,
		Amount:       amount.Clone(),
		MetadataRef:  metadataRef,
	})
	return nil
}

// DepositsOf returns donor's cumulative stable-unit contribution.
func (v *CharityVault) DepositsOf(donor types.Address) *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if d, ok := v.deposits[donor]; ok {
		return d.Clone()
	}
	return uint256.NewInt(0)
}

// SumStats returns the all-time global intake across donors.
func (v *CharityVault) SumStats() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.globalSum.Clone()
}

// StableBalance returns the stable funds currently held for disbursement.
func (v *CharityVault) StableBalance() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance.Clone()
}
