// internal/community/governance.go
package community

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/types"
	"github.com/givecurve/givecurve/internal/vault"
)

// IsSigner reports whether addr currently holds governance authority.
func (c *Community) IsSigner(addr types.Address) bool {
	c.signersMu.RLock()
	defer c.signersMu.RUnlock()
	return c.signers[addr]
}

// Signers returns the current signer set.
func (c *Community) Signers() []types.Address {
	c.signersMu.RLock()
	defer c.signersMu.RUnlock()
	out := make([]types.Address, 0, len(c.signers))
	for s := range c.signers {
		out = append(out, s)
	}
	return out
}

// AddSigner grants governance authority. Signer-gated. The new signer also
// becomes a bonding-vault admin so formula and sweep passthroughs carry
// the real actor. The serialization lock is held across both grants, so a
// signer observed by any serialized operation always has vault authority.
func (c *Community) AddSigner(ctx context.Context, caller, signer types.Address) error {
	if signer == types.ZeroAddress {
		return fmt.Errorf("add signer: zero address")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signersMu.Lock()
	if !c.signers[caller] {
		c.signersMu.Unlock()
		return fmt.Errorf("add signer by %q: %w", caller, ErrNotAuthorized)
	}
	c.signers[signer] = true
	c.signersMu.Unlock()

	if err := c.bonding.AddAdmin(caller, signer); err != nil {
		return fmt.Errorf("add signer %q to vault: %w", signer, err)
	}

	c.logger.Info("Signer added",
		zap.String("actor", string(caller)),
		zap.String("signer", string(signer)))
	c.bus.Publish(ctx, events.SignerAdded{
		BaseEvent: events.NewBase(events.TypeSignerAdded, c.name),
		Actor:     caller,
		Signer:    signer,
	})
	return nil
}

// RemoveSigner revokes governance authority. Signer-gated. Authority is
// lost immediately; the last remaining signer can never be removed.
func (c *Community) RemoveSigner(ctx context.Context, caller, signer types.Address) error {
	return c.removeSigner(ctx, caller, signer, false)
}

// RenounceSigner lets a signer drop its own authority.
func (c *Community) RenounceSigner(ctx context.Context, caller types.Address) error {
	return c.removeSigner(ctx, caller, caller, true)
}

func (c *Community) removeSigner(ctx context.Context, caller, signer types.Address, renounce bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signersMu.Lock()
	if !c.signers[caller] {
		c.signersMu.Unlock()
		return fmt.Errorf("remove signer by %q: %w", caller, ErrNotAuthorized)
	}
	if !c.signers[signer] {
		c.signersMu.Unlock()
		return fmt.Errorf("%q is not a signer", signer)
	}
	if len(c.signers) == 1 {
		c.signersMu.Unlock()
		return fmt.Errorf("remove signer %q: %w", signer, ErrLastSigner)
	}
	delete(c.signers, signer)
	c.signersMu.Unlock()

	if err := c.bonding.RemoveAdmin(caller, signer); err != nil {
		return fmt.Errorf("remove signer %q from vault: %w", signer, err)
	}

	c.logger.Info("Signer removed",
		zap.String("actor", string(caller)),
		zap.String("signer", string(signer)),
		zap.Bool("renounce", renounce))
	c.bus.Publish(ctx, events.SignerRemoved{
		BaseEvent: events.NewBase(events.TypeSignerRemoved, c.name),
		Actor:     caller,
		Signer:    signer,
		Renounce:  renounce,
	})
	return nil
}

// PassToCharity disburses charity funds through the owned charity vault,
// serialized with donations and sales.
func (c *Community) PassToCharity(ctx context.Context, caller types.Address, amount *uint256.Int, intermediary types.Address, metadataRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charity.PassToCharity(ctx, caller, amount, intermediary, metadataRef)
}

// ReplaceBuyFormula hot-swaps the purchase formula. Signer-gated via the
// vault admin set.
func (c *Community) ReplaceBuyFormula(ctx context.Context, caller types.Address, f curve.Formula) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bonding.SetBuyFormula(ctx, caller, f)
}

// ReplaceSellFormula hot-swaps the sale formula.
func (c *Community) ReplaceSellFormula(ctx context.Context, caller types.Address, f curve.Formula) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bonding.SetSellFormula(ctx, caller, f)
}

// ReplaceCharityVault installs a fresh charity vault. The old vault's
// accumulated history and any undisbursed balance are frozen and orphaned,
// never migrated. When funds remain, the caller must acknowledge the
// orphaned balance explicitly; the old vault stays queryable through the
// returned handle.
func (c *Community) ReplaceCharityVault(ctx context.Context, caller types.Address, acknowledgeOrphaned bool) (*vault.CharityVault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsSigner(caller) {
		return nil, fmt.Errorf("replace charity vault by %q: %w", caller, ErrNotAuthorized)
	}

	old := c.charity
	orphaned := old.StableBalance()
	if !orphaned.IsZero() && !acknowledgeOrphaned {
		return nil, fmt.Errorf("replace charity vault holding %s: %w", orphaned.Dec(), ErrUnacknowledgedBalance)
	}

	c.charity = vault.NewCharity(c.logger, c.bus, c.name, signerView{c})

	c.logger.Warn("Charity vault replaced",
		zap.String("actor", string(caller)),
		zap.String("orphaned_balance", orphaned.Dec()))
	c.bus.Publish(ctx, events.VaultReplaced{
		BaseEvent:       events.NewBase(events.TypeVaultReplaced, c.name),
		Actor:           caller,
		VaultKind:       "charity",
		OrphanedBalance: orphaned,
	})
	return old, nil
}

// SweepBondingVault drains the bonding reserve for wind-down. Signer-gated
// via the vault admin set.
func (c *Community) SweepBondingVault(ctx context.Context, caller types.Address) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bonding.Sweep(ctx, caller)
}
