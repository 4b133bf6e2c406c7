// internal/vault/bonding.go
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/token"
	"github.com/givecurve/givecurve/internal/types"
)

var (
	// ErrNotAuthorized is returned for vault operations gated on the admin
	// set or, in the charity vault, on the community signer set.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInsufficientBalance is returned when a sale exceeds the seller's
	// pre-transaction token balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrReserveExhausted guards the reserve against underflow. Unreachable
	// with a consistent formula, checked defensively anyway.
	ErrReserveExhausted = errors.New("reserve exhausted")
)

// BondingVault owns the pooled reserve and the mint/burn authority over the
// community token. Every buy and sell prices against the active formula
// using pre-mutation state.
//
// The vault serializes its own mutations, but the owning community
// additionally serializes every community-level operation, so vault state
// can never interleave with the charity split of the same donation.
type BondingVault struct {
	mu        sync.RWMutex
	community string
	logger    *zap.Logger
	bus       *events.Bus
	authority types.Address
	admins    map[types.Address]bool
	token     *token.Token
	reserve   *uint256.Int
	buy       curve.Formula
	sell      curve.Formula
}

// BondingConfig carries the genesis parameters of a bonding vault.
type BondingConfig struct {
	Community   string
	TokenName   string
	TokenSymbol string
	BuyFormula  curve.Formula
	SellFormula curve.Formula

	// InitialMint tokens are created for the admin and InitialReserve seeds
	// the pool, so the very first purchase prices against a live curve
	// instead of dividing by zero.
	InitialMint    *uint256.Int
	InitialReserve *uint256.Int
	Admin          types.Address
}

// NewBonding creates the vault together with its token; the vault's private
// authority address becomes the token's only minter.
func NewBonding(logger *zap.Logger, bus *events.Bus, cfg BondingConfig) (*BondingVault, error) {
	if cfg.BuyFormula == nil || cfg.SellFormula == nil {
		return nil, errors.New("bonding vault requires buy and sell formulas")
	}
	if cfg.Admin == types.ZeroAddress {
		return nil, errors.New("bonding vault requires an admin")
	}

	authority := types.Address("bonding-vault:" + uuid.New().String())
	v := &BondingVault{
		community: cfg.Community,
		logger:    logger.Named("bonding_vault"),
		bus:       bus,
		authority: authority,
		admins:    map[types.Address]bool{cfg.Admin: true},
		token:     token.New(cfg.TokenName, cfg.TokenSymbol, authority),
		reserve:   uint256.NewInt(0),
		buy:       cfg.BuyFormula,
		sell:      cfg.SellFormula,
	}

	if cfg.InitialMint != nil && !cfg.InitialMint.IsZero() {
		if err := v.token.Mint(authority, cfg.Admin, cfg.InitialMint); err != nil {
			return nil, fmt.Errorf("genesis mint: %w", err)
		}
	}
	if cfg.InitialReserve != nil {
		v.reserve.Add(v.reserve, cfg.InitialReserve)
	}

	v.logger.Info("Bonding vault created",
		zap.String("community", cfg.Community),
		zap.String("token", cfg.TokenSymbol),
		zap.String("buy_formula", v.buy.Kind()),
		zap.String("sell_formula", v.sell.Kind()),
		zap.String("initial_supply", v.token.TotalSupply().Dec()),
		zap.String("initial_reserve", v.reserve.Dec()))
	return v, nil
}

// Token exposes the community token for balance reads.
func (v *BondingVault) Token() *token.Token { return v.token }

// Reserve returns a copy of the current reserve balance.
func (v *BondingVault) Reserve() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reserve.Clone()
}

// BuyFormulaKind and SellFormulaKind report the active formula variants.
func (v *BondingVault) BuyFormulaKind() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.buy.Kind()
}

func (v *BondingVault) SellFormulaKind() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sell.Kind()
}

// AddAdmin grants vault administration to addr. Admin-gated.
func (v *BondingVault) AddAdmin(caller, addr types.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.admins[caller] {
		return fmt.Errorf("add admin by %q: %w", caller, ErrNotAuthorized)
	}
	v.admins[addr] = true
	return nil
}

// RemoveAdmin revokes vault administration from addr. Admin-gated; the
// caller may remove itself. The owning community guards against emptying
// the set.
func (v *BondingVault) RemoveAdmin(caller, addr types.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.admins[caller] {
		return fmt.Errorf("remove admin by %q: %w", caller, ErrNotAuthorized)
	}
	delete(v.admins, addr)
	return nil
}

// QuoteBuy prices a purchase without mutating anything. The quote is a
// snapshot, not a commitment: a formula swap between quote and buy is
// allowed to change the outcome.
func (v *BondingVault) QuoteBuy(buyer types.Address, deposit *uint256.Int) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.buy.PurchaseReturn(v.token.TotalSupply(), v.token.BalanceOf(buyer), v.reserve, deposit)
}

// QuoteSell prices a sale without mutating anything. Same snapshot caveat
// as QuoteBuy.
func (v *BondingVault) QuoteSell(seller types.Address, tokens *uint256.Int) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sell.SaleReturn(v.token.TotalSupply(), v.token.BalanceOf(seller), v.reserve, tokens)
}

// Buy credits deposit to the reserve and mints the formula's purchase
// return to buyer. A zero deposit is a no-op.
func (v *BondingVault) Buy(ctx context.Context, buyer types.Address, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit.IsZero() {
		return uint256.NewInt(0), nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, overflow := new(uint256.Int).AddOverflow(v.reserve, deposit); overflow {
		return nil, fmt.Errorf("deposit %s overflows reserve %s: %w", deposit.Dec(), v.reserve.Dec(), curve.ErrInvalidAmount)
	}

	minted, err := v.buy.PurchaseReturn(v.token.TotalSupply(), v.token.BalanceOf(buyer), v.reserve, deposit)
	if err != nil {
		return nil, fmt.Errorf("buy for %q: %w", buyer, err)
	}

	v.reserve.Add(v.reserve, deposit)
	if err := v.token.Mint(v.authority, buyer, minted); err != nil {
		// Undo the reserve credit; mint fails only on a zero buyer or a
		// supply overflow.
		v.reserve.Sub(v.reserve, deposit)
		return nil, fmt.Errorf("buy mint for %q: %w", buyer, err)
	}

	supply := v.token.TotalSupply()
	v.logger.Info("Curve buy",
		zap.String("community", v.community),
		zap.String("buyer", string(buyer)),
		zap.String("deposit", deposit.Dec()),
		zap.String("minted", minted.Dec()),
		zap.String("supply", supply.Dec()),
		zap.String("reserve", v.reserve.Dec()))
	v.bus.Publish(ctx, events.CurveBuy{
		BaseEvent:    events.NewBase(events.TypeCurveBuy, v.community),
		Buyer:        buyer,
		Deposit:      deposit.Clone(),
		TokensMinted: minted.Clone(),
		Supply:       supply,
		Reserve:      v.reserve.Clone(),
	})
	return minted, nil
}

// Sell burns tokens from seller and releases the formula's sale return from
// the reserve. A zero token amount is a no-op.
func (v *BondingVault) Sell(ctx context.Context, seller types.Address, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens.IsZero() {
		return uint256.NewInt(0), nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.token.BalanceOf(seller)
	if balance.Lt(tokens) {
		return nil, fmt.Errorf("sell %s with balance %s: %w", tokens, balance, ErrInsufficientBalance)
	}

	out, err := v.sell.SaleReturn(v.token.TotalSupply(), balance, v.reserve, tokens)
	if err != nil {
		return nil, fmt.Errorf("sell for %q: %w", seller, err)
	}
	if out.Gt(v.reserve) {
		return nil, fmt.Errorf("sale return %s exceeds reserve %s: %w", out, v.reserve, ErrReserveExhausted)
	}

	if err := v.token.Burn(v.authority, seller, tokens); err != nil {
		return nil, fmt.Errorf("sell burn for %q: %w", seller, err)
	}
	v.reserve.Sub(v.reserve, out)

	supply := v.token.TotalSupply()
	v.logger.Info("Curve sell",
		zap.String("community", v.community),
		zap.String("seller", string(seller)),
		zap.String("burned", tokens.Dec()),
		zap.String("currency_out", out.Dec()),
		zap.String("supply", supply.Dec()),
		zap.String("reserve", v.reserve.Dec()))
	v.bus.Publish(ctx, events.Sold{
		BaseEvent:    events.NewBase(events.TypeSold, v.community),
		Seller:       seller,
		TokensBurned: tokens.Clone(),
		CurrencyOut:  out.Clone(),
		Supply:       supply,
		Reserve:      v.reserve.Clone(),
	})
	return out, nil
}

// SetBuyFormula swaps the purchase formula. Admin-gated; takes effect
// atomically for the next transaction. Supply and reserve are not rebased,
// so price continuity across the swap is the caller's responsibility.
func (v *BondingVault) SetBuyFormula(ctx context.Context, caller types.Address, f curve.Formula) error {
	return v.setFormula(ctx, caller, f, "buy")
}

// SetSellFormula swaps the sale formula. Same contract as SetBuyFormula.
func (v *BondingVault) SetSellFormula(ctx context.Context, caller types.Address, f curve.Formula) error {
	return v.setFormula(ctx, caller, f, "sell")
}

func (v *BondingVault) setFormula(ctx context.Context, caller types.Address, f curve.Formula, direction string) error {
	if f == nil {
		return errors.New("nil formula")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.admins[caller] {
		return fmt.Errorf("set %s formula by %q: %w", direction, caller, ErrNotAuthorized)
	}

	var old string
	if direction == "buy" {
		old = v.buy.Kind()
		v.buy = f
	} else {
		old = v.sell.Kind()
		v.sell = f
	}

	v.logger.Info("Formula replaced",
		zap.String("community", v.community),
		zap.String("direction", direction),
		zap.String("old", old),
		zap.String("new", f.Kind()))
	v.bus.Publish(ctx, events.FormulaReplaced{
		BaseEvent:  events.NewBase(events.TypeFormulaReplaced, v.community),
		Actor:      caller,
		Direction:  direction,
		OldFormula: old,
		NewFormula: f.Kind(),
	})
	return nil
}

// Sweep drains the entire reserve, for end-of-life wind-down or migration.
// Admin-gated. Subsequent buys fail until the reserve is re-bootstrapped.
func (v *BondingVault) Sweep(ctx context.Context, caller types.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.admins[caller] {
		return nil, fmt.Errorf("sweep by %q: %w", caller, ErrNotAuthorized)
	}

	amount := v.reserve.Clone()
	v.reserve.Clear()

	v.logger.Warn("Reserve swept",
		zap.String("community", v.community),
		zap.String("actor", string(caller)),
		zap.String("amount", amount.Dec()))
	v.bus.Publish(ctx, events.ReserveSwept{
		BaseEvent: events.NewBase(events.TypeReserveSwept, v.community),
		Actor:     caller,
		Amount:    amount.Clone(),
	})
	return amount, nil
}
