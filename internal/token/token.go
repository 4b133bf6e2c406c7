// internal/token/token.go
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/givecurve/givecurve/internal/types"
)

var (
	ErrNotMinter           = errors.New("caller is not the token minter")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrZeroAddress         = errors.New("zero address")
	ErrSupplyOverflow      = errors.New("total supply overflow")
)

// Token is the fungible community token: plain balance bookkeeping with a
// single minting authority fixed at creation. The bonding vault holds the
// authority; everything else can only read balances or move its own funds.
type Token struct {
	mu      sync.RWMutex
	name    string
	symbol  string
	minter  types.Address
	supply  *uint256.Int
	balance map[types.Address]*uint256.Int
}

func New(name, symbol string, minter types.Address) *Token {
	return &Token{
		name:    name,
		symbol:  symbol,
		minter:  minter,
		supply:  uint256.NewInt(0),
		balance: make(map[types.Address]*uint256.Int),
	}
}

func (t *Token) Name() string   { return t.name }
func (t *Token) Symbol() string { return t.symbol }

// IsMinter reports whether who holds the minting authority.
func (t *Token) IsMinter(who types.Address) bool { return who == t.minter }

// Mint creates amount new tokens for to. Only the minter may call.
func (t *Token) Mint(caller, to types.Address, amount *uint256.Int) error {
	if caller != t.minter {
		return fmt.Errorf("mint by %q: %w", caller, ErrNotMinter)
	}
	if to == types.ZeroAddress {
		return fmt.Errorf("mint to zero address: %w", ErrZeroAddress)
	}
	if amount.IsZero() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// No balance can exceed the supply, so guarding the supply sum guards
	// every credit too.
	if _, overflow := new(uint256.Int).AddOverflow(t.supply, amount); overflow {
		return fmt.Errorf("mint %s onto supply %s: %w", amount.Dec(), t.supply.Dec(), ErrSupplyOverflow)
	}
	t.supply.Add(t.supply, amount)
	t.credit(to, amount)
	return nil
}

// Burn destroys amount tokens held by from. Only the minter may call.
func (t *Token) Burn(caller, from types.Address, amount *uint256.Int) error {
	if caller != t.minter {
		return fmt.Errorf("burn by %q: %w", caller, ErrNotMinter)
	}
	if amount.IsZero() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balance[from]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("burn %s from %q holding %s: %w", amount, from, t.lockedBalanceOf(from), ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	t.supply.Sub(t.supply, amount)
	return nil
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to types.Address, amount *uint256.Int) error {
	if to == types.ZeroAddress {
		return fmt.Errorf("transfer to zero address: %w", ErrZeroAddress)
	}
	if amount.IsZero() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balance[from]
	if !ok || bal.Lt(amount) {
		return fmt.Errorf("transfer %s from %q holding %s: %w", amount, from, t.lockedBalanceOf(from), ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of who's balance.
func (t *Token) BalanceOf(who types.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lockedBalanceOf(who)
}

// TotalSupply returns a copy of the current supply.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.Clone()
}

func (t *Token) lockedBalanceOf(who types.Address) *uint256.Int {
	if bal, ok := t.balance[who]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (t *Token) credit(to types.Address, amount *uint256.Int) {
	if bal, ok := t.balance[to]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balance[to] = amount.Clone()
}
