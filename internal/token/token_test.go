// internal/token/token_test.go
package token

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givecurve/givecurve/internal/types"
)

const (
	minter = types.Address("vault")
	alice  = types.Address("alice")
	bob    = types.Address("bob")
)

func TestMintRequiresAuthority(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)

	err := tok.Mint(alice, alice, uint256.NewInt(100))
	assert.ErrorIs(t, err, ErrNotMinter)
	assert.True(t, tok.TotalSupply().IsZero())

	require.NoError(t, tok.Mint(minter, alice, uint256.NewInt(100)))
	assert.Equal(t, uint64(100), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(100), tok.TotalSupply().Uint64())
	assert.True(t, tok.IsMinter(minter))
	assert.False(t, tok.IsMinter(alice))
}

func TestBurnChecksBalance(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)
	require.NoError(t, tok.Mint(minter, alice, uint256.NewInt(100)))

	err := tok.Burn(minter, alice, uint256.NewInt(101))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	err = tok.Burn(alice, alice, uint256.NewInt(10))
	assert.ErrorIs(t, err, ErrNotMinter)

	require.NoError(t, tok.Burn(minter, alice, uint256.NewInt(40)))
	assert.Equal(t, uint64(60), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(60), tok.TotalSupply().Uint64())
}

func TestTransfer(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)
	require.NoError(t, tok.Mint(minter, alice, uint256.NewInt(100)))

	require.NoError(t, tok.Transfer(alice, bob, uint256.NewInt(30)))
	assert.Equal(t, uint64(70), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(30), tok.BalanceOf(bob).Uint64())

	err := tok.Transfer(bob, alice, uint256.NewInt(31))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	err = tok.Transfer(alice, types.ZeroAddress, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestZeroAmountOpsAreNoOps(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)
	zero := uint256.NewInt(0)

	require.NoError(t, tok.Mint(minter, alice, zero))
	require.NoError(t, tok.Burn(minter, alice, zero))
	require.NoError(t, tok.Transfer(alice, bob, zero))
	assert.True(t, tok.TotalSupply().IsZero())
}

func TestBalanceCopiesAreDetached(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)
	require.NoError(t, tok.Mint(minter, alice, uint256.NewInt(100)))

	bal := tok.BalanceOf(alice)
	bal.SetUint64(1)
	assert.Equal(t, uint64(100), tok.BalanceOf(alice).Uint64())
}

func TestMintRejectsSupplyOverflow(t *testing.T) {
	tok := New("Chance", "CHANCE", minter)
	nearMax := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(10))
	require.NoError(t, tok.Mint(minter, alice, nearMax))

	err := tok.Mint(minter, bob, uint256.NewInt(10))
	assert.ErrorIs(t, err, ErrSupplyOverflow)
	assert.True(t, tok.TotalSupply().Eq(nearMax))
	assert.True(t, tok.BalanceOf(bob).IsZero())

	// The remaining headroom is still mintable.
	require.NoError(t, tok.Mint(minter, bob, uint256.NewInt(9)))
	max := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))
	assert.True(t, tok.TotalSupply().Eq(max))
}
