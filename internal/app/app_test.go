// internal/app/app_test.go
package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/config"
	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/types"
)

func mustAmount(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr: "127.0.0.1:0",
		LedgerPath: filepath.Join(t.TempDir(), "audit.db"),
		Converter:  config.ConverterConfig{Kind: "fixed", RateNum: 1, RateDen: 1},
		Communities: []config.CommunityConfig{
			{
				Name:           "kids",
				TokenName:      "Kids Coin",
				TokenSymbol:    "KDC",
				Creator:        "creator",
				BuyFormula:     "bancor",
				SellFormula:    "bancor",
				WeightPPM:      400_000,
				InitialMint:    "1000000000000000000000000",
				InitialReserve: "10000000000000000",
			},
			{
				Name:           "elders",
				TokenName:      "Elders Coin",
				TokenSymbol:    "ELD",
				Creator:        "creator",
				BuyFormula:     "exponential-deflation",
				SellFormula:    "exponential-deflation",
				SpreadPPM:      50_000,
				InitialMint:    "1000000",
				InitialReserve: "1000000",
			},
		},
	}
}

func TestNewDeploysConfiguredCommunities(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown()

	reg := a.Registry()
	assert.Equal(t, 2, reg.CommunityIndex())

	kids, err := reg.GetCommunity("kids")
	require.NoError(t, err)
	assert.Equal(t, curve.KindBancor, kids.BondingVault().BuyFormulaKind())
	assert.True(t, kids.IsSigner(types.Address("creator")))

	elders, err := reg.GetCommunity("elders")
	require.NoError(t, err)
	assert.Equal(t, curve.KindExponentialDeflation, elders.BondingVault().BuyFormulaKind())

	// Genesis state is live: a donation prices immediately.
	receipt, err := kids.Donate(context.Background(), types.Address("alice"), mustAmount(t, "1000000000000000000"))
	require.NoError(t, err)
	assert.True(t, receipt.TokensMinted.Sign() > 0)
}

func TestNewRejectsUnknownFormula(t *testing.T) {
	cfg := testConfig(t)
	cfg.Communities[0].BuyFormula = "parabolic"
	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBuildConverterFeedNeedsSource(t *testing.T) {
	_, err := buildConverter(config.ConverterConfig{Kind: "feed"})
	require.Error(t, err)
}
