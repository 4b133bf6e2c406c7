// internal/community/community.go
package community

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
	"github.com/givecurve/givecurve/internal/vault"
)

var (
	// ErrNotAuthorized mirrors the vault sentinel for governance calls made
	// directly on the community.
	ErrNotAuthorized = vault.ErrNotAuthorized

	// ErrLastSigner prevents the signer set from ever becoming empty.
	ErrLastSigner = errors.New("cannot remove the last signer")

	// ErrUnacknowledgedBalance blocks a charity-vault replacement while the
	// old vault still holds funds, unless the operator explicitly
	// acknowledges orphaning them.
	ErrUnacknowledgedBalance = errors.New("old charity vault holds funds; acknowledgment required")
)

// ConverterSource resolves the currently registered currency converter.
// The platform registry implements it; communities hold it as a weak
// reference so converter upgrades apply to every community at once.
type ConverterSource interface {
	GetConverter() (convert.Converter, error)
}

// Config carries the deployment parameters of a community.
type Config struct {
	Name        string
	TokenName   string
	TokenSymbol string
	Creator     types.Address

	// CharityBPS is the fraction of every donation routed to the charity
	// vault, in basis points. Fixed for the community's lifetime.
	CharityBPS uint32

	BuyFormula     curve.Formula
	SellFormula    curve.Formula
	InitialMint    *uint256.Int
	InitialReserve *uint256.Int
	AssetKind      types.AssetKind
}

// DefaultCharityBPS routes 90% of each donation to charity, the production
// calibration.
const DefaultCharityBPS = 9000

const bpsDenominator = 10000

// Community is the orchestrator and access-control boundary for one
// donation community. A single RWMutex serializes every state-changing
// operation across the community and both owned vaults; quotes take the
// read side and therefore observe a consistent snapshot, never a torn
// write. Distinct communities are fully independent.
//
// The signer set lives under its own lock so the charity vault can check
// authorization without touching the serialization lock.
type Community struct {
	mu     sync.RWMutex
	name   string
	logger *zap.Logger
	bus    *events.Bus

	signersMu  sync.RWMutex
	signers    map[types.Address]bool
	creator    types.Address
	charityBPS uint32
	assetKind  types.AssetKind

	bonding   *vault.BondingVault
	charity   *vault.CharityVault
	converter ConverterSource
}

// signerView adapts the community's signer set for the charity vault's
// Authorizer without exposing mutation.
type signerView struct{ c *Community }

func (s signerView) IsSigner(addr types.Address) bool { return s.c.IsSigner(addr) }

// New deploys a community with fresh vaults. The creator becomes the
// initial signer.
func New(logger *zap.Logger, bus *events.Bus, converter ConverterSource, cfg Config) (*Community, error) {
	if cfg.Name == "" {
		return nil, errors.New("community name required")
	}
	if cfg.Creator == types.ZeroAddress {
		return nil, errors.New("community creator required")
	}
	if cfg.CharityBPS == 0 {
		cfg.CharityBPS = DefaultCharityBPS
	}
	if cfg.CharityBPS >= bpsDenominator {
		return nil, fmt.Errorf("charity split %d bps leaves nothing for the reserve", cfg.CharityBPS)
	}
	if cfg.AssetKind == "" {
		cfg.AssetKind = types.AssetNative
	}

	c := &Community{
		name:       cfg.Name,
		logger:     logger.Named("community").With(zap.String("community", cfg.Name)),
		bus:        bus,
		creator:    cfg.Creator,
		signers:    map[types.Address]bool{cfg.Creator: true},
		charityBPS: cfg.CharityBPS,
		assetKind:  cfg.AssetKind,
		converter:  converter,
	}

	bonding, err := vault.NewBonding(logger, bus, vault.BondingConfig{
		Community:      cfg.Name,
		TokenName:      cfg.TokenName,
		TokenSymbol:    cfg.TokenSymbol,
		BuyFormula:     cfg.BuyFormula,
		SellFormula:    cfg.SellFormula,
		InitialMint:    cfg.InitialMint,
		InitialReserve: cfg.InitialReserve,
		Admin:          cfg.Creator,
	})
	if err != nil {
		return nil, fmt.Errorf("community %q bonding vault: %w", cfg.Name, err)
	}
	c.bonding = bonding
	c.charity = vault.NewCharity(logger, bus, cfg.Name, signerView{c})

	c.logger.Info("Community created",
		zap.String("creator", string(cfg.Creator)),
		zap.Uint32("charity_bps", cfg.CharityBPS))
	return c, nil
}

func (c *Community) Name() string { return c.name }

// BondingVault and CharityVault expose the owned vaults for reads and
// direct testing. All fund movement still goes through the gated vault
// operations.
func (c *Community) BondingVault() *vault.BondingVault { return c.bonding }

func (c *Community) CharityVault() *vault.CharityVault {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.charity
}

// DonationReceipt reports the committed effects of a donation.
type DonationReceipt struct {
	Donor        types.Address
	RawAmount    *uint256.Int
	CharityShare *uint256.Int
	ReserveShare *uint256.Int
	StableAmount *uint256.Int
	TokensMinted *uint256.Int
}

// split computes the charity/reserve division of a donation. The scaled
// intermediate can exceed 256 bits for amounts near the top of the range;
// those donations are rejected rather than silently mis-split.
func (c *Community) split(amount *uint256.Int) (charityShare, reserveShare *uint256.Int, err error) {
	charityShare = new(uint256.Int)
	if _, overflow := charityShare.MulOverflow(amount, uint256.NewInt(uint64(c.charityBPS))); overflow {
		return nil, nil, fmt.Errorf("donation of %s overflows the charity split: %w", amount.Dec(), curve.ErrInvalidAmount)
	}
	charityShare.Div(charityShare, uint256.NewInt(bpsDenominator))
	reserveShare = new(uint256.Int).Sub(amount, charityShare)
	return charityShare, reserveShare, nil
}

// Donate routes amount through the charity split: the charity share is
// converted into the stable unit and credited to the donor's charity
// record, the reserve share buys community tokens for the donor on the
// bonding curve. All or nothing: every fallible step (converter call,
// curve pricing) runs before the first ledger mutation, so no partial
// state is ever observable. A zero amount is a no-op.
func (c *Community) Donate(ctx context.Context, donor types.Address, amount *uint256.Int) (*DonationReceipt, error) {
	if donor == types.ZeroAddress {
		return nil, errors.New("donor address required")
	}
	if amount.IsZero() {
		return &DonationReceipt{
			Donor:        donor,
			RawAmount:    uint256.NewInt(0),
			CharityShare: uint256.NewInt(0),
			ReserveShare: uint256.NewInt(0),
			StableAmount: uint256.NewInt(0),
			TokensMinted: uint256.NewInt(0),
		}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	charityShare, reserveShare, err := c.split(amount)
	if err != nil {
		return nil, fmt.Errorf("donate to %q: %w", c.name, err)
	}

	// External conversion first: a converter failure aborts before any
	// local mutation.
	conv, err := c.converter.GetConverter()
	if err != nil {
		return nil, fmt.Errorf("donate to %q: %w", c.name, err)
	}
	stable, err := conv.ConvertToStable(ctx, charityShare, c.assetKind)
	if err != nil {
		return nil, fmt.Errorf("donate to %q: %w", c.name, err)
	}
	if err := c.charity.AcceptsCredit(stable); err != nil {
		return nil, fmt.Errorf("donate to %q: %w", c.name, err)
	}

	// Curve purchase second: pricing failures (dead curve, dust deposit)
	// also abort cleanly, since the charity credit has not happened yet.
	minted, err := c.bonding.Buy(ctx, donor, reserveShare)
	if err != nil {
		return nil, fmt.Errorf("donate to %q: %w", c.name, err)
	}

	// Charity credit last; infallible because AcceptsCredit already passed
	// under the same lock.
	c.charity.Credit(ctx, donor, stable)

	receipt := &DonationReceipt{
		Donor:        donor,
		RawAmount:    amount.Clone(),
		CharityShare: charityShare,
		ReserveShare: reserveShare,
		StableAmount: stable,
		TokensMinted: minted,
	}

	c.logger.Info("Donation committed",
		zap.String("donor", string(donor)),
		zap.String("raw_amount", amount.Dec()),
		zap.String("charity_share", charityShare.Dec()),
		zap.String("reserve_share", reserveShare.Dec()),
		zap.String("tokens_minted", minted.Dec()))
	c.bus.Publish(ctx, events.Donated{
		BaseEvent:    events.NewBase(events.TypeDonated, c.name),
		Donor:        donor,
		RawAmount:    amount.Clone(),
		CharityShare: charityShare.Clone(),
		ReserveShare: reserveShare.Clone(),
		TokensMinted: minted.Clone(),
	})
	return receipt, nil
}

// Sell liquidates tokenAmount of the seller's holdings against the bonding
// curve. No charity split applies on exit.
func (c *Community) Sell(ctx context.Context, seller types.Address, tokenAmount *uint256.Int) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.bonding.Sell(ctx, seller, tokenAmount)
	if err != nil {
		return nil, fmt.Errorf("sell to %q: %w", c.name, err)
	}
	return out, nil
}

// MyReturn quotes the currency released if caller sold tokenAmount right
// now. The quote is a snapshot, not a commitment: a donation, sale or
// formula swap committed after the quote changes the realized value.
func (c *Community) MyReturn(caller types.Address, tokenAmount *uint256.Int) (*uint256.Int, error) {
	return c.ReturnForAddress(caller, tokenAmount)
}

// ReturnForAddress quotes a sale for an arbitrary holder. Same snapshot
// caveat as MyReturn.
func (c *Community) ReturnForAddress(holder types.Address, tokenAmount *uint256.Int) (*uint256.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bonding.QuoteSell(holder, tokenAmount)
}

// MyBuy quotes the tokens minted if caller donated amount right now; the
// charity split is applied before pricing, exactly as Donate would.
func (c *Community) MyBuy(caller types.Address, amount *uint256.Int) (*uint256.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, reserveShare, err := c.split(amount)
	if err != nil {
		return nil, err
	}
	return c.bonding.QuoteBuy(caller, reserveShare)
}
