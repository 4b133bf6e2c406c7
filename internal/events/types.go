// internal/events/types.go
package events

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/givecurve/givecurve/internal/types"
)

// EventType identifies an audit event kind.
type EventType string

const (
	TypeDonated         EventType = "community.donated"
	TypeSold            EventType = "vault.sold"
	TypeCurveBuy        EventType = "vault.curve_buy"
	TypePassedToCharity EventType = "charity.passed"
	TypeCharityDeposit  EventType = "charity.deposited"
	TypeFormulaReplaced EventType = "vault.formula_replaced"
	TypeVaultReplaced   EventType = "community.vault_replaced"
	TypeReserveSwept    EventType = "vault.reserve_swept"
	TypeSignerAdded     EventType = "community.signer_added"
	TypeSignerRemoved   EventType = "community.signer_removed"
)

// Event is the base interface for all audit events. Events are consumed by
// external indexers (and the local audit ledger); nothing in the core
// interprets them.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	Community() string
}

// BaseEvent provides the common fields.
type BaseEvent struct {
	EventType     EventType
	EventTime     time.Time
	CommunityName string
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e BaseEvent) Community() string    { return e.CommunityName }

// NewBase stamps a base event for a community.
func NewBase(t EventType, community string) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now().UTC(), CommunityName: community}
}

// Donated is emitted once per successful donation, after the charity credit
// and the curve purchase have both committed.
type Donated struct {
	BaseEvent
	Donor        types.Address
	RawAmount    *uint256.Int
	CharityShare *uint256.Int
	ReserveShare *uint256.Int
	TokensMinted *uint256.Int
}

// CurveBuy is emitted by the bonding vault for every reserve purchase,
// carrying the post-mutation aggregate state.
type CurveBuy struct {
	BaseEvent
	Buyer        types.Address
	Deposit      *uint256.Int
	TokensMinted *uint256.Int
	Supply       *uint256.Int
	Reserve      *uint256.Int
}

// Sold is emitted by the bonding vault for every sale.
type Sold struct {
	BaseEvent
	Seller       types.Address
	TokensBurned *uint256.Int
	CurrencyOut  *uint256.Int
	Supply       *uint256.Int
	Reserve      *uint256.Int
}

// CharityDeposit is emitted by the charity vault on every stable-unit
// credit.
type CharityDeposit struct {
	BaseEvent
	Donor        types.Address
	StableAmount *uint256.Int
	GlobalSum    *uint256.Int
}

// PassedToCharity is emitted on every disbursement. MetadataRef is an opaque
// content-addressed pointer to supporting documentation.
type PassedToCharity struct {
	BaseEvent
	Actor        types.Address
	Intermediary types.Address
	Amount       *uint256.Int
	MetadataRef  string
}

// FormulaReplaced is emitted when a vault formula is hot-swapped.
type FormulaReplaced struct {
	BaseEvent
	Actor      types.Address
	Direction  string // "buy" or "sell"
	OldFormula string
	NewFormula string
}

// VaultReplaced is emitted when the community swaps one of its vaults.
type VaultReplaced struct {
	BaseEvent
	Actor           types.Address
	VaultKind       string
	OrphanedBalance *uint256.Int
}

// ReserveSwept is emitted when an admin drains the bonding reserve.
type ReserveSwept struct {
	BaseEvent
	Actor  types.Address
	Amount *uint256.Int
}

// SignerAdded and SignerRemoved track governance membership changes.
type SignerAdded struct {
	BaseEvent
	Actor  types.Address
	Signer types.Address
}

type SignerRemoved struct {
	BaseEvent
	Actor    types.Address
	Signer   types.Address
	Renounce bool
}
