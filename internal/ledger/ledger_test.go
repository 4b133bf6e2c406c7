// internal/ledger/ledger_test.go
package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func donated(community string, donor types.Address, raw uint64) events.Donated {
	return events.Donated{
		BaseEvent:    events.NewBase(events.TypeDonated, community),
		Donor:        donor,
		RawAmount:    uint256.NewInt(raw),
		CharityShare: uint256.NewInt(raw * 9 / 10),
		ReserveShare: uint256.NewInt(raw / 10),
		TokensMinted: uint256.NewInt(42),
	}
}

func TestAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, donated("kids", "alice", 1000)))
	require.NoError(t, s.Handle(ctx, donated("elders", "bob", 2000)))
	require.NoError(t, s.Handle(ctx, events.ReserveSwept{
		BaseEvent: events.NewBase(events.TypeReserveSwept, "kids"),
		Actor:     "creator",
		Amount:    uint256.NewInt(500),
	}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest first.
	assert.Equal(t, string(events.TypeReserveSwept), recent[0].Type)
	assert.Equal(t, string(events.TypeDonated), recent[2].Type)

	kids, err := s.ByCommunity(ctx, "kids", 10)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "kids", kids[0].Community)
	assert.Equal(t, "kids", kids[1].Community)

	sweeps, err := s.ByType(ctx, events.TypeReserveSwept, 10)
	require.NoError(t, err)
	require.Len(t, sweeps, 1)
}

func TestPayloadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, donated("kids", "alice", 1000)))

	recs, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	var decoded struct {
		Donor        types.Address `json:"Donor"`
		RawAmount    *uint256.Int  `json:"RawAmount"`
		CharityShare *uint256.Int  `json:"CharityShare"`
	}
	require.NoError(t, json.Unmarshal(recs[0].Payload, &decoded))
	assert.Equal(t, types.Address("alice"), decoded.Donor)
	assert.Equal(t, uint256.NewInt(1000), decoded.RawAmount)
	assert.Equal(t, uint256.NewInt(900), decoded.CharityShare)
}

func TestAttachCapturesBusTraffic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bus := events.NewBus(zap.NewNop())
	sub := s.Attach(bus)
	defer sub.Unsubscribe()

	bus.Publish(ctx, donated("kids", "alice", 1000))
	bus.Publish(ctx, donated("kids", "bob", 3000))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	sub.Unsubscribe()
	bus.Publish(ctx, donated("kids", "alice", 500))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.Handle(ctx, donated("kids", "alice", 100+i)))
	}
	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
