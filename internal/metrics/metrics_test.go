// internal/metrics/metrics_test.go
package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/events"
)

func TestMeasureOperationRecordsDuration(t *testing.T) {
	before := testutil.CollectAndCount(operationDuration)

	err := MeasureOperation("timed-noop", func() error { return nil })
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.CollectAndCount(operationDuration))
}

func TestMeasureOperationPassesErrorThrough(t *testing.T) {
	sentinel := errors.New("converter unavailable")
	before := testutil.CollectAndCount(operationDuration)

	err := MeasureOperation("timed-failure", func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	// a failed attempt is still timed
	assert.Equal(t, before+1, testutil.CollectAndCount(operationDuration))
}

func TestObserveCountsEvents(t *testing.T) {
	const name = "metrics-observe"
	donations := donationCounter.WithLabelValues(name)
	sales := saleCounter.WithLabelValues(name)
	disbursements := disbursementCounter.WithLabelValues(name)

	ctx := context.Background()
	require.NoError(t, Observe(ctx, events.Donated{BaseEvent: events.NewBase(events.TypeDonated, name)}))
	require.NoError(t, Observe(ctx, events.Sold{BaseEvent: events.NewBase(events.TypeSold, name)}))
	require.NoError(t, Observe(ctx, events.PassedToCharity{BaseEvent: events.NewBase(events.TypePassedToCharity, name)}))

	assert.Equal(t, float64(1), testutil.ToFloat64(donations))
	assert.Equal(t, float64(1), testutil.ToFloat64(sales))
	assert.Equal(t, float64(1), testutil.ToFloat64(disbursements))
}

func TestAttachFeedsBusEventsIntoCounters(t *testing.T) {
	const name = "metrics-attach"
	bus := events.NewBus(zap.NewNop())
	sub := Attach(bus)
	defer sub.Unsubscribe()

	bus.Publish(context.Background(), events.SignerAdded{BaseEvent: events.NewBase(events.TypeSignerAdded, name)})
	bus.Publish(context.Background(), events.FormulaReplaced{BaseEvent: events.NewBase(events.TypeFormulaReplaced, name)})

	assert.Equal(t, float64(1), testutil.ToFloat64(governanceCounter.WithLabelValues(name, "signer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(governanceCounter.WithLabelValues(name, "formula")))
}
