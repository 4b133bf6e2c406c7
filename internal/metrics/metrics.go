// internal/metrics/metrics.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/givecurve/givecurve/internal/events"
)

var (
	donationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "givecurve_donations_total",
			Help: "Total number of committed donations",
		},
		[]string{"community"},
	)
	saleCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "givecurve_sales_total",
			Help: "Total number of committed token sales",
		},
		[]string{"community"},
	)
	disbursementCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "givecurve_charity_disbursements_total",
			Help: "Total number of charity disbursements",
		},
		[]string{"community"},
	)
	governanceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "givecurve_governance_changes_total",
			Help: "Total number of signer, formula and vault changes",
		},
		[]string{"community", "change"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "givecurve_operation_duration_seconds",
			Help:    "Duration of donation platform operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(donationCounter)
	prometheus.MustRegister(saleCounter)
	prometheus.MustRegister(disbursementCounter)
	prometheus.MustRegister(governanceCounter)
	prometheus.MustRegister(operationDuration)
}

// MeasureOperation times f under the named operation.
func MeasureOperation(operation string, f func() error) error {
	start := time.Now()
	err := f()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

// Observe translates one audit event into counter increments. Attach it to
// the bus with SubscribeAll.
func Observe(_ context.Context, event events.Event) error {
	community := event.Community()
	switch event.Type() {
	case events.TypeDonated:
		donationCounter.WithLabelValues(community).Inc()
	case events.TypeSold:
		saleCounter.WithLabelValues(community).Inc()
	case events.TypePassedToCharity:
		disbursementCounter.WithLabelValues(community).Inc()
	case events.TypeSignerAdded, events.TypeSignerRemoved:
		governanceCounter.WithLabelValues(community, "signer").Inc()
	case events.TypeFormulaReplaced:
		governanceCounter.WithLabelValues(community, "formula").Inc()
	case events.TypeVaultReplaced, events.TypeReserveSwept:
		governanceCounter.WithLabelValues(community, "vault").Inc()
	}
	return nil
}

// Attach wires the observer into the bus.
func Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeAll(events.HandlerFunc(Observe))
}
