package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsCreated counts persisted replacement requests.
	RequestsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftflow_requests_created_total",
			Help: "Total replacement requests created",
		},
		[]string{"tenant"},
	)

	// ClaimsWon counts claims that won the conditional update.
	ClaimsWon = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftflow_claims_won_total",
			Help: "Total claims that won the pending->taken transition",
		},
		[]string{"tenant"},
	)

	// ClaimConflicts counts claims that lost to an earlier writer.
	ClaimConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftflow_claim_conflicts_total",
			Help: "Total claims resolved as already taken, expired or cancelled",
		},
		[]string{"tenant"},
	)

	// RequestsExpired counts requests swept into the expired state.
	RequestsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftflow_requests_expired_total",
			Help: "Total pending requests expired by the reconciler",
		},
		[]string{"tenant"},
	)

	// DeliveryFailures counts best-effort notification calls that failed.
	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftflow_delivery_failures_total",
			Help: "Total notification port calls that failed after a committed transition",
		},
		[]string{"tenant"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsCreated,
		ClaimsWon,
		ClaimConflicts,
		RequestsExpired,
		DeliveryFailures,
	)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
