// Package metrics exposes the Prometheus instruments shared across every
// stage of the pipeline. All counters are registered at package init via
// promauto in every process that imports this package. cmd/api's /metrics
// endpoint serves cmd/api's own registry; cmd/robserver, whose pipeline
// stages update these instruments, does not expose a /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DeliveriesTotal counts every AMQP delivery the payload consumer has
// received, labeled by exchange so operators can see where volume comes
// from.
var DeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "robserver_deliveries_total",
		Help: "Total AMQP deliveries received by the payload consumer",
	},
	[]string{"exchange"},
)

// PayloadKindTotal splits deliveries into JSON vs Raw, the same split that
// determines whether id is a real structural hash or the raw collision 0.
var PayloadKindTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "robserver_payload_kind_total",
		Help: "Deliveries split by whether the body parsed as JSON",
	},
	[]string{"kind"}, // "json" | "raw"
)

// BatchSize observes how many distinct identities a single upsert statement
// carried, after in-batch dedup.
var BatchSize = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "robserver_batch_distinct_identities",
		Help:    "Distinct identities per DB Batcher flush, after in-batch dedup",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
	},
)

// BatchUpsertDuration measures how long the single multi-row upsert
// statement takes per flush.
var BatchUpsertDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "robserver_batch_upsert_duration_seconds",
		Help:    "Duration of the DB Batcher's upsert statement",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	},
)

// BindsTotal counts successful queue.bind calls issued by the exchange
// subscriber, labeled by exchange type so direct-exchange fan-out is
// visible separately from topic/fanout/headers wildcard binds.
var BindsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "robserver_binds_total",
		Help: "Successful queue.bind calls issued by the exchange subscriber",
	},
	[]string{"exchange_type"},
)

// ReconcileErrorsTotal counts management-API fetch/decode failures that
// caused a reconcile tick to be skipped.
var ReconcileErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "robserver_reconcile_errors_total",
		Help: "Reconcile ticks skipped due to a management API or JSON decode error",
	},
)
