// Package metrics exposes the gateway's Prometheus counters and gauges,
// mounted alongside the JSON-RPC endpoint on the Bridge's router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the gateway's metrics so callers construct them once and
// thread them through the Sender, Listener, and Bridge.
type Registry struct {
	Submits           prometheus.Counter
	Retries           prometheus.Counter
	DropsOnConfirm    prometheus.Counter
	DropsOnExhaust    prometheus.Counter
	Pruned            prometheus.Counter
	ConfirmationsSeen prometheus.Counter
	CurrentSlot       prometheus.Gauge
	QueueDepth        prometheus.Gauge
}

// New registers and returns the gateway's metric set against reg. Pass
// prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for the process-wide default.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		Submits: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_submits_total",
			Help: "Total wire transactions fanned out to the leader set.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_retries_total",
			Help: "Total pending transactions re-enqueued for another fan-out attempt.",
		}),
		DropsOnConfirm: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_drops_confirmed_total",
			Help: "Pending transactions dropped because their signature was already confirmed.",
		}),
		DropsOnExhaust: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_drops_exhausted_total",
			Help: "Pending transactions dropped after exhausting their retry budget.",
		}),
		Pruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_index_pruned_total",
			Help: "Signature index entries removed by the clean loop.",
		}),
		ConfirmationsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "lite_rpc_confirmations_total",
			Help: "Signatures observed in a notified block.",
		}),
		CurrentSlot: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lite_rpc_current_slot",
			Help: "Latest slot observed by the block listener.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lite_rpc_queue_depth",
			Help: "Current depth of the pending-transaction queue.",
		}),
	}
}
