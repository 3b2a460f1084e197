// Package metrics defines the prometheus instruments for the reconcile
// loops. Everything hangs off an injected registerer so tests can use a
// fresh registry per case.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Termination reasons used as label values on VBrowserTerminations.
const (
	ReasonTimeout = "timeout"
	ReasonEmpty   = "empty"
)

// Subsync pass results used as label values on SubsyncPasses.
const (
	ResultApplied = "applied"
	ResultNoop    = "noop"
	ResultError   = "error"
)

// Metrics holds every instrument the process exports.
type Metrics struct {
	RoomsInMemory          prometheus.Gauge
	RoomsPersisted         prometheus.Counter
	PersistErrors          prometheus.Counter
	RoomsReclaimed         prometheus.Counter
	VBrowserTerminations   *prometheus.CounterVec
	VBrowserAlmostTimeouts prometheus.Counter
	LocksRenewed           prometheus.Counter
	RenewErrors            prometheus.Counter
	SubsyncPasses          *prometheus.CounterVec
}

// New registers all instruments with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoomsInMemory: f.NewGauge(prometheus.GaugeOpts{
			Name: "roomd_rooms_in_memory",
			Help: "Rooms currently held in the registry.",
		}),
		RoomsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_rooms_persisted_total",
			Help: "Room state rows written by the persister.",
		}),
		PersistErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_persist_errors_total",
			Help: "Failed room state writes.",
		}),
		RoomsReclaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_rooms_reclaimed_total",
			Help: "Rooms evicted from memory by the reclaimer.",
		}),
		VBrowserTerminations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_vbrowser_terminations_total",
			Help: "vBrowser sessions stopped by the sweep, by reason.",
		}, []string{"reason"}),
		VBrowserAlmostTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_vbrowser_almost_timeouts_total",
			Help: "Warning chat lines sent for sessions close to timeout.",
		}),
		LocksRenewed: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_vbrowser_locks_renewed_total",
			Help: "Successful session lock renewals.",
		}),
		RenewErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "roomd_vbrowser_renew_errors_total",
			Help: "Failed session lock renewals.",
		}),
		SubsyncPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_subsync_passes_total",
			Help: "Subscriber reconciliation passes, by result.",
		}, []string{"result"}),
	}
}

// NewUnregistered returns instruments backed by a throwaway registry,
// for wiring loops in tests that do not assert on metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
