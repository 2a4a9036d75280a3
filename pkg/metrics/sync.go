package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultConfirmed  = "confirmed"
	ResultRolledBack = "rolled_back"
	ResultRejected   = "rejected"
	ResultInvalid    = "invalid"

	PushAccepted  = "accepted"
	PushDuplicate = "duplicate"
	PushMalformed = "malformed"
)

// SyncMetrics records remote calls, cart mutations and push channel activity.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	remoteCalls *prometheus.HistogramVec
	mutations   *prometheus.CounterVec
	inFlight    prometheus.Gauge
	push        *prometheus.CounterVec
	reconnects  prometheus.Counter
}

// NewSyncMetrics registers the sync collectors on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	remoteCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_remote_call_duration_seconds",
		Help:    "Duration of backend calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation and result.",
	}, []string{"op", "result"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cart_mutations_in_flight",
		Help: "Cart mutations currently awaiting the backend.",
	})
	push := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_push_messages_total",
		Help: "Push channel messages by result.",
	}, []string{"result"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_push_reconnects_total",
		Help: "Push channel reconnect attempts.",
	})
	reg.MustRegister(remoteCalls, mutations, inFlight, push, reconnects)
	return &SyncMetrics{
		remoteCalls: remoteCalls,
		mutations:   mutations,
		inFlight:    inFlight,
		push:        push,
		reconnects:  reconnects,
	}
}

// ObserveRemoteCall records how long a backend call took and how it ended.
func (m *SyncMetrics) ObserveRemoteCall(endpoint, outcome string, duration time.Duration) {
	if m == nil || m.remoteCalls == nil {
		return
	}
	m.remoteCalls.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (m *SyncMetrics) IncMutation(op, result string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}

func (m *SyncMetrics) MutationStarted() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *SyncMetrics) MutationFinished() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *SyncMetrics) IncPush(result string) {
	if m == nil || m.push == nil {
		return
	}
	m.push.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *SyncMetrics) IncReconnect() {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
