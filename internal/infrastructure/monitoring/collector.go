package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Gauges
	sessionsActive        prometheus.Gauge
	participantsConnected prometheus.Gauge

	// Counters
	joinsTotal        prometheus.Counter
	rejoinsTotal      prometheus.Counter
	bannedJoinsTotal  prometheus.Counter
	relayedTotal      prometheus.Counter
	relayDroppedTotal prometheus.Counter
	reactionsTotal    prometheus.Counter
	hostCommandsTotal *prometheus.CounterVec

	// Histograms
	sessionDuration prometheus.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_sessions_active",
			Help: "Number of sessions currently in progress",
		}),

		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_participants_connected",
			Help: "Number of signaling transports currently attached",
		}),

		joinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_joins_total",
			Help: "Total number of accepted joins",
		}),

		rejoinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_rejoins_total",
			Help: "Total number of joins that replaced a live record",
		}),

		bannedJoinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_banned_joins_total",
			Help: "Total number of joins silently rejected for banned identities",
		}),

		relayedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_negotiation_relayed_total",
			Help: "Total number of negotiation messages forwarded",
		}),

		relayDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_negotiation_dropped_total",
			Help: "Total number of negotiation messages dropped for an absent target",
		}),

		reactionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_reactions_total",
			Help: "Total number of reactions rebroadcast",
		}),

		hostCommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_host_commands_total",
			Help: "Total number of applied host commands",
		}, []string{"command"}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "huddle_session_duration_seconds",
			Help:    "Duration of completed sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
	}
}

func (c *Collector) ParticipantConnected() {
	c.participantsConnected.Inc()
}

func (c *Collector) ParticipantDisconnected() {
	c.participantsConnected.Dec()
}

func (c *Collector) RecordJoin(rejoin bool) {
	c.joinsTotal.Inc()
	if rejoin {
		c.rejoinsTotal.Inc()
	}
}

func (c *Collector) RecordBannedJoin() {
	c.bannedJoinsTotal.Inc()
}

func (c *Collector) RecordSessionStarted() {
	c.sessionsActive.Inc()
}

func (c *Collector) RecordSessionEnded(duration time.Duration) {
	c.sessionsActive.Dec()
	c.sessionDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordRelay() {
	c.relayedTotal.Inc()
}

func (c *Collector) RecordRelayDrop() {
	c.relayDroppedTotal.Inc()
}

func (c *Collector) RecordHostCommand(command string) {
	c.hostCommandsTotal.WithLabelValues(command).Inc()
}

func (c *Collector) RecordReaction() {
	c.reactionsTotal.Inc()
}
