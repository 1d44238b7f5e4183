package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"server", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dlport",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "route", "status"},
	)
	channelRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "requests_total",
			Help:      "Requests sent to the peer by msg.",
		},
		[]string{"msg"},
	)
	channelReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "replies_total",
			Help:      "Replies received from the peer, split by whether a pending request matched.",
		},
		[]string{"matched"},
	)
	channelRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "rejections_total",
			Help:      "Requests failed locally by reason.",
		},
		[]string{"reason"},
	)
	channelDials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "dials_total",
			Help:      "Channel open attempts by result.",
		},
		[]string{"success"},
	)
	channelState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "state",
			Help:      "Channel state: 0 disconnected, 1 connecting, 2 connected.",
		},
	)
	channelPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dlport",
			Subsystem: "channel",
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply.",
		},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Peer events published to subscribers by kind.",
		},
		[]string{"kind"},
	)
	handlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlport",
			Subsystem: "events",
			Name:      "handler_panics_total",
			Help:      "Subscriber callbacks that panicked, by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			channelRequests, channelReplies, channelRejections, channelDials,
			channelState, channelPending,
			events, handlerPanics,
		)
	})
}

func RecordHTTPRequest(server, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordRequest(msg string) {
	RegisterMetrics()
	channelRequests.WithLabelValues(msg).Inc()
}

func RecordReply(matched bool) {
	RegisterMetrics()
	channelReplies.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

func RecordRejections(reason string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	channelRejections.WithLabelValues(reason).Add(float64(n))
}

func RecordDial(success bool) {
	RegisterMetrics()
	channelDials.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func SetChannelState(state int) {
	RegisterMetrics()
	channelState.Set(float64(state))
}

func SetPending(n int) {
	RegisterMetrics()
	channelPending.Set(float64(n))
}

func RecordEvent(kind string) {
	RegisterMetrics()
	events.WithLabelValues(kind).Inc()
}

func RecordHandlerPanic(kind string) {
	RegisterMetrics()
	handlerPanics.WithLabelValues(kind).Inc()
}
