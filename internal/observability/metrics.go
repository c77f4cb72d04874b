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
			Namespace: "simbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "message",
			Name:      "received_total",
			Help:      "Inbound messages appended to the receive buffer.",
		},
		[]string{"node"},
	)
	messageBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "message",
			Name:      "received_bytes_total",
			Help:      "Inbound message bytes appended to the receive buffer.",
		},
		[]string{"node"},
	)
	messagePeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simbridge",
			Subsystem: "message",
			Name:      "peers",
			Help:      "Connected message transport peers.",
		},
		[]string{"node"},
	)
	bufferedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simbridge",
			Subsystem: "message",
			Name:      "buffered_bytes",
			Help:      "Bytes waiting in the receive buffer.",
		},
		[]string{"node"},
	)
	diagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "bridge",
			Name:      "diagnostics_total",
			Help:      "Non-fatal bridge diagnostics by kind.",
		},
		[]string{"node", "kind"},
	)
	forwardDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "forward",
			Name:      "datagrams_total",
			Help:      "Datagrams forwarded upstream.",
		},
		[]string{"node", "op", "success"},
	)
	forwardBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "forward",
			Name:      "bytes_total",
			Help:      "Bytes forwarded upstream.",
		},
		[]string{"node", "op"},
	)
	upstreamReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "upstream",
			Name:      "replies_total",
			Help:      "Upstream reply receive attempts by outcome.",
		},
		[]string{"node", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			messagesReceived,
			messageBytes,
			messagePeers,
			bufferedBytes,
			diagnostics,
			forwardDatagrams,
			forwardBytes,
			upstreamReplies,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMessage(node string, size int) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(node).Inc()
	messageBytes.WithLabelValues(node).Add(float64(size))
}

func SetMessagePeers(node string, peers int) {
	RegisterMetrics()
	messagePeers.WithLabelValues(node).Set(float64(peers))
}

func SetBufferedBytes(node string, size int) {
	RegisterMetrics()
	bufferedBytes.WithLabelValues(node).Set(float64(size))
}

func RecordDiagnostic(node, kind string) {
	RegisterMetrics()
	diagnostics.WithLabelValues(node, kind).Inc()
}

// DiagnosticCounter returns the counter RecordDiagnostic increments for node and kind.
func DiagnosticCounter(node, kind string) prometheus.Counter {
	RegisterMetrics()
	return diagnostics.WithLabelValues(node, kind)
}

func RecordForward(node, op string, size int, success bool) {
	RegisterMetrics()
	forwardDatagrams.WithLabelValues(node, op, strconv.FormatBool(success)).Inc()
	if success {
		forwardBytes.WithLabelValues(node, op).Add(float64(size))
	}
}

func RecordUpstreamReply(node, outcome string) {
	RegisterMetrics()
	upstreamReplies.WithLabelValues(node, outcome).Inc()
}
