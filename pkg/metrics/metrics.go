package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ContainersTotal tracks the number of containers known to the runtime
	// by status (Created/Running/Stopped).
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libcrun_shim_containers_total",
			Help: "Total number of containers known to the runtime, by status",
		},
		[]string{"status"},
	)

	// VMPhase is 1 for the lifecycle phase the VM bridge currently
	// reports and 0 for every other phase, so a dashboard can graph phase
	// transitions over time.
	VMPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libcrun_shim_vm_phase",
			Help: "Current VM lifecycle phase (1 for the active phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	// RPCCallsTotal counts RPC calls to the in-guest agent by request type
	// and outcome.
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libcrun_shim_rpc_calls_total",
			Help: "Total number of RPC calls to the guest agent, by request type and outcome",
		},
		[]string{"request_type", "outcome"},
	)

	// RPCCallDuration measures round-trip latency per request type.
	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libcrun_shim_rpc_call_duration_seconds",
			Help:    "RPC call duration in seconds, by request type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request_type"},
	)

	// ContainerCreateDuration times the facade's Create operation end to
	// end, including the RPC round trip.
	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "libcrun_shim_container_create_duration_seconds",
			Help:    "Time taken to create a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ContainerStartDuration times the facade's Start operation.
	ContainerStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "libcrun_shim_container_start_duration_seconds",
			Help:    "Time taken to start a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ContainerStopDuration times the facade's Stop operation.
	ContainerStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "libcrun_shim_container_stop_duration_seconds",
			Help:    "Time taken to stop a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ConnectRetriesTotal counts how many retry attempts the VM lifecycle's
	// Connect made before succeeding or giving up, useful for spotting a
	// slow-booting or flaky VM.
	ConnectRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "libcrun_shim_connect_retries_total",
			Help: "Total number of VM connect retry attempts across the process lifetime",
		},
	)

	// EventBusSubscribers reports the current number of active eventbus
	// subscribers.
	EventBusSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "libcrun_shim_eventbus_subscribers",
			Help: "Current number of active event bus subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(ContainersTotal)
	prometheus.MustRegister(VMPhase)
	prometheus.MustRegister(RPCCallsTotal)
	prometheus.MustRegister(RPCCallDuration)
	prometheus.MustRegister(ContainerCreateDuration)
	prometheus.MustRegister(ContainerStartDuration)
	prometheus.MustRegister(ContainerStopDuration)
	prometheus.MustRegister(ConnectRetriesTotal)
	prometheus.MustRegister(EventBusSubscribers)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
