// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: frames, chaff, drops.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmittedTotal counts frames emitted on the OBF wire, by slot index and
	// whether the frame was real traffic or chaff.
	EmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ditto_emitted_total",
			Help: "Frames emitted on the obfuscated wire, by pattern slot and kind.",
		}, []string{"slot", "kind"})

	// DroppedTotal counts packets dropped instead of enqueued, by reason.
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ditto_dropped_total",
			Help: "Packets dropped instead of enqueued, by reason.",
		}, []string{"reason"})

	// PaddingBytesHistogram tracks the padding added to each pushed packet, in bytes.
	PaddingBytesHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ditto_padding_bytes_histogram",
			Help:    "Padding added to each enqueued packet (bytes).",
			Buckets: prometheus.LinearBuckets(0, 64, 24),
		},
	)

	// CumulativePadSeconds is the process-wide cumulative padding accumulator
	// from spec §3/§9, expressed in seconds of wasted bandwidth at the
	// configured packets-per-second rate. Updated only by the obfuscate task.
	CumulativePadSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ditto_cumulative_pad_seconds",
			Help: "Cumulative (Li-l)/R padding cost summed over all pushed packets.",
		},
	)

	// QueueDepth tracks the occupancy of each per-length queue, sampled by the
	// transmit task on every pop. Spec §9 treats occupancy as derived and
	// unobservable to the core scheduler; we still expose it for operators.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ditto_queue_depth",
			Help: "Occupancy of each per-length queue at last pop.",
		}, []string{"slot"})

	// PacingJitterHistogram tracks how far each transmit tick drifted from its
	// scheduled instant, in seconds. Feeds spec §8's pacing law.
	PacingJitterHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "ditto_pacing_jitter_seconds_histogram",
			Help: "Signed drift between the scheduled and actual transmit tick.",
			Buckets: []float64{
				-0.001, -0.0005, -0.0002, -0.0001, -0.00005, 0,
				0.00005, 0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005,
			},
		},
	)

	// DeobfuscateErrorsTotal counts malformed-header fallbacks on egress.
	DeobfuscateErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ditto_deobfuscate_errors_total",
			Help: "Outer IPv4 headers with an out-of-range total_length, forwarded raw.",
		},
	)

	// WindowedPadSeconds reports the padding cost added since the previous
	// padstats.Tracker.EndCycle call, sampled every [general] pad_log_interval
	// pushes (spec §9's windowed-vs-cumulative open question: CumulativePadSeconds
	// is the running total, this is the per-window delta derived on top of it).
	WindowedPadSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ditto_windowed_pad_seconds",
			Help: "Padding cost accumulated during the most recent pad_log_interval window.",
		},
	)
)

// init prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether it occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in ditto.metrics are registered.")
}
