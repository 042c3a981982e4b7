package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage label values for pipeline timing
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Metrics contains all Prometheus metrics for the voice pipeline
type Metrics struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed prometheus.Counter
	AuthRejected   prometheus.Counter

	// Turn metrics
	TurnsCompleted  prometheus.Counter
	TurnsNoSpeech   prometheus.Counter
	TurnsSuppressed prometheus.Counter
	TurnsFailed     *prometheus.CounterVec

	// Stream metrics
	AudioFramesIn    prometheus.Counter
	AudioBytesIn     prometheus.Counter
	AudioChunksOut   prometheus.Counter
	AudioBytesOut    prometheus.Counter
	PartialsEmitted  prometheus.Counter

	// Stage timing
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on the given registry.
// Tests pass a fresh registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swara_sessions_active",
			Help: "Current number of open voice sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_sessions_opened_total",
			Help: "Total number of voice sessions opened",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_sessions_closed_total",
			Help: "Total number of voice sessions closed",
		}),
		AuthRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_auth_rejected_total",
			Help: "Total number of connections rejected for bad tokens",
		}),

		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_turns_completed_total",
			Help: "Total number of turns that produced a spoken reply",
		}),
		TurnsNoSpeech: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_turns_no_speech_total",
			Help: "Total number of turns that ended with an empty transcript",
		}),
		TurnsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_turns_suppressed_total",
			Help: "Total number of replies suppressed by the echo heuristic",
		}),
		TurnsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swara_turns_failed_total",
			Help: "Total number of turns failed, by pipeline stage",
		}, []string{"stage"}),

		AudioFramesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_audio_frames_in_total",
			Help: "Total number of microphone audio frames received",
		}),
		AudioBytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_audio_bytes_in_total",
			Help: "Total bytes of microphone audio received",
		}),
		AudioChunksOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_audio_chunks_out_total",
			Help: "Total number of reply audio chunks sent",
		}),
		AudioBytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_audio_bytes_out_total",
			Help: "Total bytes of reply audio sent",
		}),
		PartialsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "swara_partials_emitted_total",
			Help: "Total number of interim transcripts forwarded to clients",
		}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swara_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"stage"}),
	}
}
