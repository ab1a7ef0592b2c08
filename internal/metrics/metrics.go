package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"earshot/internal/domain"
)

// Drop reasons for outbound frames.
const (
	DropInactive  = "inactive"
	DropSendError = "send_error"
)

// Metrics contains the pipeline's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FramesSent        prometheus.Counter
	FramesGated       prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	ReconnectsTotal   prometheus.Counter
	DecodeErrors      prometheus.Counter
	ConnectFailures   *prometheus.CounterVec
	SessionState      *prometheus.GaugeVec
	PlayingBuffers    prometheus.Gauge
	TranscriptFlushes prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_frames_sent_total",
			Help: "Total number of audio frames handed to the live session",
		}),
		FramesGated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_frames_gated_total",
			Help: "Total number of blocks silenced by the noise gate",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_frames_dropped_total",
			Help: "Total number of audio blocks dropped before or during send",
		}, []string{"reason"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_reconnects_scheduled_total",
			Help: "Total number of automatic reconnect attempts scheduled",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_reply_decode_errors_total",
			Help: "Total number of reply-audio chunks skipped because they failed to decode",
		}),
		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_connect_failures_total",
			Help: "Total number of fatal connect failures by error code",
		}, []string{"code"}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "earshot_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		PlayingBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "earshot_playing_buffers",
			Help: "Current number of reply-audio buffers playing or scheduled",
		}),
		TranscriptFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_transcript_flushes_total",
			Help: "Total number of debounced transcript buffer flushes",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSent,
			m.FramesGated,
			m.FramesDropped,
			m.ReconnectsTotal,
			m.DecodeErrors,
			m.ConnectFailures,
			m.SessionState,
			m.PlayingBuffers,
			m.TranscriptFlushes,
		)
	}
	return m
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) FrameGated() {
	if m == nil {
		return
	}
	m.FramesGated.Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) ConnectFailed(code domain.ErrorCode) {
	if m == nil {
		return
	}
	m.ConnectFailures.WithLabelValues(string(code)).Inc()
}

// SetState marks state as the current session state.
func (m *Metrics) SetState(state domain.SessionState) {
	if m == nil {
		return
	}
	for _, s := range []domain.SessionState{
		domain.SessionStateDisconnected,
		domain.SessionStateConnecting,
		domain.SessionStateConnected,
		domain.SessionStateError,
	} {
		value := 0.0
		if s == state {
			value = 1
		}
		m.SessionState.WithLabelValues(string(s)).Set(value)
	}
}

func (m *Metrics) SetPlaying(n int) {
	if m == nil {
		return
	}
	m.PlayingBuffers.Set(float64(n))
}

func (m *Metrics) TranscriptFlushed() {
	if m == nil {
		return
	}
	m.TranscriptFlushes.Inc()
}
