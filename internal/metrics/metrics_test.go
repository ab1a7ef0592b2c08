package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"earshot/internal/domain"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.FrameSent()
	m.FrameSent()
	m.FrameDropped(DropSendError)
	m.ConnectFailed(domain.ErrorCodePermissionDenied)
	m.SetState(domain.SessionStateConnected)
	m.SetPlaying(3)

	if got := testutil.ToFloat64(m.FramesSent); got != 2 {
		t.Fatalf("expected 2 frames sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropSendError)); got != 1 {
		t.Fatalf("expected 1 dropped frame, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectFailures.WithLabelValues(string(domain.ErrorCodePermissionDenied))); got != 1 {
		t.Fatalf("expected 1 connect failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionState.WithLabelValues(string(domain.SessionStateConnected))); got != 1 {
		t.Fatalf("expected connected gauge set, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionState.WithLabelValues(string(domain.SessionStateError))); got != 0 {
		t.Fatalf("expected error gauge cleared, got %v", got)
	}
	if got := testutil.ToFloat64(m.PlayingBuffers); got != 3 {
		t.Fatalf("expected 3 playing buffers, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.FrameSent()
	m.FrameGated()
	m.FrameDropped(DropInactive)
	m.ReconnectScheduled()
	m.DecodeError()
	m.ConnectFailed(domain.ErrorCodeSetup)
	m.SetState(domain.SessionStateError)
	m.SetPlaying(1)
	m.TranscriptFlushed()
}
