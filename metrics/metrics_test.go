package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordFrameSent(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFrameSent(320, false)
	m.RecordFrameSent(320, true)

	if got := counterValue(t, m.FramesSent); got != 2 {
		t.Errorf("FramesSent = %v, want 2", got)
	}
	if got := counterValue(t, m.FramesMuted); got != 1 {
		t.Errorf("FramesMuted = %v, want 1", got)
	}
	if got := counterValue(t, m.BytesSent); got != 640 {
		t.Errorf("BytesSent = %v, want 640", got)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())
	a.RecordProtocolError()
	if got := counterValue(t, b.ProtocolErrors); got != 0 {
		t.Errorf("ProtocolErrors on second registry = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionEnded(1, true)
	m.RecordSessionFailedToStart()
	m.RecordFrameSent(10, true)
	m.RecordMessage("final")
	m.RecordProtocolError()
	m.RecordRemoteError()
	m.RecordEnrollment("success")
	m.RecordHTTPRequest("GET", "/healthz", 200, 0.1)
}
