package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("mail:send").End(nil))
	boom := errors.New("smtp down")
	assert.ErrorIs(t, m.Track("mail:send").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mail:send")))
}

func TestSignalAndMailCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSignals("lever", "stored", 3)
	m.AddSignals("lever", "stored", 0)
	m.MailSent("requisition_submitted", nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.signals.WithLabelValues("lever", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mails.WithLabelValues("requisition_submitted", "sent")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.AddSignals("lever", "stored", 1)
	m.MailSent("x", nil)
}
