package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWith(reg)

	r.RecordScan("feature_aware", 3, 120, 10, 0.4)
	r.RecordScan("feature_aware", 1, 30, 2, 0.1)
	r.RecordCandidateSkipped("insufficient_data")
	r.RecordProjection(4, 1)
	r.RecordError("scan")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.scans.WithLabelValues("feature_aware")))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.scanWindows.WithLabelValues("feature_aware")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skipped.WithLabelValues("insufficient_data")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.projections.WithLabelValues("retained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.projections.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("scan")))
}
