package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/health", "200", time.Millisecond)
		m.RetrievalBranch("empty")
		m.RerankDegraded()
		m.LeafFailure("lexical")
		m.Ingestion("ready")
	})
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := New("test")
	m.RetrievalBranch("document_fallback")
	m.RetrievalBranch("document_fallback")
	m.RerankDegraded()
	m.LeafFailure("vector")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.retrievalBranch.WithLabelValues("document_fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rerankDegraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leafFailures.WithLabelValues("vector")))
}
