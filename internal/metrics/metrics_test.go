package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordRequest("GET", OutcomeRule, 500, 20*time.Millisecond)
	c.RecordRequest("GET", OutcomeRule, 500, 30*time.Millisecond)
	c.RecordRequest("POST", OutcomeNotFound, 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", OutcomeRule, "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("POST", OutcomeNotFound, "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCollector_Audit(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordAuditWrite("memory")
	c.RecordAuditFailure("redis")
	c.RecordAuditFailure("redis")
	c.RecordBodyParseFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.auditWrites.WithLabelValues("memory")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.auditFailures.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bodyFailures))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordRequest("GET", OutcomeDefault, 200, time.Millisecond)
		c.RecordBodyParseFailure()
		c.RecordAuditWrite("memory")
		c.RecordAuditFailure("memory")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("GET", OutcomeDefault, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "antbee_mock_requests_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
