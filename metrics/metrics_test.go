package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	m, err := New("redact_client", "127.0.0.1:0")
	require.NoError(t, err)

	c := m.Collectors()
	c.SessionsStarted.Inc()
	c.Authorizations.WithLabelValues("authorized").Inc()
	c.Authorizations.WithLabelValues("denied").Add(2)
	c.ObserveSince("secure_get", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.SessionsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Authorizations.WithLabelValues("denied")))

	rec := httptest.NewRecorder()
	m.srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "redact_client_sessions_started_total 1")
	assert.Contains(t, rec.Body.String(), `redact_client_authorizations_total{decision="denied"} 2`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
