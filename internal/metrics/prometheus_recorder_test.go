package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveLockWait("settings", 120*time.Millisecond, LockAcquired)
	pr.ObserveLockWait("settings", 10*time.Second, LockTimeout)
	pr.ObserveCommit("settings", 5*time.Millisecond, true)
	pr.IncCacheLookup("profiles", true)
	pr.IncCacheLookup("profiles", false)
	pr.IncCacheLookup("profiles", false)
	pr.IncBackupItem("claude", true)
	pr.ObserveBackupDuration(time.Second, true)
	pr.IncHistoryRecord("switch")
	pr.IncNotifyPublish("state.committed", false)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.lockOutcomes.WithLabelValues("settings", "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.lockOutcomes.WithLabelValues("settings", "acquired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.commitResults.WithLabelValues("settings", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.cacheLookups.WithLabelValues("profiles", "miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.backupItems.WithLabelValues("claude", "changed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.historyRecords.WithLabelValues("switch")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.notifyPublish.WithLabelValues("state.committed", "failed")), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveLockWait("x", time.Millisecond, LockError)
		pr.IncCacheLookup("x", true)
		pr.IncBackupItem("x", false)
	})
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, OrNoop(nil))
	pr := NewPrometheusRecorder(nil)
	assert.Same(t, pr, OrNoop(pr))
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncHistoryRecord("backup")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "statekeep_history_records_total"))
}
