package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "statekeep"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	lockWait       *prom.HistogramVec
	lockOutcomes   *prom.CounterVec
	commitDuration *prom.HistogramVec
	commitResults  *prom.CounterVec
	cacheLookups   *prom.CounterVec
	backupItems    *prom.CounterVec
	backupDuration *prom.HistogramVec
	historyRecords *prom.CounterVec
	notifyPublish  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.lockWait = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a resource lock",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"resource"})
		pr.lockOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Lock acquisitions by resource and outcome",
		}, []string{"resource", "outcome"})
		pr.commitDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of atomic state commits including lock wait",
			Buckets:   prom.DefBuckets,
		}, []string{"resource"})
		pr.commitResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Atomic commits by resource and result",
		}, []string{"resource", "result"})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups by cache and hit/miss",
		}, []string{"cache", "result"})
		pr.backupItems = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "backup_items_total",
			Help:      "Backup sources processed by change status",
		}, []string{"source", "status"})
		pr.backupDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of full backup runs",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.historyRecords = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "history_records_total",
			Help:      "Audit history entries recorded by operation kind",
		}, []string{"kind"})
		pr.notifyPublish = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notify_publish_total",
			Help:      "Event notifications published by event and result",
		}, []string{"event", "result"})
		reg.MustRegister(pr.lockWait, pr.lockOutcomes, pr.commitDuration, pr.commitResults, pr.cacheLookups,
			pr.backupItems, pr.backupDuration, pr.historyRecords, pr.notifyPublish)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLockWait(resource string, d time.Duration, outcome LockOutcome) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.WithLabelValues(resource).Observe(d.Seconds())
	p.lockOutcomes.WithLabelValues(resource, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveCommit(resource string, d time.Duration, success bool) {
	if p == nil || p.commitDuration == nil {
		return
	}
	p.commitDuration.WithLabelValues(resource).Observe(d.Seconds())
	p.commitResults.WithLabelValues(resource, resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(cache string, hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(cache, res).Inc()
}

func (p *PrometheusRecorder) IncBackupItem(source string, changed bool) {
	if p == nil || p.backupItems == nil {
		return
	}
	status := "unchanged"
	if changed {
		status = "changed"
	}
	p.backupItems.WithLabelValues(source, status).Inc()
}

func (p *PrometheusRecorder) ObserveBackupDuration(d time.Duration, success bool) {
	if p == nil || p.backupDuration == nil {
		return
	}
	p.backupDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncHistoryRecord(kind string) {
	if p == nil || p.historyRecords == nil {
		return
	}
	p.historyRecords.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncNotifyPublish(event string, success bool) {
	if p == nil || p.notifyPublish == nil {
		return
	}
	p.notifyPublish.WithLabelValues(event, resultLabel(success)).Inc()
}
