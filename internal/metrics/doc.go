// Package metrics provides observability hooks for the statekeep state-safety core.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks at call sites:
//
//	mgr := lock.NewManager(dir, lock.WithRecorder(recorder))
//
// PrometheusRecorder registers its collectors on a caller-provided registry;
// HTTPHandler exposes that registry, which the daemon mounts on /metrics.
package metrics
