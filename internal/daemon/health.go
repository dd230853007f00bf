package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the outcome of a single check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is served on the health endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// Health runs every check. A failing status check makes the daemon unhealthy;
// any other failing check only degrades it.
func (d *Daemon) Health() *HealthResponse {
	info := d.Info()
	checks := []HealthCheck{
		checkStatus(info),
		checkBackup(info),
		checkDir("lock_dir", d.keeper.Locks().Dir()),
		checkDir("backup_root", d.keeper.Engine().Root()),
	}

	overall := HealthStatusHealthy
	for i, c := range checks {
		switch {
		case c.Status == HealthStatusHealthy:
		case i == 0:
			overall = c.Status
		case overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	resp := &HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Version:   version.Version,
		Checks:    checks,
	}
	if !info.StartTime.IsZero() {
		resp.Uptime = time.Since(info.StartTime).Truncate(time.Second).String()
	}
	return resp
}

func checkStatus(info Info) HealthCheck {
	c := HealthCheck{Name: "daemon_status"}
	switch info.Status {
	case StatusRunning:
		c.Status, c.Message = HealthStatusHealthy, "running"
	case StatusStarting, StatusStopping:
		c.Status, c.Message = HealthStatusDegraded, string(info.Status)
	default:
		c.Status, c.Message = HealthStatusUnhealthy, string(info.Status)
	}
	return c
}

func checkBackup(info Info) HealthCheck {
	c := HealthCheck{Name: "backup", Status: HealthStatusHealthy}
	switch {
	case info.LastError != "":
		c.Status = HealthStatusDegraded
		c.Message = "last backup failed: " + info.LastError
	case info.LastBackup != nil:
		c.Message = "last backup " + info.LastBackup.Format(time.RFC3339)
	default:
		c.Message = "no backup yet"
	}
	return c
}

// checkDir reports whether dir exists as a directory. A directory that was
// never created yet is fine.
func checkDir(name, dir string) HealthCheck {
	c := HealthCheck{Name: name, Status: HealthStatusHealthy, Message: dir}
	fi, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		c.Message = dir + " (not created yet)"
	case err != nil:
		c.Status, c.Message = HealthStatusDegraded, err.Error()
	case !fi.IsDir():
		c.Status, c.Message = HealthStatusDegraded, fmt.Sprintf("%s is not a directory", dir)
	}
	return c
}

// HealthHandler serves Health as JSON, answering 503 when unhealthy.
func (d *Daemon) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	health := d.Health()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if health.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		d.logger.Warn("Failed to encode health response", logfields.Error(err))
	}
}
