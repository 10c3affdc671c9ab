package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is anything that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthChecker struct {
	db    Pinger
	cache Pinger
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Database ComponentHealth `json:"database"`
	Cache    ComponentHealth `json:"cache"`
	System   *SystemStats    `json:"system,omitempty"`
}

type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
}

type SystemStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

// NewHealthChecker builds a checker; cache may be nil. The database decides
// readiness; a failing cache only degrades it.
func NewHealthChecker(db, cache Pinger) *HealthChecker {
	return &HealthChecker{db: db, cache: cache}
}

func (h *HealthChecker) CheckBasic(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:   "healthy",
		Database: check(ctx, h.db),
		Cache:    check(ctx, h.cache),
	}
	if status.Database.Status != "healthy" {
		status.Status = "unhealthy"
	} else if status.Cache.Status == "unhealthy" {
		status.Status = "degraded"
	}
	return status
}

// CheckDetailed adds host memory and disk usage
func (h *HealthChecker) CheckDetailed(ctx context.Context) HealthStatus {
	status := h.CheckBasic(ctx)

	stats := &SystemStats{}
	if m, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = m.UsedPercent
	}
	if d, err := disk.UsageWithContext(ctx, "/"); err == nil {
		stats.DiskUsedPercent = d.UsedPercent
	}
	status.System = stats
	return status
}

func check(ctx context.Context, p Pinger) ComponentHealth {
	if p == nil {
		return ComponentHealth{Status: "disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentHealth{Status: "unhealthy", ResponseTime: responseTime, Error: err.Error()}
	}
	return ComponentHealth{Status: "healthy", ResponseTime: responseTime}
}
