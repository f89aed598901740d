// Package monitor observes the running daemon: periodic system metrics and
// repeated-failure alerting.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// SchedulerStats exposes the live counters the collector reports alongside
// system metrics.
type SchedulerStats interface {
	// PendingCount is the number of jobs with a pending due entry.
	PendingCount() int
	// RunningCount is the number of in-flight job runs.
	RunningCount() int
}

// Metrics is one collected sample.
type Metrics struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	PendingJobs int       `json:"pending_jobs"`
	RunningJobs int       `json:"running_jobs"`
}

// MetricsCollector samples system and scheduler metrics on an interval and
// logs them.
type MetricsCollector struct {
	logger   *zap.Logger
	interval time.Duration
	stats    SchedulerStats

	mu   sync.RWMutex
	last Metrics
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(stats SchedulerStats, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics"),
		interval: interval,
		stats:    stats,
	}
}

// Start runs the collection loop until ctx is cancelled.
func (c *MetricsCollector) Start(ctx context.Context) {
	c.logger.Info("metrics collector started", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("metrics collector stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect gathers one sample and logs it.
func (c *MetricsCollector) collect() {
	metrics := Metrics{
		Timestamp:   time.Now(),
		PendingJobs: c.stats.PendingCount(),
		RunningJobs: c.stats.RunningCount(),
	}

	if cpuPercent, err := cpu.Percent(0, false); err != nil {
		c.logger.Warn("failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemory(); err != nil {
		c.logger.Warn("failed to get memory usage", zap.Error(err))
	} else {
		metrics.MemoryUsage = memInfo.UsedPercent
	}

	c.mu.Lock()
	c.last = metrics
	c.mu.Unlock()

	c.logger.Info("metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("pending_jobs", metrics.PendingJobs),
		zap.Int("running_jobs", metrics.RunningJobs))
}

// LastMetrics returns the most recently collected sample.
func (c *MetricsCollector) LastMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
