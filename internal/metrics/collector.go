package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"hls-ingest/internal/logging"

	"golang.org/x/sys/unix"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// Stats holds the current statistics
type Stats struct {
	JobsByStatus map[string]int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	volumes       map[string]string
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector. volumes maps a label
// ("uploads", "videos", ...) to the directory whose free space is reported.
func NewCollector(provider StatsProvider, volumes map[string]string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		volumes:       volumes,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectJobs()
	c.collectVolumes()
	c.collectRuntime()
}

func (c *Collector) collectJobs() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("Failed to collect job stats: %v", err)
		return
	}

	JobsByStatus.Reset()
	for status, count := range stats.JobsByStatus {
		JobsByStatus.WithLabelValues(status).Set(float64(count))
	}

	logging.Debug("Metrics collected: %d job statuses", len(stats.JobsByStatus))
}

func (c *Collector) collectVolumes() {
	for name, dir := range c.volumes {
		var st unix.Statfs_t
		if err := unix.Statfs(dir, &st); err != nil {
			logging.Debug("statfs %s (%s) failed: %v", name, dir, err)
			continue
		}
		RootFreeBytes.WithLabelValues(name).Set(float64(st.Bavail) * float64(st.Bsize))
	}
}

func (c *Collector) collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))
	GoMemSysBytes.Set(float64(m.Sys))
}
