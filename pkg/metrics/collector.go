package metrics

import (
	"time"

	"github.com/cuemby/stratum/pkg/types"
)

// QueueStatter is the minimal surface the collector needs from the task
// store to populate gauges. Defined here, not in pkg/storage, so pkg/storage
// does not need to depend on pkg/metrics.
type QueueStatter interface {
	CountByStatus() (map[types.Status]int, error)
	UsedFraction() (float64, error)
}

// Collector periodically snapshots queue-wide gauges that are cheap to
// recompute but not naturally updated on every mutation (used fraction,
// per-status totals).
type Collector struct {
	store  QueueStatter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector bound to a task store.
func NewCollector(store QueueStatter) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second tick, matching the
// teacher's periodic-gauge-refresh cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStatusCounts()
	c.collectUsedFraction()
}

func (c *Collector) collectStatusCounts() {
	counts, err := c.store.CountByStatus()
	if err != nil {
		return
	}
	for status, count := range counts {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectUsedFraction() {
	fraction, err := c.store.UsedFraction()
	if err != nil {
		return
	}
	QueueUsedFraction.Set(fraction)
}
