package metrics

import (
	"time"

	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/model"
)

// Collector periodically samples ledger totals into the gauge metrics
// above, the same ticker/stopCh shape the teacher's manager collector
// used to sample cluster totals — here aimed at the crate/task ledger
// instead of nodes and services.
type Collector struct {
	db     *ledger.DB
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over db.
func NewCollector(db *ledger.DB) *Collector {
	return &Collector{
		db:     db,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
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
	c.collectCrateMetrics()
	c.collectTaskMetrics()
}

func (c *Collector) collectCrateMetrics() {
	if n, err := c.db.Crates.Count(); err == nil {
		CratesTotal.Set(float64(n))
	}
	if n, err := c.db.CrateVersions.Count(); err == nil {
		CrateVersionsTotal.Set(float64(n))
	}
}

func (c *Collector) collectTaskMetrics() {
	counts := make(map[[2]string]int)
	err := c.db.Tasks.ForEach(func(_ string, task model.Task) error {
		counts[[2]string{task.Process, task.State.Kind.String()}]++
		return nil
	})
	if err != nil {
		return
	}
	for k, count := range counts {
		TasksTotal.WithLabelValues(k[0], k[1]).Set(float64(count))
	}
}
