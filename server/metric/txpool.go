package metric

import (
	"context"
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	msAddTx      = stats.Int64("txpool_add", "add transaction", stats.UnitBytes)
	msRemoveTx   = stats.Int64("txpool_remove", "remove transaction", stats.UnitDimensionless)
	msDropTx     = stats.Int64("txpool_drop", "drop transaction", stats.UnitBytes)
	msFinLatency = stats.Int64("txlatency_finalize", "finalize transaction latency", stats.UnitMilliseconds)
	txPoolMks    = []tag.Key{}
	txPoolOnce   sync.Once
)

func RegisterTxPool() {
	txPoolOnce.Do(func() {
		RegisterMetricView(msAddTx, view.Count(), txPoolMks)
		RegisterMetricView(msAddTx, view.Sum(), txPoolMks)
		RegisterMetricView(msRemoveTx, view.Count(), txPoolMks)
		RegisterMetricView(msRemoveTx, view.Sum(), txPoolMks)
		RegisterMetricView(msDropTx, view.Count(), txPoolMks)
		RegisterMetricView(msDropTx, view.Sum(), txPoolMks)
		RegisterMetricView(msFinLatency, view.LastValue(), txPoolMks)
	})
}

// TxMetric remembers when each pooled transaction arrived so that the
// latency until finalization can be recorded.
type TxMetric struct {
	lock    sync.Mutex
	context context.Context
	added   map[string]time.Time
}

func (c *TxMetric) OnAddTx(hash []byte, size int) {
	c.lock.Lock()
	c.added[string(hash)] = time.Now()
	c.lock.Unlock()
	stats.Record(c.context, msAddTx.M(int64(size)))
}

func (c *TxMetric) OnDropTx(size int) {
	stats.Record(c.context, msDropTx.M(int64(size)))
}

// OnFinalize records the removal of committed transactions.
func (c *TxMetric) OnFinalize(hashes [][]byte, ts time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, hash := range hashes {
		sHash := string(hash)
		if added, ok := c.added[sHash]; ok {
			delete(c.added, sHash)
			stats.Record(c.context, msFinLatency.M(int64(ts.Sub(added)/time.Millisecond)))
		}
	}
	stats.Record(c.context, msRemoveTx.M(int64(len(hashes))))
}

func NewTxMetric(ctx context.Context) *TxMetric {
	return &TxMetric{
		context: ctx,
		added:   make(map[string]time.Time),
	}
}
