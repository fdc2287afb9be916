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
	mkPath    = NewMetricKey("path")
	mkStatus  = NewMetricKey("status")
	msRequest = stats.Int64("api_request", "api request latency", stats.UnitMilliseconds)
	msFailure = stats.Int64("api_failure", "api failures", stats.UnitDimensionless)
	apiMks    = []tag.Key{mkPath, mkStatus}
	apiOnce   sync.Once
)

func RegisterAPI() {
	apiOnce.Do(func() {
		RegisterMetricView(msRequest, view.Count(), apiMks)
		RegisterMetricView(msRequest, view.LastValue(), apiMks)
		RegisterMetricView(msFailure, view.Count(), apiMks)
	})
}

type APIMetric struct {
	ctx context.Context
}

func (m *APIMetric) OnRequest(path string, status string, d time.Duration, failed bool) {
	ctx, err := tag.New(m.ctx, GetMetricTag(&mkPath, path), GetMetricTag(&mkStatus, status))
	if err != nil {
		return
	}
	stats.Record(ctx, msRequest.M(int64(d/time.Millisecond)))
	if failed {
		stats.Record(ctx, msFailure.M(1))
	}
}

func NewAPIMetric(ctx context.Context) *APIMetric {
	return &APIMetric{ctx: ctx}
}
