package metric

import (
	"context"
	"os"
	"sync"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/icon-project/goagree/common/log"
)

// metric common tag key
var (
	MetricKeyHostname = NewMetricKey("hostname")
	MetricKeyNode     = NewMetricKey("node")
	mKeys             = []tag.Key{MetricKeyHostname, MetricKeyNode}
	MetricTagHostname = tag.Insert(MetricKeyHostname, _resolveHostname())
	mTags             = make(map[*tag.Key]map[string]tag.Mutator)
	mtMtx             sync.Mutex
	exporterOnce      sync.Once
	exporter          *prometheus.Exporter
)

func NewMetricKey(k string) tag.Key {
	key, err := tag.NewKey(k)
	if err != nil {
		log.Panicf("Fail tag.NewKey %s %+v", k, err)
	}
	return key
}

var aggTypeName = map[view.AggType]string{
	view.AggTypeNone:         "",
	view.AggTypeCount:        "_cnt",
	view.AggTypeSum:          "_sum",
	view.AggTypeDistribution: "_dist",
	view.AggTypeLastValue:    "",
}

func NewMetricView(m stats.Measure, a *view.Aggregation, tks []tag.Key) *view.View {
	return &view.View{
		Name:        m.Name() + aggTypeName[a.Type],
		Description: m.Description() + " Aggregated " + a.Type.String(),
		Measure:     m,
		Aggregation: a,
		TagKeys:     append(append([]tag.Key{}, mKeys...), tks...),
	}
}

func RegisterMetricView(m stats.Measure, a *view.Aggregation, tks []tag.Key) {
	if err := view.Register(NewMetricView(m, a, tks)); err != nil {
		log.Panicf("Fail RegisterMetricView view.Register %+v", err)
	}
}

func GetMetricTag(mk *tag.Key, v string) tag.Mutator {
	defer mtMtx.Unlock()
	mtMtx.Lock()

	m, ok := mTags[mk]
	if !ok {
		m = make(map[string]tag.Mutator)
		mTags[mk] = m
	}

	mt, ok := m[v]
	if !ok {
		mt = tag.Upsert(*mk, v)
		m[v] = mt
	}
	return mt
}

// NewMetricContext returns a context tagged with the node name. Several
// validators may run in one process, so the node tag tells them apart.
func NewMetricContext(node string, mts ...tag.Mutator) context.Context {
	if node == "" {
		node = "UNKNOWN"
	}
	mtNode := GetMetricTag(&MetricKeyNode, node)
	ms := append([]tag.Mutator{MetricTagHostname, mtNode}, mts...)
	ctx, err := tag.New(context.Background(), ms...)
	if err != nil {
		log.Panicf("Fail tag.New %+v", err)
	}
	return ctx
}

func _resolveHostname() string {
	if name := os.Getenv("NODE_NAME"); name != "" {
		return name
	}
	name, _ := os.Hostname()
	return name
}

// PromethusExporter registers every view once and returns the exporter
// serving them.
func PromethusExporter() *prometheus.Exporter {
	exporterOnce.Do(func() {
		pe, err := prometheus.NewExporter(prometheus.Options{
			Namespace: "goagree",
			OnError: func(err error) {
				log.Warnf("prometheus exporter err=%+v", err)
			},
		})
		if err != nil {
			log.Errorf("Failed to create Prometheus exporter: %+v", err)
		}
		view.SetReportingPeriod(1000 * time.Millisecond)

		RegisterConsensus()
		RegisterTxPool()
		RegisterAPI()
		exporter = pe
	})
	return exporter
}
