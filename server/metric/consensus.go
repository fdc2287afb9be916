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
	msHeight        = stats.Int64("consensus_height", "height", stats.UnitDimensionless)
	msRound         = stats.Int64("consensus_round", "round", stats.UnitDimensionless)
	msHeightD       = stats.Int64("consensus_height_duration", "block_duration", stats.UnitMilliseconds)
	msRoundD        = stats.Int64("consensus_round_duration", "round_duration", stats.UnitMilliseconds)
	msEquivocations = stats.Int64("consensus_equivocations", "equivocation evidence", stats.UnitDimensionless)
	msSafetyAlarms  = stats.Int64("consensus_safety_alarms", "conflicting quorums", stats.UnitDimensionless)
	msAbandoned     = stats.Int64("consensus_abandoned_rounds", "abandoned rounds", stats.UnitDimensionless)
	consensusMks    = []tag.Key{}
	consensusOnce   sync.Once
)

func RegisterConsensus() {
	consensusOnce.Do(func() {
		RegisterMetricView(msHeight, view.LastValue(), consensusMks)
		RegisterMetricView(msRound, view.LastValue(), consensusMks)
		RegisterMetricView(msHeightD, view.LastValue(), consensusMks)
		RegisterMetricView(msRoundD, view.LastValue(), consensusMks)
		RegisterMetricView(msEquivocations, view.Count(), consensusMks)
		RegisterMetricView(msSafetyAlarms, view.Count(), consensusMks)
		RegisterMetricView(msAbandoned, view.Count(), consensusMks)
	})
}

type ConsensusMetric struct {
	ctx      context.Context
	heightTs time.Time
	roundTs  time.Time
}

func (m *ConsensusMetric) OnHeight(height int64) {
	now := time.Now()
	d := now.Sub(m.heightTs)
	m.heightTs = now
	m.roundTs = now
	stats.Record(m.ctx, msHeight.M(height), msHeightD.M(int64(d/time.Millisecond)))
}

func (m *ConsensusMetric) OnRound(round int32) {
	now := time.Now()
	d := now.Sub(m.roundTs)
	m.roundTs = now
	stats.Record(m.ctx, msRound.M(int64(round)), msRoundD.M(int64(d/time.Millisecond)))
}

func (m *ConsensusMetric) OnEquivocation() {
	stats.Record(m.ctx, msEquivocations.M(1))
}

func (m *ConsensusMetric) OnSafetyAlarm() {
	stats.Record(m.ctx, msSafetyAlarms.M(1))
}

func (m *ConsensusMetric) OnAbandonedRounds(n int) {
	if n > 0 {
		stats.Record(m.ctx, msAbandoned.M(int64(n)))
	}
}

func NewConsensusMetric(ctx context.Context) *ConsensusMetric {
	now := time.Now()
	return &ConsensusMetric{
		ctx:      ctx,
		heightTs: now,
		roundTs:  now,
	}
}
