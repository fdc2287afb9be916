package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
)

func TestAuthoritySet_Thresholds(t *testing.T) {
	tests := []struct {
		total     int64
		threshold int64
		faults    int64
	}{
		{1, 1, 0},
		{2, 2, 0},
		{3, 3, 0},
		{4, 3, 1},
		{7, 5, 2},
		{10, 7, 3},
		{100, 67, 33},
	}
	for _, tt := range tests {
		as, err := NewAuthoritySet([]Authority{
			{Address: common.Address{1}, Weight: tt.total},
		}, RoundRobin{})
		require.NoError(t, err)
		assert.Equal(t, tt.threshold, as.QuorumThreshold(), "total=%d", tt.total)
		assert.Equal(t, tt.faults, as.FaultTolerance(), "total=%d", tt.total)
		assert.Greater(t, 3*as.QuorumThreshold(), 2*as.TotalWeight())
	}
}

func TestAuthoritySet_Invalid(t *testing.T) {
	tests := []struct {
		name string
		list []Authority
	}{
		{"empty", nil},
		{"zero address", []Authority{{Weight: 1}}},
		{"zero weight", []Authority{{Address: common.Address{1}}}},
		{"negative weight", []Authority{{Address: common.Address{1}, Weight: -2}}},
		{"duplicate", []Authority{
			{Address: common.Address{1}, Weight: 1},
			{Address: common.Address{1}, Weight: 2},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthoritySet(tt.list, RoundRobin{})
			assert.True(t, errors.FatalConfigError.Equals(err))
		})
	}
	_, err := NewAuthoritySet([]Authority{{Address: common.Address{1}, Weight: 1}}, nil)
	assert.True(t, errors.FatalConfigError.Equals(err))
}

func TestAuthoritySet_Lookup(t *testing.T) {
	addrs := []common.Address{{1}, {2}, {3}}
	as, err := NewEqualAuthoritySet(addrs, RoundRobin{})
	require.NoError(t, err)

	assert.Equal(t, 3, as.Len())
	assert.EqualValues(t, 3, as.TotalWeight())
	assert.True(t, as.IsAuthority(addrs[1]))
	assert.False(t, as.IsAuthority(common.Address{9}))
	assert.Equal(t, 2, as.IndexOf(addrs[2]))
	assert.Equal(t, -1, as.IndexOf(common.Address{9}))
	assert.EqualValues(t, 0, as.WeightOf(common.Address{9}))
	assert.Equal(t, addrs[0], as.Get(0).Address)

	list := as.Authorities()
	list[0].Weight = 100
	assert.EqualValues(t, 1, as.WeightOf(addrs[0]))
}

func TestProposalSelector(t *testing.T) {
	list := []Authority{
		{Address: common.Address{1}, Weight: 2},
		{Address: common.Address{2}, Weight: 1},
		{Address: common.Address{3}, Weight: 1},
	}

	rr := RoundRobin{Offset: 4}
	assert.Equal(t, common.Address{2}, rr.Select(0, list))
	assert.Equal(t, common.Address{3}, rr.Select(1, list))
	assert.Equal(t, common.Address{1}, rr.Select(2, list))
	assert.Equal(t, rr.Select(7, list), rr.Select(7, list))

	wrr := WeightedRoundRobin{}
	var got []common.Address
	for r := int32(0); r < 8; r++ {
		got = append(got, wrr.Select(r, list))
	}
	assert.Equal(t, []common.Address{
		{1}, {1}, {2}, {3},
		{1}, {1}, {2}, {3},
	}, got)

	s, err := NewProposalSelector(SelectorWeightedRoundRobin, 3)
	require.NoError(t, err)
	assert.Equal(t, WeightedRoundRobin{Offset: 3}, s)
	_, err = NewProposalSelector("random", 0)
	assert.True(t, errors.FatalConfigError.Equals(err))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero propose", func(c *Config) { c.TimeoutPropose = 0 }},
		{"max below base", func(c *Config) { c.TimeoutMax = c.TimeoutPrevote / 2 }},
		{"negative commit", func(c *Config) { c.TimeoutCommit = -time.Second }},
		{"selector", func(c *Config) { c.Selector = "random" }},
		{"queue", func(c *Config) { c.EventQueueSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			assert.True(t, errors.FatalConfigError.Equals(c.Validate()))
		})
	}
}

func TestConfig_TimeoutGrowth(t *testing.T) {
	c := DefaultConfig()
	c.TimeoutPrevote = time.Second
	c.TimeoutMax = 5 * time.Second
	assert.Equal(t, time.Second, c.timeoutFor(StepPrevoting, 0))
	assert.Equal(t, 2*time.Second, c.timeoutFor(StepPrevoting, 1))
	assert.Equal(t, 4*time.Second, c.timeoutFor(StepPrevoting, 2))
	assert.Equal(t, 5*time.Second, c.timeoutFor(StepPrevoting, 3))
	assert.Equal(t, 5*time.Second, c.timeoutFor(StepPrevoting, 1000))
}

func TestRoundState_StepsMoveForward(t *testing.T) {
	ws := newTestWallets(1)
	rs := newRoundState(1, 0, newTestAuthoritySet(t, ws), nil)
	assert.NoError(t, rs.setStep(StepPrevoting))
	assert.NoError(t, rs.setStep(StepPrevoting))
	assert.True(t, errors.InvalidStateError.Equals(rs.setStep(StepPropose)))
	assert.NoError(t, rs.setStep(StepAbandoned))
	assert.True(t, errors.InvalidStateError.Equals(rs.setStep(StepCommitted)))
	assert.Equal(t, StepAbandoned, rs.Step())
}
