package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/errors"
)

func TestVoteTracker_QuorumThresholds(t *testing.T) {
	tests := []struct {
		n         int
		threshold int64
	}{
		{1, 1},
		{3, 3},
		{4, 3},
		{5, 4},
		{7, 5},
	}
	for _, tt := range tests {
		ws := newTestWallets(tt.n)
		as := newTestAuthoritySet(t, ws)
		vt := newVoteTracker(1, 0, as, newTestDetector(t))
		target := newTestBlock(1, "q", ws[0]).Ref()
		for i, w := range ws {
			out, err := vt.AddVote(mustVote(t, w, VoteTypePrevote, 1, 0, target))
			require.NoError(t, err)
			require.Equal(t, Accepted, out)
			_, ok := vt.QuorumFor(VoteTypePrevote)
			assert.Equal(t, int64(i+1) >= tt.threshold, ok, "n=%d votes=%d", tt.n, i+1)
		}
	}
}

func TestVoteTracker_MixedTargets(t *testing.T) {
	ws := newTestWallets(4)
	vt := newVoteTracker(5, 1, newTestAuthoritySet(t, ws), newTestDetector(t))
	b := newTestBlock(5, "b", ws[0]).Ref()

	for i, target := range []block.Ref{b, {}, b} {
		out, err := vt.AddVote(mustVote(t, ws[i], VoteTypePrecommit, 5, 1, target))
		require.NoError(t, err)
		require.Equal(t, Accepted, out)
	}
	assert.True(t, vt.HasQuorumWeight(VoteTypePrecommit))
	_, ok := vt.QuorumFor(VoteTypePrecommit)
	assert.False(t, ok)
	assert.Nil(t, vt.Certificate(VoteTypePrecommit))
	assert.EqualValues(t, 2, vt.WeightFor(VoteTypePrecommit, b))
	assert.EqualValues(t, 1, vt.WeightFor(VoteTypePrecommit, block.Ref{}))
	assert.False(t, vt.HasQuorumWeight(VoteTypePrevote))

	out, err := vt.AddVote(mustVote(t, ws[3], VoteTypePrecommit, 5, 1, b))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	target, ok := vt.QuorumFor(VoteTypePrecommit)
	require.True(t, ok)
	assert.True(t, target.Equal(b))

	qc := vt.Certificate(VoteTypePrecommit)
	require.NotNil(t, qc)
	assert.Len(t, qc.Votes, 3)
	assert.NoError(t, qc.Verify(vt.as))
	assert.Len(t, vt.Votes(VoteTypePrecommit), 4)
}

func TestVoteTracker_FirstVoteCounts(t *testing.T) {
	ws := newTestWallets(4)
	md := newTestDetector(t)
	vt := newVoteTracker(5, 0, newTestAuthoritySet(t, ws), md)
	b1 := newTestBlock(5, "b1", ws[0]).Ref()
	b2 := newTestBlock(5, "b2", ws[0]).Ref()

	first := mustVote(t, ws[1], VoteTypePrevote, 5, 0, b1)
	out, err := vt.AddVote(first)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	out, err = vt.AddVote(first)
	assert.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, out)

	// the same content signed again is the same vote
	out, err = vt.AddVote(mustVote(t, ws[1], VoteTypePrevote, 5, 0, b1))
	assert.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, out)

	second := mustVote(t, ws[1], VoteTypePrevote, 5, 0, b2)
	for i := 0; i < 2; i++ {
		out, err = vt.AddVote(second)
		assert.NoError(t, err)
		assert.Equal(t, EquivocationDetected, out)
	}
	assert.Equal(t, 1, md.Len())
	assert.EqualValues(t, 1, vt.WeightFor(VoteTypePrevote, b1))
	assert.EqualValues(t, 0, vt.WeightFor(VoteTypePrevote, b2))
	assert.Same(t, first, vt.VoteOf(VoteTypePrevote, ws[1].Address()))

	evs := md.EvidenceFor(ws[1].Address())
	require.Len(t, evs, 1)
	v1, v2, err := evs[0].Votes()
	require.NoError(t, err)
	assert.True(t, v1.Target.Equal(b1))
	assert.True(t, v2.Target.Equal(b2))

	// a different stage is independent
	out, err = vt.AddVote(mustVote(t, ws[1], VoteTypePrecommit, 5, 0, b2))
	assert.NoError(t, err)
	assert.Equal(t, Accepted, out)
}

func TestVoteTracker_Rejects(t *testing.T) {
	ws := newTestWallets(4)
	vt := newVoteTracker(5, 0, newTestAuthoritySet(t, ws), newTestDetector(t))

	out, err := vt.AddVote(mustVote(t, ws[0], VoteTypePrevote, 6, 0, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidMessageError.Equals(err))

	out, err = vt.AddVote(mustVote(t, ws[0], VoteTypePrevote, 5, 1, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidMessageError.Equals(err))

	out, err = vt.AddVote(mustVote(t, ws[0], VoteType(7), 5, 0, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidMessageError.Equals(err))

	outsider := newTestWallets(1)[0]
	out, err = vt.AddVote(mustVote(t, outsider, VoteTypePrevote, 5, 0, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.UnknownAuthorityError.Equals(err))

	v := mustVote(t, outsider, VoteTypePrevote, 5, 0, block.Ref{})
	stolen := &VoteMessage{
		Height:    v.Height,
		Round:     v.Round,
		Type:      v.Type,
		Authority: ws[2].Address(),
		Signature: v.Signature,
	}
	out, err = vt.AddVote(stolen)
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidSignatureError.Equals(err))

	assert.EqualValues(t, 0, vt.TotalWeight(VoteTypePrevote))
}

func TestVoteTracker_WeightedRoster(t *testing.T) {
	ws := newTestWallets(3)
	as, err := NewAuthoritySet([]Authority{
		{Address: ws[0].Address(), Weight: 5},
		{Address: ws[1].Address(), Weight: 3},
		{Address: ws[2].Address(), Weight: 2},
	}, RoundRobin{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, as.QuorumThreshold())

	vt := newVoteTracker(1, 0, as, nil)
	b := newTestBlock(1, "w", ws[0]).Ref()
	vt.AddVote(mustVote(t, ws[0], VoteTypePrevote, 1, 0, b))
	vt.AddVote(mustVote(t, ws[2], VoteTypePrevote, 1, 0, b))
	target, ok := vt.QuorumFor(VoteTypePrevote)
	require.True(t, ok)
	assert.True(t, target.Equal(b))
	assert.EqualValues(t, 7, vt.WeightFor(VoteTypePrevote, b))
}
