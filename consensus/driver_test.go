package consensus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/module"
)

const testHeight = 10

func (env *testDriverEnv) prevotes(t *testing.T, round int32, target block.Ref, from ...int) {
	for _, i := range from {
		env.handle(t, mustVote(t, env.ws[i], VoteTypePrevote, testHeight, round, target))
	}
}

func (env *testDriverEnv) precommits(t *testing.T, round int32, target block.Ref, from ...int) {
	for _, i := range from {
		env.handle(t, mustVote(t, env.ws[i], VoteTypePrecommit, testHeight, round, target))
	}
}

func certificateFor(t *testing.T, ws []module.Wallet, round int32, blk *block.Block, from ...int) *CertificateMessage {
	var votes []*VoteMessage
	for _, i := range from {
		votes = append(votes, mustVote(t, ws[i], VoteTypePrecommit, testHeight, round, blk.Ref()))
	}
	return &CertificateMessage{
		Certificate: newQuorumCertificate(testHeight, round, VoteTypePrecommit, blk.Ref(), votes),
		Block:       blk,
	}
}

func TestDriver_HappyPath(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	assert.Equal(t, State{Height: testHeight, Round: 0, Step: StepPropose}, env.d.State())
	assert.Equal(t, StepPropose, env.ctx.timer.Step)
	assert.False(t, env.d.IsProposer())

	blk := newTestBlock(testHeight, "b0", env.ws[0])
	out := env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, blk))
	assert.Equal(t, Accepted, out)
	assert.Equal(t, StepPrevoting, env.d.State().Step)
	pv := env.ctx.lastVote(VoteTypePrevote)
	require.NotNil(t, pv)
	assert.True(t, pv.Target.Equal(blk.Ref()))

	env.prevotes(t, 0, blk.Ref(), 0, 1)
	assert.Equal(t, StepPrecommitting, env.d.State().Step)
	pc := env.ctx.lastVote(VoteTypePrecommit)
	require.NotNil(t, pc)
	assert.True(t, pc.Target.Equal(blk.Ref()))
	assert.EqualValues(t, 0, env.d.lockedRound)

	env.precommits(t, 0, blk.Ref(), 0, 1)
	require.Len(t, env.ctx.commits, 1)
	c := env.ctx.commits[0]
	assert.EqualValues(t, testHeight, c.Height)
	assert.EqualValues(t, 0, c.Round)
	assert.True(t, c.Block.Ref().Equal(blk.Ref()))
	assert.NoError(t, c.Verify(env.as))
	assert.Equal(t, StepCommitted, env.d.State().Step)
	assert.Equal(t, StepCommitted, env.d.RoundState(0).Step())
	assert.Same(t, c, env.d.Committed())

	// a late vote is still counted but changes nothing
	broadcasts := len(env.ctx.broadcasts)
	out = env.handle(t, mustVote(t, env.ws[2], VoteTypePrevote, testHeight, 0, block.Ref{}))
	assert.Equal(t, Accepted, out)
	assert.Len(t, env.ctx.commits, 1)
	assert.Len(t, env.ctx.broadcasts, broadcasts)
	assert.EqualValues(t, 4, env.d.RoundState(0).Votes().TotalWeight(VoteTypePrevote))
}

func TestDriver_ProposerProposesOnStart(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 0)
	blk := newTestBlock(testHeight, "mine", env.ws[0])
	env.ctx.propose = func(height int64, round int32) (*block.Block, error) {
		assert.EqualValues(t, testHeight, height)
		assert.EqualValues(t, 0, round)
		return blk, nil
	}
	env.d.Start()

	assert.True(t, env.d.IsProposer())
	p := env.ctx.lastProposal()
	require.NotNil(t, p)
	assert.True(t, p.Target.Equal(blk.Ref()))
	assert.EqualValues(t, -1, p.POLRound)
	assert.NoError(t, p.Verify())

	pv := env.ctx.lastVote(VoteTypePrevote)
	require.NotNil(t, pv)
	assert.True(t, pv.Target.Equal(blk.Ref()))
}

func TestDriver_InvalidBlockGetsNilPrevote(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.ctx.valid = func(*block.Block) bool { return false }
	env.d.Start()

	blk := newTestBlock(testHeight, "bad", env.ws[0])
	env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, blk))
	pv := env.ctx.lastVote(VoteTypePrevote)
	require.NotNil(t, pv)
	assert.True(t, pv.Target.IsNil())
}

func TestDriver_TimeoutMovesToNextRound(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 1)
	blk := newTestBlock(testHeight, "r1", env.ws[1])
	env.ctx.propose = func(height int64, round int32) (*block.Block, error) {
		return blk, nil
	}
	env.d.Start()
	assert.Nil(t, env.ctx.lastProposal())

	require.True(t, env.d.OnTimeout(env.ctx.timer))
	assert.Equal(t, StepPrevoting, env.d.State().Step)
	pv := env.ctx.lastVote(VoteTypePrevote)
	require.NotNil(t, pv)
	assert.True(t, pv.Target.IsNil())

	env.prevotes(t, 0, block.Ref{}, 0, 2)
	assert.Equal(t, StepPrecommitting, env.d.State().Step)
	pc := env.ctx.lastVote(VoteTypePrecommit)
	require.NotNil(t, pc)
	assert.True(t, pc.Target.IsNil())
	assert.EqualValues(t, -1, env.d.lockedRound)

	env.precommits(t, 0, block.Ref{}, 0, 2)
	assert.EqualValues(t, 1, env.d.Round())
	assert.Equal(t, StepAbandoned, env.d.RoundState(0).Step())
	assert.True(t, env.d.IsProposer())

	p := env.ctx.lastProposal()
	require.NotNil(t, p)
	assert.EqualValues(t, 1, p.Round)
	assert.True(t, p.Target.Equal(blk.Ref()))
	pv = env.ctx.lastVote(VoteTypePrevote)
	assert.EqualValues(t, 1, pv.Round)
	assert.True(t, pv.Target.Equal(blk.Ref()))
	assert.Empty(t, env.ctx.commits)
}

func TestDriver_PrevoteTimeoutAbandonsRound(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	require.True(t, env.d.OnTimeout(env.ctx.timer))
	prevoteTimer := env.ctx.timer
	assert.Equal(t, StepPrevoting, prevoteTimer.Step)
	assert.Equal(t, testConfig().TimeoutPrevote, env.ctx.timeout)

	require.True(t, env.d.OnTimeout(prevoteTimer))
	assert.EqualValues(t, 1, env.d.Round())
	assert.Equal(t, StepAbandoned, env.d.RoundState(0).Step())
	assert.Equal(t, StepPropose, env.ctx.timer.Step)
	assert.EqualValues(t, 1, env.ctx.timer.Round)
	assert.Equal(t, 2*testConfig().TimeoutPropose, env.ctx.timeout)

	// the same id does not fire twice
	assert.False(t, env.d.OnTimeout(prevoteTimer))
	assert.EqualValues(t, 1, env.d.Round())
}

func TestDriver_StaleTimer(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	current := env.ctx.timer

	stale := current
	stale.Seq--
	assert.False(t, env.d.OnTimeout(stale))
	other := current
	other.Height++
	assert.False(t, env.d.OnTimeout(other))
	assert.Equal(t, StepPropose, env.d.State().Step)

	assert.True(t, env.d.OnTimeout(current))
}

func TestDriver_LateQuorumInLaterRound(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	blk := newTestBlock(testHeight, "r2", env.ws[2])
	env.precommits(t, 2, blk.Ref(), 0, 1, 2)
	assert.EqualValues(t, 2, env.d.Round())
	assert.Equal(t, StepAbandoned, env.d.RoundState(0).Step())
	assert.Empty(t, env.ctx.commits)
	require.NotNil(t, env.d.Pending())
	assert.True(t, env.d.Pending().Target.Equal(blk.Ref()))

	out := env.handle(t, mustProposal(t, env.ws[2], testHeight, 2, -1, blk))
	assert.Equal(t, Accepted, out)
	require.Len(t, env.ctx.commits, 1)
	assert.EqualValues(t, 2, env.ctx.commits[0].Round)
	assert.Nil(t, env.d.Pending())
	assert.NoError(t, env.ctx.commits[0].Verify(env.as))
}

func TestDriver_LateCertificate(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	blk := newTestBlock(testHeight, "r2", env.ws[2])
	cm := certificateFor(t, env.ws, 2, blk, 0, 1, 2)
	assert.Equal(t, Accepted, env.handle(t, cm))
	require.Len(t, env.ctx.commits, 1)
	assert.EqualValues(t, 2, env.ctx.commits[0].Round)
	assert.Equal(t, StepCommitted, env.d.State().Step)

	out, err := env.d.Handle(cm)
	assert.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, out)
	assert.Len(t, env.ctx.commits, 1)
}

func TestDriver_CertificateBelowThreshold(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	blk := newTestBlock(testHeight, "weak", env.ws[2])
	out, err := env.d.Handle(certificateFor(t, env.ws, 0, blk, 0, 1))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidMessageError.Equals(err))

	outsider := newTestWallets(1)[0]
	ws := append([]module.Wallet{outsider}, env.ws[1:3]...)
	out, err = env.d.Handle(certificateFor(t, ws, 0, blk, 0, 1, 2))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.UnknownAuthorityError.Equals(err))
	assert.Empty(t, env.ctx.commits)
}

func TestDriver_LateQuorumInEarlierRound(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	env.prevotes(t, 2, block.Ref{}, 0, 1, 2)
	assert.EqualValues(t, 2, env.d.Round())
	assert.Equal(t, StepPrecommitting, env.d.State().Step)

	blk := newTestBlock(testHeight, "r0", env.ws[0])
	env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, blk))
	env.precommits(t, 0, blk.Ref(), 0, 1, 2)
	require.Len(t, env.ctx.commits, 1)
	assert.EqualValues(t, 0, env.ctx.commits[0].Round)
	assert.EqualValues(t, 2, env.d.Round())
}

func TestDriver_RoundSkipNeedsThresholdWeight(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	env.prevotes(t, 3, block.Ref{}, 0)
	env.precommits(t, 3, block.Ref{}, 1)
	assert.EqualValues(t, 0, env.d.Round())

	env.prevotes(t, 5, block.Ref{}, 0, 1)
	assert.EqualValues(t, 0, env.d.Round())
	env.prevotes(t, 5, block.Ref{}, 2)
	assert.EqualValues(t, 5, env.d.Round())
	assert.Equal(t, StepAbandoned, env.d.RoundState(0).Step())
	assert.Equal(t, StepPropose, env.d.RoundState(3).Step())
}

func TestDriver_RejectedVotesOpenNoRounds(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	outsider := newTestWallets(1)[0]

	for r := int32(1000); r < 1100; r++ {
		out, err := env.d.Handle(mustVote(t, outsider, VoteTypePrevote, testHeight, r, block.Ref{}))
		assert.Equal(t, Rejected, out)
		assert.True(t, errors.UnknownAuthorityError.Equals(err))
	}
	out, err := env.d.Handle(mustVote(t, env.ws[0], VoteTypePrevote, testHeight, 2999, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.StaleMessageError.Equals(err))
	assert.Nil(t, env.d.RoundState(2999))
	assert.Len(t, env.d.rounds, 1)

	env.prevotes(t, maxRoundsAhead, block.Ref{}, 0)
	assert.NotNil(t, env.d.RoundState(maxRoundsAhead))
	assert.Len(t, env.d.rounds, 2)
}

func TestDriver_RoundsNeverGoBack(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	last := env.d.Round()
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		round := int32(r.Intn(6))
		vt := VoteType(r.Intn(2))
		from := r.Intn(3)
		if _, err := env.d.Handle(mustVote(t, env.ws[from], vt, testHeight, round, block.Ref{})); err != nil {
			t.Fatalf("vote %d: %+v", i, err)
		}
		if r.Intn(4) == 0 {
			env.d.OnTimeout(env.ctx.timer)
		}
		assert.GreaterOrEqual(t, env.d.Round(), last)
		last = env.d.Round()
	}
	assert.Empty(t, env.ctx.commits)
}

func TestDriver_ReorderedDeliveryCommitsSameBlock(t *testing.T) {
	ws := newTestWallets(4)
	blk := newTestBlock(testHeight, "reorder", ws[0])
	ref := blk.Ref()

	var msgs []Message
	p, err := NewProposalMessage(ws[0], testHeight, 0, -1, blk)
	require.NoError(t, err)
	msgs = append(msgs, p)
	for _, w := range ws {
		msgs = append(msgs, mustVote(t, w, VoteTypePrevote, testHeight, 0, ref))
		msgs = append(msgs, mustVote(t, w, VoteTypePrecommit, testHeight, 0, ref))
	}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		env := newTestDriverWith(t, ws, testHeight, -1)
		env.d.Start()
		r.Shuffle(len(msgs), func(i, j int) {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		})
		for _, msg := range msgs {
			out := env.handle(t, msg)
			assert.Equal(t, Accepted, out)
		}
		require.Len(t, env.ctx.commits, 1)
		assert.True(t, env.ctx.commits[0].Block.Ref().Equal(ref))
		assert.Empty(t, env.ctx.broadcasts)
	}
}

func TestDriver_LockedProposerReproposes(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 1)
	env.ctx.propose = func(height int64, round int32) (*block.Block, error) {
		t.Fatal("locked proposer must not build a new block")
		return nil, nil
	}
	env.d.Start()

	blk := newTestBlock(testHeight, "locked", env.ws[0])
	env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, blk))
	env.prevotes(t, 0, blk.Ref(), 0, 2)
	require.EqualValues(t, 0, env.d.lockedRound)
	assert.True(t, env.d.lockedRef.Equal(blk.Ref()))

	require.Equal(t, StepPrecommitting, env.ctx.timer.Step)
	require.True(t, env.d.OnTimeout(env.ctx.timer))
	assert.EqualValues(t, 1, env.d.Round())

	p := env.ctx.lastProposal()
	require.NotNil(t, p)
	assert.EqualValues(t, 1, p.Round)
	assert.EqualValues(t, 0, p.POLRound)
	assert.True(t, p.Target.Equal(blk.Ref()))
	pv := env.ctx.lastVote(VoteTypePrevote)
	assert.EqualValues(t, 1, pv.Round)
	assert.True(t, pv.Target.Equal(blk.Ref()))
}

func TestDriver_LockAndUnlock(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	b0 := newTestBlock(testHeight, "b0", env.ws[0])
	env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, b0))
	env.prevotes(t, 0, b0.Ref(), 0, 1)
	require.EqualValues(t, 0, env.d.lockedRound)
	require.True(t, env.d.OnTimeout(env.ctx.timer))
	require.EqualValues(t, 1, env.d.Round())

	// without a proof of lock a locked node keeps its block
	b1 := newTestBlock(testHeight, "b1", env.ws[1])
	env.handle(t, mustProposal(t, env.ws[1], testHeight, 1, -1, b1))
	pv := env.ctx.lastVote(VoteTypePrevote)
	assert.EqualValues(t, 1, pv.Round)
	assert.True(t, pv.Target.Equal(b0.Ref()))

	env.prevotes(t, 1, b1.Ref(), 0, 1, 2)
	assert.EqualValues(t, 1, env.d.lockedRound)
	assert.True(t, env.d.lockedRef.Equal(b1.Ref()))
	pc := env.ctx.lastVote(VoteTypePrecommit)
	assert.EqualValues(t, 1, pc.Round)
	assert.True(t, pc.Target.Equal(b1.Ref()))
}

func TestDriver_LaterQuorumReleasesLock(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	b0 := newTestBlock(testHeight, "b0", env.ws[0])
	env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, b0))
	env.prevotes(t, 0, b0.Ref(), 0, 1)
	require.True(t, env.d.OnTimeout(env.ctx.timer))

	// round 1 shows a prevote quorum for b1 seen only by others
	b1 := newTestBlock(testHeight, "b1", env.ws[1])
	env.prevotes(t, 1, b1.Ref(), 0, 1)
	require.True(t, env.d.OnTimeout(env.ctx.timer))
	require.True(t, env.d.OnTimeout(env.ctx.timer))
	require.EqualValues(t, 2, env.d.Round())
	env.prevotes(t, 1, b1.Ref(), 2)

	env.handle(t, mustProposal(t, env.ws[2], testHeight, 2, 1, b1))
	pv := env.ctx.lastVote(VoteTypePrevote)
	assert.EqualValues(t, 2, pv.Round)
	assert.True(t, pv.Target.Equal(b1.Ref()))
}

func TestDriver_ProposalChecks(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	blk := newTestBlock(testHeight, "p", env.ws[1])
	out, err := env.d.Handle(mustProposal(t, env.ws[1], testHeight, 0, -1, blk))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.NotProposerError.Equals(err))

	b1 := newTestBlock(testHeight, "one", env.ws[0])
	b2 := newTestBlock(testHeight, "two", env.ws[0])
	p1 := mustProposal(t, env.ws[0], testHeight, 0, -1, b1)
	assert.Equal(t, Accepted, env.handle(t, p1))
	assert.Equal(t, DuplicateIgnored, env.handle(t, p1))
	assert.Equal(t, EquivocationDetected, env.handle(t, mustProposal(t, env.ws[0], testHeight, 0, -1, b2)))

	evs := env.d.Evidence(env.ws[0].Address())
	require.Len(t, evs, 1)
	assert.Equal(t, EvidenceProposal, evs[0].Kind)
	assert.NoError(t, evs[0].Verify())
	assert.Same(t, p1, env.d.RoundState(0).Proposal())
}

func TestDriver_RejectsForeignHeight(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	out, err := env.d.Handle(mustVote(t, env.ws[0], VoteTypePrevote, testHeight+1, 0, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.StaleMessageError.Equals(err))

	v := mustVote(t, env.ws[0], VoteTypePrevote, testHeight, 0, block.Ref{})
	forged := &VoteMessage{
		Height:    v.Height,
		Round:     1,
		Type:      v.Type,
		Authority: v.Authority,
		Signature: v.Signature,
	}
	out, err = env.d.Handle(forged)
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.InvalidSignatureError.Equals(err))
	assert.Nil(t, env.d.RoundState(1))
}

func TestDriver_Abort(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	timer := env.ctx.timer

	env.d.Abort()
	assert.Equal(t, 1, env.ctx.cancelled)
	assert.False(t, env.d.OnTimeout(timer))

	out, err := env.d.Handle(mustVote(t, env.ws[0], VoteTypePrevote, testHeight, 0, block.Ref{}))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.AbortedError.Equals(err))
	assert.Empty(t, env.ctx.commits)
}

func TestDriver_ResumeKeepsVotes(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()
	env.prevotes(t, 0, block.Ref{}, 0)

	env.d.Abort()
	stale := env.ctx.timer
	assert.True(t, env.d.Aborted())

	env.d.Resume()
	assert.False(t, env.d.Aborted())
	assert.False(t, env.d.OnTimeout(stale))
	assert.Equal(t, StepPropose, env.ctx.timer.Step)
	assert.NotEqual(t, stale, env.ctx.timer)
	assert.EqualValues(t, 1, env.d.RoundState(0).Votes().WeightFor(VoteTypePrevote, block.Ref{}))

	env.prevotes(t, 0, block.Ref{}, 1, 2)
	assert.Equal(t, StepPrecommitting, env.d.State().Step)
}

func TestDriver_ConflictingCertificateRaisesAlarm(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	b0 := newTestBlock(testHeight, "b0", env.ws[0])
	env.handle(t, certificateFor(t, env.ws, 0, b0, 0, 1, 2))
	require.Len(t, env.ctx.commits, 1)

	b1 := newTestBlock(testHeight, "b1", env.ws[1])
	out, err := env.d.Handle(certificateFor(t, env.ws, 1, b1, 0, 1, 2))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.SafetyAlarmError.Equals(err))
	require.Len(t, env.ctx.alarms, 1)
	assert.True(t, env.ctx.alarms[0].Local.Equal(b0.Ref()))
	assert.True(t, env.ctx.alarms[0].Remote.Equal(b1.Ref()))
	assert.Len(t, env.ctx.commits, 1)
}

func TestDriver_CertificateAgainstLocalQuorum(t *testing.T) {
	env := newTestDriver(t, 4, testHeight, 3)
	env.d.Start()

	b0 := newTestBlock(testHeight, "b0", env.ws[0])
	env.precommits(t, 0, b0.Ref(), 0, 1, 2)
	require.NotNil(t, env.d.Pending())

	b1 := newTestBlock(testHeight, "b1", env.ws[0])
	out, err := env.d.Handle(certificateFor(t, env.ws, 0, b1, 0, 1, 2))
	assert.Equal(t, Rejected, out)
	assert.True(t, errors.SafetyAlarmError.Equals(err))
	require.Len(t, env.ctx.alarms, 1)
	assert.Equal(t, VoteTypePrecommit, env.ctx.alarms[0].Stage)
	assert.Empty(t, env.ctx.commits)
}
