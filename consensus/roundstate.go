package consensus

import (
	"fmt"

	"github.com/icon-project/goagree/common/errors"
)

// RoundState is the record of one round. Records of finished rounds stay
// in the driver so that late votes are still counted against them.
type RoundState struct {
	height   int64
	round    int32
	step     Step
	started  bool
	proposal *ProposalMessage
	votes    *VoteTracker
}

func newRoundState(height int64, round int32, as *AuthoritySet, md *MisbehaviorDetector) *RoundState {
	return &RoundState{
		height: height,
		round:  round,
		step:   StepPropose,
		votes:  newVoteTracker(height, round, as, md),
	}
}

// setStep only moves forward and never leaves a terminal step.
func (rs *RoundState) setStep(step Step) error {
	if rs.step.IsTerminal() || step <= rs.step {
		if step == rs.step {
			return nil
		}
		return errors.InvalidStateError.Errorf("round %d cannot move from %s to %s", rs.round, rs.step, step)
	}
	rs.step = step
	return nil
}

func (rs *RoundState) Round() int32 {
	return rs.round
}

func (rs *RoundState) Step() Step {
	return rs.step
}

func (rs *RoundState) Proposal() *ProposalMessage {
	return rs.proposal
}

func (rs *RoundState) Votes() *VoteTracker {
	return rs.votes
}

func (rs *RoundState) String() string {
	return fmt.Sprintf("RoundState{H:%d R:%d %s started:%v %s}", rs.height, rs.round, rs.step,
		rs.started, rs.votes)
}
