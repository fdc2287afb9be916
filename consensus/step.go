package consensus

import "fmt"

type Step int

const (
	StepPropose Step = iota
	StepPrevoting
	StepPrecommitting
	StepCommitted
	StepAbandoned
)

func (step Step) String() string {
	switch step {
	case StepPropose:
		return "Propose"
	case StepPrevoting:
		return "Prevoting"
	case StepPrecommitting:
		return "Precommitting"
	case StepCommitted:
		return "Committed"
	case StepAbandoned:
		return "Abandoned"
	default:
		return fmt.Sprintf("Step(%d)", int(step))
	}
}

func (step Step) IsTerminal() bool {
	return step == StepCommitted || step == StepAbandoned
}

type VoteType byte

const (
	VoteTypePrevote VoteType = iota
	VoteTypePrecommit
	numberOfVoteTypes
)

func (vt VoteType) String() string {
	switch vt {
	case VoteTypePrevote:
		return "PreVote"
	case VoteTypePrecommit:
		return "PreCommit"
	default:
		return fmt.Sprintf("VoteType(%d)", byte(vt))
	}
}

func (vt VoteType) IsValid() bool {
	return vt < numberOfVoteTypes
}
