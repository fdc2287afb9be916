package consensus

import (
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
)

// ProposalSelector picks the proposer of a round. Every honest node must
// compute the same result from the same inputs.
type ProposalSelector interface {
	Select(round int32, authorities []Authority) common.Address
}

type RoundRobin struct {
	Offset int64
}

func (s RoundRobin) Select(round int32, authorities []Authority) common.Address {
	n := int64(len(authorities))
	idx := (s.Offset%n + int64(round)%n) % n
	return authorities[idx].Address
}

// WeightedRoundRobin gives each authority a share of slots equal to its
// weight, in roster order.
type WeightedRoundRobin struct {
	Offset int64
}

func (s WeightedRoundRobin) Select(round int32, authorities []Authority) common.Address {
	var total int64
	for _, a := range authorities {
		total += a.Weight
	}
	slot := (s.Offset%total + int64(round)%total) % total
	for _, a := range authorities {
		if slot < a.Weight {
			return a.Address
		}
		slot -= a.Weight
	}
	return authorities[len(authorities)-1].Address
}

func NewProposalSelector(name string, offset int64) (ProposalSelector, error) {
	switch name {
	case SelectorRoundRobin, "":
		return RoundRobin{Offset: offset}, nil
	case SelectorWeightedRoundRobin:
		return WeightedRoundRobin{Offset: offset}, nil
	default:
		return nil, errors.FatalConfigError.Errorf("unknown selector %q", name)
	}
}
