/*
 * Copyright 2023 ICON Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package consensus

import (
	"bytes"
	"fmt"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
)

// Outcome is the result of feeding one input to the agreement core.
type Outcome int

const (
	Accepted Outcome = iota
	DuplicateIgnored
	EquivocationDetected
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case DuplicateIgnored:
		return "DuplicateIgnored"
	case EquivocationDetected:
		return "EquivocationDetected"
	case Rejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// SafetyAlarm reports two quorums that cannot both exist while at most f
// authorities are faulty.
type SafetyAlarm struct {
	Height int64
	Round  int32
	Stage  VoteType
	Local  block.Ref
	Remote block.Ref
	Reason string
}

func (a *SafetyAlarm) String() string {
	return fmt.Sprintf("SafetyAlarm{H:%d R:%d %s local:%s remote:%s %s}",
		a.Height, a.Round, a.Stage, a.Local, a.Remote, a.Reason)
}

type targetVotes struct {
	target block.Ref
	weight int64
	votes  []*VoteMessage
}

type stageVotes struct {
	byAuthority map[common.Address]*VoteMessage
	targets     map[string]*targetVotes
	weight      int64
	quorum      *targetVotes
}

// VoteTracker counts the votes of one round. The first valid vote of an
// authority in a stage is the one counted; a later different vote is
// handed to the MisbehaviorDetector.
type VoteTracker struct {
	height int64
	round  int32
	as     *AuthoritySet
	md     *MisbehaviorDetector
	stages [numberOfVoteTypes]stageVotes
	alarm  *SafetyAlarm
}

func newVoteTracker(height int64, round int32, as *AuthoritySet, md *MisbehaviorDetector) *VoteTracker {
	vt := &VoteTracker{
		height: height,
		round:  round,
		as:     as,
		md:     md,
	}
	for i := range vt.stages {
		vt.stages[i].byAuthority = make(map[common.Address]*VoteMessage)
		vt.stages[i].targets = make(map[string]*targetVotes)
	}
	return vt
}

func (vt *VoteTracker) AddVote(v *VoteMessage) (Outcome, error) {
	if v.Height != vt.height || v.Round != vt.round {
		return Rejected, errors.InvalidMessageError.Errorf("vote H:%d R:%d for tracker H:%d R:%d",
			v.Height, v.Round, vt.height, vt.round)
	}
	if !v.Type.IsValid() {
		return Rejected, errors.InvalidMessageError.Errorf("bad vote type %d", v.Type)
	}
	weight := vt.as.WeightOf(v.Authority)
	if weight == 0 {
		return Rejected, errors.UnknownAuthorityError.Errorf("vote from %s", v.Authority)
	}
	if err := v.Verify(); err != nil {
		return Rejected, err
	}

	sv := &vt.stages[v.Type]
	if old, ok := sv.byAuthority[v.Authority]; ok {
		if bytes.Equal(old.Hash(), v.Hash()) {
			return DuplicateIgnored, nil
		}
		if vt.md != nil {
			vt.md.Add(NewVoteEvidence(old, v))
		}
		return EquivocationDetected, nil
	}

	sv.byAuthority[v.Authority] = v
	sv.weight += weight
	key := v.Target.Key()
	tv, ok := sv.targets[key]
	if !ok {
		tv = &targetVotes{target: v.Target}
		sv.targets[key] = tv
	}
	tv.weight += weight
	tv.votes = append(tv.votes, v)

	threshold := vt.as.QuorumThreshold()
	if tv.weight >= threshold && tv.weight-weight < threshold {
		if sv.quorum == nil {
			sv.quorum = tv
		} else if vt.alarm == nil {
			vt.alarm = &SafetyAlarm{
				Height: vt.height,
				Round:  vt.round,
				Stage:  v.Type,
				Local:  sv.quorum.target,
				Remote: tv.target,
				Reason: "two quorums in one stage",
			}
			return Accepted, errors.SafetyAlarmError.Errorf("%s", vt.alarm)
		}
	}
	return Accepted, nil
}

// QuorumFor returns the target whose weight first reached the threshold.
func (vt *VoteTracker) QuorumFor(stage VoteType) (block.Ref, bool) {
	if q := vt.stages[stage].quorum; q != nil {
		return q.target, true
	}
	return block.Ref{}, false
}

// HasQuorumWeight reports whether the stage holds threshold weight in any
// mix of targets.
func (vt *VoteTracker) HasQuorumWeight(stage VoteType) bool {
	return vt.stages[stage].weight >= vt.as.QuorumThreshold()
}

func (vt *VoteTracker) WeightFor(stage VoteType, target block.Ref) int64 {
	if tv, ok := vt.stages[stage].targets[target.Key()]; ok {
		return tv.weight
	}
	return 0
}

func (vt *VoteTracker) TotalWeight(stage VoteType) int64 {
	return vt.stages[stage].weight
}

func (vt *VoteTracker) VoteOf(stage VoteType, addr common.Address) *VoteMessage {
	return vt.stages[stage].byAuthority[addr]
}

// Certificate returns nil until the stage has a quorum.
func (vt *VoteTracker) Certificate(stage VoteType) *QuorumCertificate {
	q := vt.stages[stage].quorum
	if q == nil {
		return nil
	}
	return newQuorumCertificate(vt.height, vt.round, stage, q.target, q.votes)
}

// Votes returns the counted votes of the stage in roster order.
func (vt *VoteTracker) Votes(stage VoteType) []*VoteMessage {
	sv := &vt.stages[stage]
	votes := make([]*VoteMessage, 0, len(sv.byAuthority))
	for _, a := range vt.as.list {
		if v, ok := sv.byAuthority[a.Address]; ok {
			votes = append(votes, v)
		}
	}
	return votes
}

func (vt *VoteTracker) Alarm() *SafetyAlarm {
	return vt.alarm
}

func (vt *VoteTracker) String() string {
	return fmt.Sprintf("VoteTracker{H:%d R:%d PV:%d/%d PC:%d/%d}", vt.height, vt.round,
		vt.stages[VoteTypePrevote].weight, vt.as.TotalWeight(),
		vt.stages[VoteTypePrecommit].weight, vt.as.TotalWeight())
}
