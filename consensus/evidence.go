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
	"sync"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
)

type EvidenceKind byte

const (
	EvidenceVote EvidenceKind = iota
	EvidenceProposal
)

func (k EvidenceKind) String() string {
	switch k {
	case EvidenceVote:
		return "vote"
	case EvidenceProposal:
		return "proposal"
	default:
		return fmt.Sprintf("EvidenceKind(%d)", byte(k))
	}
}

// Evidence is a pair of conflicting messages signed by one authority for
// the same height, round and stage. First is the message that was counted.
type Evidence struct {
	Kind      EvidenceKind    `json:"kind"`
	Authority common.Address  `json:"authority"`
	Height    int64           `json:"height"`
	Round     int32           `json:"round"`
	Stage     VoteType        `json:"stage"`
	First     common.HexBytes `json:"first"`
	Second    common.HexBytes `json:"second"`
}

func NewVoteEvidence(first, second *VoteMessage) *Evidence {
	return &Evidence{
		Kind:      EvidenceVote,
		Authority: first.Authority,
		Height:    first.Height,
		Round:     first.Round,
		Stage:     first.Type,
		First:     codec.MustEncodeFrame(first),
		Second:    codec.MustEncodeFrame(second),
	}
}

// NewProposalEvidence keeps only the signed part of each proposal.
func NewProposalEvidence(first, second *ProposalMessage) *Evidence {
	return &Evidence{
		Kind:      EvidenceProposal,
		Authority: first.Proposer,
		Height:    first.Height,
		Round:     first.Round,
		First:     codec.MustEncodeFrame(first.withoutBlock()),
		Second:    codec.MustEncodeFrame(second.withoutBlock()),
	}
}

// ID identifies the offence independently of arrival order.
func (e *Evidence) ID() string {
	h1 := crypto.SHA3Sum256(e.First)
	h2 := crypto.SHA3Sum256(e.Second)
	if bytes.Compare(h1, h2) > 0 {
		h1, h2 = h2, h1
	}
	id := codec.MustEncodeFrame([]interface{}{e.Kind, e.Authority, e.Height, e.Round, e.Stage, h1, h2})
	return string(crypto.SHA3Sum256(id))
}

// Votes decodes both votes of a vote evidence.
func (e *Evidence) Votes() (*VoteMessage, *VoteMessage, error) {
	if e.Kind != EvidenceVote {
		return nil, nil, errors.InvalidStateError.Errorf("not a vote evidence kind=%s", e.Kind)
	}
	v1, v2 := new(VoteMessage), new(VoteMessage)
	if err := codec.DecodeFrame(e.First, v1); err != nil {
		return nil, nil, err
	}
	if err := codec.DecodeFrame(e.Second, v2); err != nil {
		return nil, nil, err
	}
	return v1, v2, nil
}

func (e *Evidence) proposals() (*ProposalMessage, *ProposalMessage, error) {
	if e.Kind != EvidenceProposal {
		return nil, nil, errors.InvalidStateError.Errorf("not a proposal evidence kind=%s", e.Kind)
	}
	p1, p2 := new(ProposalMessage), new(ProposalMessage)
	if err := codec.DecodeFrame(e.First, p1); err != nil {
		return nil, nil, err
	}
	if err := codec.DecodeFrame(e.Second, p2); err != nil {
		return nil, nil, err
	}
	return p1, p2, nil
}

// Verify checks that both messages are validly signed by Authority and
// that they really conflict.
func (e *Evidence) Verify() error {
	type signed struct {
		hash      []byte
		signer    common.Address
		height    int64
		round     int32
		stage     VoteType
		verifyErr error
	}
	var pair [2]signed
	switch e.Kind {
	case EvidenceVote:
		v1, v2, err := e.Votes()
		if err != nil {
			return errors.EquivocationError.Wrap(err, "undecodable evidence")
		}
		for i, v := range []*VoteMessage{v1, v2} {
			pair[i] = signed{v.Hash(), v.Authority, v.Height, v.Round, v.Type, v.Verify()}
		}
	case EvidenceProposal:
		p1, p2, err := e.proposals()
		if err != nil {
			return errors.EquivocationError.Wrap(err, "undecodable evidence")
		}
		for i, p := range []*ProposalMessage{p1, p2} {
			pair[i] = signed{p.Hash(), p.Proposer, p.Height, p.Round, 0, p.verifySigned()}
		}
	default:
		return errors.EquivocationError.Errorf("unknown evidence kind=%s", e.Kind)
	}
	for _, s := range pair {
		if s.verifyErr != nil {
			return errors.EquivocationError.Wrap(s.verifyErr, "invalid message in evidence")
		}
		if s.signer != e.Authority || s.height != e.Height || s.round != e.Round || s.stage != e.Stage {
			return errors.EquivocationError.New("evidence message does not match header")
		}
	}
	if bytes.Equal(pair[0].hash, pair[1].hash) {
		return errors.EquivocationError.New("evidence messages are identical")
	}
	return nil
}

func (e *Evidence) String() string {
	if e.Kind == EvidenceProposal {
		return fmt.Sprintf("Evidence{%s %s H:%d R:%d}", e.Kind, e.Authority, e.Height, e.Round)
	}
	return fmt.Sprintf("Evidence{%s %s H:%d R:%d %s}", e.Kind, e.Authority, e.Height, e.Round, e.Stage)
}

// EvidenceStore persists evidence across restarts.
type EvidenceStore interface {
	Put(e *Evidence) error
	Load() ([]*Evidence, error)
}

// MisbehaviorDetector keeps every distinct equivocation observed by the
// node, indexed by authority. It is safe for concurrent use.
type MisbehaviorDetector struct {
	mu          sync.RWMutex
	log         log.Logger
	list        []*Evidence
	byAuthority map[common.Address][]*Evidence
	seen        map[string]struct{}
	store       EvidenceStore
}

// NewMisbehaviorDetector loads previously stored evidence when store is
// not nil.
func NewMisbehaviorDetector(logger log.Logger, store EvidenceStore) (*MisbehaviorDetector, error) {
	md := &MisbehaviorDetector{
		log:         logger,
		byAuthority: make(map[common.Address][]*Evidence),
		seen:        make(map[string]struct{}),
		store:       store,
	}
	if store != nil {
		list, err := store.Load()
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			md.addLocked(e)
		}
	}
	return md, nil
}

func (md *MisbehaviorDetector) addLocked(e *Evidence) bool {
	id := e.ID()
	if _, ok := md.seen[id]; ok {
		return false
	}
	md.seen[id] = struct{}{}
	md.list = append(md.list, e)
	md.byAuthority[e.Authority] = append(md.byAuthority[e.Authority], e)
	return true
}

// Add records e. It returns false if the same offence was already known.
// A storage failure is returned but the evidence stays in memory.
func (md *MisbehaviorDetector) Add(e *Evidence) (bool, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if !md.addLocked(e) {
		return false, nil
	}
	md.log.Warnf("equivocation %s", e)
	if md.store != nil {
		if err := md.store.Put(e); err != nil {
			md.log.Errorf("fail to store evidence %s err=%+v", e, err)
			return true, err
		}
	}
	return true, nil
}

func (md *MisbehaviorDetector) EvidenceFor(addr common.Address) []*Evidence {
	md.mu.RLock()
	defer md.mu.RUnlock()
	return append([]*Evidence(nil), md.byAuthority[addr]...)
}

func (md *MisbehaviorDetector) Evidence() []*Evidence {
	md.mu.RLock()
	defer md.mu.RUnlock()
	return append([]*Evidence(nil), md.list...)
}

func (md *MisbehaviorDetector) Len() int {
	md.mu.RLock()
	defer md.mu.RUnlock()
	return len(md.list)
}
