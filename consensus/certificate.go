package consensus

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
)

// QuorumCertificate is a set of matching votes whose weight reaches the
// quorum threshold of the roster they were cast under.
type QuorumCertificate struct {
	Height int64
	Round  int32
	Type   VoteType
	Target block.Ref
	Votes  []*VoteMessage
}

func newQuorumCertificate(height int64, round int32, vt VoteType, target block.Ref,
	votes []*VoteMessage) *QuorumCertificate {
	vs := append([]*VoteMessage(nil), votes...)
	sort.Slice(vs, func(i, j int) bool {
		return bytes.Compare(vs[i].Authority[:], vs[j].Authority[:]) < 0
	})
	return &QuorumCertificate{
		Height: height,
		Round:  round,
		Type:   vt,
		Target: target,
		Votes:  vs,
	}
}

// verifyShape checks everything that does not need a roster.
func (qc *QuorumCertificate) verifyShape() error {
	if err := verifyHR(qc.Height, qc.Round); err != nil {
		return err
	}
	if !qc.Type.IsValid() {
		return errors.InvalidMessageError.Errorf("bad vote type %d", qc.Type)
	}
	if err := qc.Target.Verify(); err != nil {
		return errors.InvalidMessageError.Wrap(err, "bad target")
	}
	if len(qc.Votes) == 0 {
		return errors.InvalidMessageError.New("empty certificate")
	}
	for i, v := range qc.Votes {
		if v == nil {
			return errors.InvalidMessageError.Errorf("nil vote at %d", i)
		}
		if v.Height != qc.Height || v.Round != qc.Round || v.Type != qc.Type || !v.Target.Equal(qc.Target) {
			return errors.InvalidMessageError.Errorf("vote %d does not match certificate", i)
		}
	}
	return nil
}

// Verify checks the votes against the roster: distinct members, valid
// signatures and a total weight at or above the quorum threshold.
func (qc *QuorumCertificate) Verify(as *AuthoritySet) error {
	if err := qc.verifyShape(); err != nil {
		return err
	}
	seen := make(map[common.Address]struct{}, len(qc.Votes))
	var weight int64
	for _, v := range qc.Votes {
		if err := v.Verify(); err != nil {
			return err
		}
		if _, dup := seen[v.Authority]; dup {
			return errors.InvalidMessageError.Errorf("duplicate vote from %s", v.Authority)
		}
		seen[v.Authority] = struct{}{}
		w := as.WeightOf(v.Authority)
		if w == 0 {
			return errors.UnknownAuthorityError.Errorf("vote from non-member %s", v.Authority)
		}
		weight += w
	}
	if weight < as.QuorumThreshold() {
		return errors.InvalidMessageError.Errorf("certificate weight=%d below threshold=%d",
			weight, as.QuorumThreshold())
	}
	return nil
}

func (qc *QuorumCertificate) String() string {
	return fmt.Sprintf("QC{%s H:%d R:%d Target:%s Votes:%d}",
		qc.Type, qc.Height, qc.Round, qc.Target, len(qc.Votes))
}

// Commit is the final decision for a height.
type Commit struct {
	Height      int64
	Round       int32
	Block       *block.Block
	Certificate *QuorumCertificate
}

func (c *Commit) Verify(as *AuthoritySet) error {
	if c.Block == nil || c.Certificate == nil {
		return errors.InvalidMessageError.New("incomplete commit")
	}
	if c.Certificate.Type != VoteTypePrecommit {
		return errors.InvalidMessageError.New("commit certificate is not a precommit")
	}
	if c.Certificate.Height != c.Height || c.Certificate.Round != c.Round {
		return errors.InvalidMessageError.New("commit certificate height or round mismatch")
	}
	if c.Block.Height() != c.Height || !c.Block.Ref().Equal(c.Certificate.Target) {
		return errors.InvalidMessageError.New("commit block does not match certificate")
	}
	return c.Certificate.Verify(as)
}

func (c *Commit) String() string {
	return fmt.Sprintf("Commit{H:%d R:%d Block:%s}", c.Height, c.Round, c.Block.Ref())
}
