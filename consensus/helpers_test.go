package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/common/wallet"
	"github.com/icon-project/goagree/module"
)

func newTestWallets(n int) []module.Wallet {
	ws := make([]module.Wallet, n)
	for i := range ws {
		ws[i] = wallet.New()
	}
	return ws
}

func newTestAuthoritySet(t *testing.T, ws []module.Wallet) *AuthoritySet {
	list := make([]Authority, len(ws))
	for i, w := range ws {
		list[i] = Authority{Address: w.Address(), Weight: 1}
	}
	as, err := NewAuthoritySet(list, RoundRobin{})
	require.NoError(t, err)
	return as
}

func newTestBlock(height int64, tag string, proposer module.Wallet) *block.Block {
	parent := block.Genesis(nil).Ref()
	return block.New(height, parent.Hash, []byte(tag), [][]byte{[]byte(tag)}, proposer.Address(), 1000)
}

func mustVote(t *testing.T, w module.Wallet, vt VoteType, height int64, round int32, target block.Ref) *VoteMessage {
	v, err := NewVoteMessage(w, vt, height, round, target)
	require.NoError(t, err)
	return v
}

func mustProposal(t *testing.T, w module.Wallet, height int64, round int32, pol int32, blk *block.Block) *ProposalMessage {
	p, err := NewProposalMessage(w, height, round, pol, blk)
	require.NoError(t, err)
	return p
}

func newTestDetector(t *testing.T) *MisbehaviorDetector {
	md, err := NewMisbehaviorDetector(log.GlobalLogger(), nil)
	require.NoError(t, err)
	return md
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.TimeoutPropose = 100 * time.Millisecond
	cfg.TimeoutPrevote = 100 * time.Millisecond
	cfg.TimeoutPrecommit = 100 * time.Millisecond
	cfg.TimeoutMax = time.Second
	cfg.TimeoutCommit = 10 * time.Millisecond
	return cfg
}

// testContext records everything a Driver asks for.
type testContext struct {
	broadcasts []Message
	timer      TimerID
	timeout    time.Duration
	scheduled  int
	cancelled  int
	commits    []*Commit
	alarms     []*SafetyAlarm
	propose    func(height int64, round int32) (*block.Block, error)
	valid      func(blk *block.Block) bool
}

func (c *testContext) Broadcast(msg Message) {
	c.broadcasts = append(c.broadcasts, msg)
}

func (c *testContext) ScheduleTimeout(id TimerID, d time.Duration) {
	c.timer = id
	c.timeout = d
	c.scheduled++
}

func (c *testContext) CancelTimeout() {
	c.cancelled++
}

func (c *testContext) Propose(height int64, round int32) (*block.Block, error) {
	if c.propose == nil {
		return nil, errTestNoBlock
	}
	return c.propose(height, round)
}

func (c *testContext) IsValid(blk *block.Block) bool {
	if c.valid == nil {
		return true
	}
	return c.valid(blk)
}

func (c *testContext) Finalize(commit *Commit) {
	c.commits = append(c.commits, commit)
}

func (c *testContext) Alarm(a *SafetyAlarm) {
	c.alarms = append(c.alarms, a)
}

// lastVote returns the last vote of the given type the driver broadcast.
func (c *testContext) lastVote(vt VoteType) *VoteMessage {
	for i := len(c.broadcasts) - 1; i >= 0; i-- {
		if v, ok := c.broadcasts[i].(*VoteMessage); ok && v.Type == vt {
			return v
		}
	}
	return nil
}

func (c *testContext) lastProposal() *ProposalMessage {
	for i := len(c.broadcasts) - 1; i >= 0; i-- {
		if p, ok := c.broadcasts[i].(*ProposalMessage); ok {
			return p
		}
	}
	return nil
}

type testDriverEnv struct {
	ws  []module.Wallet
	as  *AuthoritySet
	md  *MisbehaviorDetector
	ctx *testContext
	d   *Driver
}

// newTestDriver builds a driver at height run by ws[local]; local < 0
// gives an observer.
func newTestDriver(t *testing.T, n int, height int64, local int) *testDriverEnv {
	ws := newTestWallets(n)
	return newTestDriverWith(t, ws, height, local)
}

func newTestDriverWith(t *testing.T, ws []module.Wallet, height int64, local int) *testDriverEnv {
	env := &testDriverEnv{
		ws:  ws,
		as:  newTestAuthoritySet(t, ws),
		md:  newTestDetector(t),
		ctx: &testContext{},
	}
	var w module.Wallet
	if local >= 0 {
		w = ws[local]
	}
	env.d = NewDriver(height, env.as, w, testConfig(), env.ctx, env.md, log.GlobalLogger())
	return env
}

func (env *testDriverEnv) handle(t *testing.T, msg Message) Outcome {
	out, err := env.d.Handle(msg)
	require.NoError(t, err, "message %s", msg)
	return out
}

var errTestNoBlock = errors.UnsupportedError.New("no block source")
