package consensus

import (
	"bytes"
	"sort"
	"time"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/module"
)

// DriverContext is everything a Driver needs from its surroundings. The
// driver calls it synchronously from the goroutine that feeds it.
type DriverContext interface {
	Broadcast(msg Message)
	// ScheduleTimeout replaces any pending timeout of the driver.
	ScheduleTimeout(id TimerID, d time.Duration)
	CancelTimeout()
	Propose(height int64, round int32) (*block.Block, error)
	IsValid(blk *block.Block) bool
	Finalize(c *Commit)
	Alarm(a *SafetyAlarm)
}

// maxRoundsAhead bounds how far past the current round a message may
// open a round record.
const maxRoundsAhead = 64

type State struct {
	Height int64 `json:"height"`
	Round  int32 `json:"round"`
	Step   Step  `json:"step"`
}

// Driver runs the rounds of one height until it commits or is aborted.
// It is not safe for concurrent use.
type Driver struct {
	height int64
	as     *AuthoritySet
	wallet module.Wallet
	cfg    *Config
	ctx    DriverContext
	md     *MisbehaviorDetector
	log    log.Logger

	round  int32
	rounds map[int32]*RoundState
	blocks map[string]*block.Block

	lockedRound int32
	lockedRef   block.Ref

	commit   *Commit
	pending  *QuorumCertificate
	timer    TimerID
	timerSeq int64
	aborted  bool
	started  bool
}

// NewDriver creates a driver for height. A nil wallet, or one outside the
// roster, makes an observer that never votes or proposes.
func NewDriver(height int64, as *AuthoritySet, w module.Wallet, cfg *Config,
	ctx DriverContext, md *MisbehaviorDetector, logger log.Logger) *Driver {
	return &Driver{
		height:      height,
		as:          as,
		wallet:      w,
		cfg:         cfg,
		ctx:         ctx,
		md:          md,
		log:         logger.WithFields(log.Fields{log.FieldKeyHeight: height}),
		rounds:      make(map[int32]*RoundState),
		blocks:      make(map[string]*block.Block),
		lockedRound: -1,
	}
}

func (d *Driver) Start() {
	if d.started {
		return
	}
	d.started = true
	d.enterRound(0)
	d.advance()
}

func (d *Driver) Height() int64 {
	return d.height
}

func (d *Driver) Round() int32 {
	return d.round
}

func (d *Driver) State() State {
	step := StepPropose
	if rs, ok := d.rounds[d.round]; ok {
		step = rs.step
	}
	if d.commit != nil {
		step = StepCommitted
	}
	return State{Height: d.height, Round: d.round, Step: step}
}

func (d *Driver) Committed() *Commit {
	return d.commit
}

// Pending returns a precommit certificate whose block has not arrived.
func (d *Driver) Pending() *QuorumCertificate {
	return d.pending
}

// RoundState returns the record of round, or nil if nothing was seen for
// it.
func (d *Driver) RoundState(round int32) *RoundState {
	return d.rounds[round]
}

func (d *Driver) IsProposer() bool {
	return d.isProposer(d.round)
}

func (d *Driver) isProposer(round int32) bool {
	return d.wallet != nil && d.as.ProposerFor(round) == d.wallet.Address()
}

func (d *Driver) isAuthority() bool {
	return d.wallet != nil && d.as.IsAuthority(d.wallet.Address())
}

// Abort stops the height. Later inputs are rejected.
func (d *Driver) Abort() {
	if d.aborted {
		return
	}
	d.aborted = true
	d.ctx.CancelTimeout()
	d.log.Infof("abort height=%d round=%d", d.height, d.round)
}

// Resume undoes Abort. Votes and the lock of the height are kept and the
// step of the current round gets a fresh timer.
func (d *Driver) Resume() {
	if !d.aborted {
		return
	}
	d.aborted = false
	d.log.Infof("resume height=%d round=%d", d.height, d.round)
	if d.commit != nil || !d.started {
		return
	}
	if step := d.rounds[d.round].step; !step.IsTerminal() {
		d.scheduleTimeout(step)
	}
	d.advance()
}

func (d *Driver) Aborted() bool {
	return d.aborted
}

func (d *Driver) roundState(round int32) *RoundState {
	rs, ok := d.rounds[round]
	if !ok {
		rs = newRoundState(d.height, round, d.as, d.md)
		d.rounds[round] = rs
	}
	return rs
}

// checkRound refuses rounds too far ahead to hold a record for.
func (d *Driver) checkRound(round int32) error {
	if int64(round) > int64(d.round)+maxRoundsAhead {
		return errors.StaleMessageError.Errorf("round %d too far ahead of %d", round, d.round)
	}
	return nil
}

func (d *Driver) sortedRounds() []int32 {
	rounds := make([]int32, 0, len(d.rounds))
	for r := range d.rounds {
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i] < rounds[j]
	})
	return rounds
}

// Handle feeds one message to the driver.
func (d *Driver) Handle(msg Message) (Outcome, error) {
	if d.aborted {
		return Rejected, errors.AbortedError.Errorf("height %d aborted", d.height)
	}
	if err := msg.Verify(); err != nil {
		return Rejected, err
	}
	if msg.height() != d.height {
		return Rejected, errors.StaleMessageError.Errorf("message height=%d driver height=%d",
			msg.height(), d.height)
	}

	var out Outcome
	var err error
	switch m := msg.(type) {
	case *VoteMessage:
		out, err = d.handleVote(m)
	case *ProposalMessage:
		out, err = d.handleProposal(m)
	case *CertificateMessage:
		out, err = d.handleCertificate(m)
	default:
		return Rejected, errors.InvalidMessageError.Errorf("unknown message %T", msg)
	}
	if out == Accepted && d.started {
		d.advance()
	}
	return out, err
}

func (d *Driver) handleVote(v *VoteMessage) (Outcome, error) {
	if !d.as.IsAuthority(v.Authority) {
		return Rejected, errors.UnknownAuthorityError.Errorf("vote from %s", v.Authority)
	}
	if err := d.checkRound(v.Round); err != nil {
		return Rejected, err
	}
	rs := d.roundState(v.Round)
	out, err := rs.votes.AddVote(v)
	switch out {
	case Rejected:
		d.log.Tracef("reject vote %s err=%v", v, err)
	case EquivocationDetected:
		d.log.Debugf("equivocating vote %s", v)
	}
	if errors.SafetyAlarmError.Equals(err) {
		d.raiseAlarm(rs.votes.Alarm())
	}
	return out, err
}

func (d *Driver) handleProposal(p *ProposalMessage) (Outcome, error) {
	if proposer := d.as.ProposerFor(p.Round); proposer != p.Proposer {
		return Rejected, errors.NotProposerError.Errorf("proposal from %s for round %d proposer %s",
			p.Proposer, p.Round, proposer)
	}
	if err := d.checkRound(p.Round); err != nil {
		return Rejected, err
	}
	rs := d.roundState(p.Round)
	if rs.proposal != nil {
		if bytes.Equal(rs.proposal.Hash(), p.Hash()) {
			return DuplicateIgnored, nil
		}
		d.log.Debugf("equivocating proposal %s", p)
		d.md.Add(NewProposalEvidence(rs.proposal, p))
		return EquivocationDetected, nil
	}
	rs.proposal = p
	d.blocks[p.Target.Key()] = p.Block
	d.log.Debugf("accept %s", p)
	return Accepted, nil
}

func (d *Driver) handleCertificate(m *CertificateMessage) (Outcome, error) {
	qc := m.Certificate
	if err := qc.Verify(d.as); err != nil {
		return Rejected, err
	}
	if d.commit != nil {
		if d.commit.Block.Ref().Equal(qc.Target) {
			return DuplicateIgnored, nil
		}
		d.raiseAlarm(&SafetyAlarm{
			Height: d.height,
			Round:  qc.Round,
			Stage:  VoteTypePrecommit,
			Local:  d.commit.Block.Ref(),
			Remote: qc.Target,
			Reason: "certificate conflicts with local commit",
		})
		return Rejected, errors.SafetyAlarmError.Errorf("certificate for %s conflicts with commit %s",
			qc.Target, d.commit.Block.Ref())
	}
	if rs, ok := d.rounds[qc.Round]; ok {
		if local, ok := rs.votes.QuorumFor(VoteTypePrecommit); ok && !local.Equal(qc.Target) {
			d.raiseAlarm(&SafetyAlarm{
				Height: d.height,
				Round:  qc.Round,
				Stage:  VoteTypePrecommit,
				Local:  local,
				Remote: qc.Target,
				Reason: "certificate conflicts with local quorum",
			})
			return Rejected, errors.SafetyAlarmError.Errorf("certificate for %s conflicts with quorum %s",
				qc.Target, local)
		}
	}
	d.blocks[qc.Target.Key()] = m.Block
	d.finalize(qc.Round, m.Block, qc)
	return Accepted, nil
}

// OnTimeout handles an expired timer. It returns false for stale ids.
func (d *Driver) OnTimeout(id TimerID) bool {
	if d.aborted || d.commit != nil || id != d.timer {
		return false
	}
	rs := d.rounds[id.Round]
	if rs == nil || rs.step != id.Step {
		return false
	}
	d.log.Debugf("timeout %s", id)
	switch id.Step {
	case StepPropose:
		d.enterPrevote(rs)
	case StepPrevoting, StepPrecommitting:
		d.abandon(rs)
		d.enterRound(rs.round + 1)
	default:
		return false
	}
	d.advance()
	return true
}

// advance applies every transition the collected inputs allow.
func (d *Driver) advance() {
	for d.commit == nil && !d.aborted {
		if d.decide() {
			return
		}
		d.updateLock()
		if d.skipRound() {
			continue
		}
		if !d.progress() {
			return
		}
	}
}

// decide commits on a precommit quorum for a block in any round.
func (d *Driver) decide() bool {
	for _, r := range d.sortedRounds() {
		rs := d.rounds[r]
		target, ok := rs.votes.QuorumFor(VoteTypePrecommit)
		if !ok || target.IsNil() {
			continue
		}
		blk, ok := d.blocks[target.Key()]
		if !ok {
			if d.pending == nil {
				d.pending = rs.votes.Certificate(VoteTypePrecommit)
				d.log.Infof("precommit quorum for unknown block %s round=%d", target, r)
			}
			continue
		}
		d.finalize(r, blk, rs.votes.Certificate(VoteTypePrecommit))
		return true
	}
	return false
}

func (d *Driver) finalize(round int32, blk *block.Block, qc *QuorumCertificate) {
	d.commit = &Commit{
		Height:      d.height,
		Round:       round,
		Block:       blk,
		Certificate: qc,
	}
	d.pending = nil
	if rs, ok := d.rounds[round]; ok {
		rs.setStep(StepCommitted)
	}
	d.ctx.CancelTimeout()
	d.log.Infof("commit height=%d round=%d block=%s", d.height, round, blk.Ref())
	d.ctx.Finalize(d.commit)
}

// updateLock releases the lock once a later round up to the current one
// shows a prevote quorum for something else.
func (d *Driver) updateLock() {
	if d.lockedRound < 0 {
		return
	}
	for r := d.lockedRound + 1; r <= d.round; r++ {
		rs, ok := d.rounds[r]
		if !ok {
			continue
		}
		if target, ok := rs.votes.QuorumFor(VoteTypePrevote); ok && !target.Equal(d.lockedRef) {
			d.log.Debugf("unlock %s locked round=%d by round=%d", d.lockedRef, d.lockedRound, r)
			d.lockedRound = -1
			d.lockedRef = block.Ref{}
			return
		}
	}
}

// skipRound jumps to the highest future round that already holds
// threshold weight in either stage.
func (d *Driver) skipRound() bool {
	rounds := d.sortedRounds()
	for i := len(rounds) - 1; i >= 0 && rounds[i] > d.round; i-- {
		rs := d.rounds[rounds[i]]
		if rs.votes.HasQuorumWeight(VoteTypePrevote) || rs.votes.HasQuorumWeight(VoteTypePrecommit) {
			d.log.Debugf("skip round %d -> %d", d.round, rs.round)
			d.abandon(d.rounds[d.round])
			d.enterRound(rs.round)
			return true
		}
	}
	return false
}

func (d *Driver) progress() bool {
	rs := d.rounds[d.round]
	switch rs.step {
	case StepPropose:
		if rs.proposal != nil || rs.votes.HasQuorumWeight(VoteTypePrevote) {
			d.enterPrevote(rs)
			return true
		}
	case StepPrevoting:
		if target, ok := rs.votes.QuorumFor(VoteTypePrevote); ok {
			d.enterPrecommit(rs, target)
			return true
		}
	}
	if target, ok := rs.votes.QuorumFor(VoteTypePrecommit); ok && target.IsNil() {
		d.abandon(rs)
		d.enterRound(rs.round + 1)
		return true
	}
	return false
}

func (d *Driver) enterRound(round int32) {
	if d.started && round < d.round {
		d.log.Panicf("round goes back from %d to %d", d.round, round)
	}
	d.round = round
	rs := d.roundState(round)
	rs.started = true
	d.log.Debugf("enter round=%d proposer=%s", round, d.as.ProposerFor(round))
	d.scheduleTimeout(StepPropose)
	if d.isProposer(round) && rs.proposal == nil {
		d.propose(rs)
	}
}

func (d *Driver) propose(rs *RoundState) {
	polRound := int32(-1)
	blk, ok := d.blocks[d.lockedRef.Key()]
	if d.lockedRound >= 0 && ok {
		polRound = d.lockedRound
	} else {
		var err error
		blk, err = d.ctx.Propose(d.height, rs.round)
		if err != nil {
			d.log.Warnf("fail to make block height=%d round=%d err=%+v", d.height, rs.round, err)
			return
		}
	}
	msg, err := NewProposalMessage(d.wallet, d.height, rs.round, polRound, blk)
	if err != nil {
		d.log.Warnf("fail to sign proposal err=%+v", err)
		return
	}
	rs.proposal = msg
	d.blocks[msg.Target.Key()] = blk
	d.log.Infof("propose %s", msg)
	d.ctx.Broadcast(msg)
}

// prevoteTarget applies the lock rule to the proposal of the round.
func (d *Driver) prevoteTarget(rs *RoundState) block.Ref {
	p := rs.proposal
	if d.lockedRound >= 0 {
		if p == nil || p.Target.Equal(d.lockedRef) || p.POLRound < d.lockedRound {
			return d.lockedRef
		}
		pol, ok := d.rounds[p.POLRound]
		if !ok {
			return d.lockedRef
		}
		if target, ok := pol.votes.QuorumFor(VoteTypePrevote); !ok || !target.Equal(p.Target) {
			return d.lockedRef
		}
	}
	if p == nil || !d.ctx.IsValid(p.Block) {
		return block.Ref{}
	}
	return p.Target
}

func (d *Driver) enterPrevote(rs *RoundState) {
	target := d.prevoteTarget(rs)
	rs.setStep(StepPrevoting)
	d.scheduleTimeout(StepPrevoting)
	d.castVote(rs, VoteTypePrevote, target)
}

func (d *Driver) enterPrecommit(rs *RoundState, target block.Ref) {
	rs.setStep(StepPrecommitting)
	d.scheduleTimeout(StepPrecommitting)
	if !target.IsNil() && d.isAuthority() {
		d.lockedRound = rs.round
		d.lockedRef = target
	}
	d.castVote(rs, VoteTypePrecommit, target)
}

func (d *Driver) abandon(rs *RoundState) {
	if err := rs.setStep(StepAbandoned); err == nil {
		d.log.Debugf("abandon round=%d", rs.round)
	}
}

func (d *Driver) castVote(rs *RoundState, vt VoteType, target block.Ref) {
	if !d.isAuthority() || rs.votes.VoteOf(vt, d.wallet.Address()) != nil {
		return
	}
	msg, err := NewVoteMessage(d.wallet, vt, d.height, rs.round, target)
	if err != nil {
		d.log.Warnf("fail to sign vote err=%+v", err)
		return
	}
	if out, err := rs.votes.AddVote(msg); out != Accepted {
		d.log.Warnf("own vote %s outcome=%s err=%v", msg, out, err)
	}
	d.log.Debugf("cast %s", msg)
	d.ctx.Broadcast(msg)
}

func (d *Driver) scheduleTimeout(step Step) {
	d.timerSeq++
	d.timer = TimerID{
		Height: d.height,
		Round:  d.round,
		Step:   step,
		Seq:    d.timerSeq,
	}
	d.ctx.ScheduleTimeout(d.timer, d.cfg.timeoutFor(step, d.round))
}

func (d *Driver) raiseAlarm(a *SafetyAlarm) {
	if a == nil {
		return
	}
	d.log.Errorf("SAFETY ALARM %s", a)
	d.ctx.Alarm(a)
}

// Evidence returns the evidence recorded against addr.
func (d *Driver) Evidence(addr common.Address) []*Evidence {
	return d.md.EvidenceFor(addr)
}
