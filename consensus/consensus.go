package consensus

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/module"
	"github.com/icon-project/goagree/server/metric"
)

const reactorName = "consensus"

type Options struct {
	Wallet    module.Wallet
	Config    *Config
	Roster    RosterSource
	Validator BlockValidator
	Committer StateCommitter
	TxSource  TxSource
	Sink      FinalitySink
	Network   module.NetworkManager
	Evidence  EvidenceStore
	// LastBlock is the last finalized block. Agreement starts above it.
	LastBlock     *block.Block
	Logger        log.Logger
	MetricContext context.Context
	OnAlarm       func(a *SafetyAlarm)
	// Clock schedules timeouts and stamps proposals. Nil means wall clock.
	Clock common.Clock
}

// event is the closed set of inputs of the event loop.
type event interface {
	apply(cs *Consensus)
}

type messageEvent struct {
	msg Message
}

type timeoutEvent struct {
	id TimerID
}

type nextHeightEvent struct {
	height int64
}

type abortEvent struct {
	height int64
}

type resumeEvent struct {
	height int64
}

// Consensus runs one Driver per height on a single event loop goroutine.
// Network receive and timers only enqueue events.
type Consensus struct {
	opts   Options
	cfg    *Config
	wallet module.Wallet
	log    log.Logger
	md     *MisbehaviorDetector
	metric *metric.ConsensusMetric
	ph     Transport

	events   chan event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// owned by the event loop
	driver      *Driver
	lastBlock   *block.Block
	finalized   *Commit
	future      []Message
	clock       common.Clock
	timer       common.Timer
	commitTimer common.Timer

	mtx        sync.Mutex
	status     State
	isProp     bool
	lastCommit *Commit
	subs       map[*commitSubscriber]struct{}
	started    bool
}

func NewConsensus(opts Options) (*Consensus, error) {
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Roster == nil || opts.Validator == nil || opts.Committer == nil ||
		opts.TxSource == nil || opts.Sink == nil || opts.Network == nil || opts.LastBlock == nil {
		return nil, errors.FatalConfigError.New("missing collaborator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GlobalLogger()
	}
	fields := log.Fields{log.FieldKeyModule: "CS"}
	var node string
	if opts.Wallet != nil {
		addr := opts.Wallet.Address()
		node = hex.EncodeToString(addr[:])
		fields[log.FieldKeyWallet] = node
	}
	logger = logger.WithFields(fields)
	md, err := NewMisbehaviorDetector(logger, opts.Evidence)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = &common.GoTimeClock{}
	}
	mctx := opts.MetricContext
	if mctx == nil {
		mctx = metric.NewMetricContext(node)
	}
	return &Consensus{
		opts:      opts,
		cfg:       opts.Config,
		wallet:    opts.Wallet,
		log:       logger,
		md:        md,
		metric:    metric.NewConsensusMetric(mctx),
		events:    make(chan event, opts.Config.EventQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		lastBlock: opts.LastBlock,
		clock:     clock,
		subs:      make(map[*commitSubscriber]struct{}),
	}, nil
}

// Start registers the reactor, enters the height above LastBlock and runs
// the event loop. Roster errors for the first height are returned.
func (cs *Consensus) Start() error {
	cs.mtx.Lock()
	if cs.started {
		cs.mtx.Unlock()
		return errors.InvalidStateError.New("already started")
	}
	cs.started = true
	cs.mtx.Unlock()

	ph, err := cs.opts.Network.RegisterReactor(reactorName, cs, csProtocols)
	if err != nil {
		return err
	}
	cs.ph = ph
	cs.log.Infof("Consensus start wallet=%v last=%d", cs.walletAddress(), cs.lastBlock.Height())
	if err := cs.enterHeight(cs.lastBlock.Height() + 1); err != nil {
		cs.opts.Network.UnregisterReactor(cs)
		close(cs.done)
		return err
	}
	cs.settle()
	go cs.loop()
	return nil
}

// Term stops the event loop and every timer. Commit streams are closed.
func (cs *Consensus) Term() {
	cs.stopOnce.Do(func() {
		close(cs.stop)
		cs.mtx.Lock()
		started := cs.started
		cs.mtx.Unlock()
		if started {
			<-cs.done
			cs.opts.Network.UnregisterReactor(cs)
		}
		cs.log.Infof("Consensus terminated")
	})
}

func (cs *Consensus) walletAddress() interface{} {
	if cs.wallet == nil {
		return "<observer>"
	}
	return cs.wallet.Address()
}

func (cs *Consensus) loop() {
	defer func() {
		if cs.timer != nil {
			cs.timer.Stop()
		}
		if cs.commitTimer != nil {
			cs.commitTimer.Stop()
		}
		close(cs.done)
	}()
	for {
		select {
		case <-cs.stop:
			return
		case ev := <-cs.events:
			ev.apply(cs)
			cs.settle()
			cs.updateStatus()
		}
	}
}

// post enqueues without blocking. It is used for network input.
func (cs *Consensus) post(ev event) error {
	select {
	case cs.events <- ev:
		return nil
	case <-cs.stop:
		return errors.AbortedError.New("consensus terminated")
	default:
		return errors.InterruptedError.New("event queue full")
	}
}

// send enqueues and waits for room. It is used by timer goroutines.
func (cs *Consensus) send(ev event) {
	select {
	case cs.events <- ev:
	case <-cs.stop:
	}
}

// SubmitMessage queues msg for the event loop.
func (cs *Consensus) SubmitMessage(msg Message) error {
	if msg == nil {
		return errors.IllegalArgumentError.New("nil message")
	}
	return cs.post(&messageEvent{msg: msg})
}

// OnTimeout queues an expired timer. Stale ids are ignored by the loop.
func (cs *Consensus) OnTimeout(id TimerID) {
	cs.send(&timeoutEvent{id: id})
}

// AbortHeight stops agreement on height. Pending timers are cancelled
// and later messages for the height are discarded.
func (cs *Consensus) AbortHeight(height int64) error {
	return cs.post(&abortEvent{height: height})
}

// ResumeHeight restarts agreement on an aborted height. Messages for it
// are accepted again.
func (cs *Consensus) ResumeHeight(height int64) error {
	return cs.post(&resumeEvent{height: height})
}

func (cs *Consensus) OnReceive(pi module.ProtocolInfo, b []byte, from module.PeerID) (bool, error) {
	msg, err := UnmarshalMessage(pi, b)
	if err != nil {
		cs.log.Debugf("OnReceive: drop from=%s err=%v", from, err)
		return false, err
	}
	if err := cs.SubmitMessage(msg); err != nil {
		cs.log.Warnf("OnReceive: fail to queue %s err=%v", msg, err)
		return false, err
	}
	return false, nil
}

func (cs *Consensus) OnJoin(id module.PeerID) {
	cs.log.Debugf("OnJoin: %s", id)
}

func (cs *Consensus) OnLeave(id module.PeerID) {
	cs.log.Debugf("OnLeave: %s", id)
}

func (ev *messageEvent) apply(cs *Consensus) {
	cs.route(ev.msg)
}

func (ev *timeoutEvent) apply(cs *Consensus) {
	if cs.driver == nil || ev.id.Height != cs.driver.Height() {
		return
	}
	before := cs.driver.Round()
	if cs.driver.OnTimeout(ev.id) {
		cs.onRoundChange(before)
	}
}

func (ev *nextHeightEvent) apply(cs *Consensus) {
	if cs.driver != nil && cs.driver.Height() >= ev.height {
		return
	}
	if err := cs.enterHeight(ev.height); err != nil {
		cs.log.Errorf("fail to enter height=%d err=%+v", ev.height, err)
	}
}

func (ev *abortEvent) apply(cs *Consensus) {
	if cs.driver != nil && cs.driver.Height() == ev.height {
		cs.driver.Abort()
	}
}

func (ev *resumeEvent) apply(cs *Consensus) {
	if cs.driver == nil || cs.driver.Height() != ev.height || !cs.driver.Aborted() {
		cs.log.Debugf("nothing to resume at height=%d", ev.height)
		return
	}
	before := cs.driver.Round()
	cs.driver.Resume()
	cs.onRoundChange(before)
}

func (cs *Consensus) route(msg Message) {
	if cs.driver == nil {
		return
	}
	height := cs.driver.Height()
	switch h := msg.height(); {
	case h < height:
		cs.log.Tracef("drop stale %s", msg)
	case h == height:
		before := cs.driver.Round()
		out, err := cs.driver.Handle(msg)
		switch out {
		case EquivocationDetected:
			cs.metric.OnEquivocation()
		case Rejected:
			cs.log.Tracef("reject %s err=%v", msg, err)
		}
		cs.onRoundChange(before)
	case h == height+1:
		if len(cs.future) >= cs.cfg.FutureHeightBuffer {
			cs.log.Debugf("future buffer full, drop %s", msg)
			return
		}
		cs.future = append(cs.future, msg)
	default:
		cs.log.Tracef("drop far future %s", msg)
	}
}

func (cs *Consensus) onRoundChange(before int32) {
	if cs.driver == nil {
		return
	}
	if after := cs.driver.Round(); after > before {
		cs.metric.OnAbandonedRounds(int(after - before))
		cs.metric.OnRound(after)
	}
}

func (cs *Consensus) enterHeight(height int64) error {
	list, err := cs.opts.Roster.AuthoritiesAt(height)
	if err != nil {
		return errors.FatalConfigError.Wrapf(err, "no roster for height=%d", height)
	}
	selector, err := NewProposalSelector(cs.cfg.Selector, height)
	if err != nil {
		return err
	}
	as, err := NewAuthoritySet(list, selector)
	if err != nil {
		return err
	}
	cs.driver = NewDriver(height, as, cs.wallet, cs.cfg, &driverContext{cs: cs}, cs.md, cs.log)
	cs.log.Infof("enter height=%d %s", height, as)
	cs.driver.Start()

	buffered := cs.future
	cs.future = nil
	for _, msg := range buffered {
		cs.route(msg)
	}
	cs.updateStatus()
	return nil
}

// settle handles a commit produced by the last input.
func (cs *Consensus) settle() {
	c := cs.finalized
	if c == nil {
		return
	}
	cs.finalized = nil
	if err := cs.opts.Sink.Finalize(c); err != nil {
		cs.log.Errorf("fail to finalize %s err=%+v", c, err)
	}
	cs.lastBlock = c.Block
	cs.mtx.Lock()
	cs.lastCommit = c
	cs.mtx.Unlock()
	cs.metric.OnHeight(c.Height)
	cs.broadcast(NewCertificateMessage(c))
	cs.publish(c)

	next := c.Height + 1
	cs.commitTimer = cs.clock.AfterFunc(cs.cfg.TimeoutCommit, func() {
		cs.send(&nextHeightEvent{height: next})
	})
}

func (cs *Consensus) broadcast(msg Message) {
	bs, err := MarshalMessage(msg)
	if err != nil {
		cs.log.Errorf("fail to encode %s err=%+v", msg, err)
		return
	}
	if err := cs.ph.Broadcast(msg.subprotocol(), bs); err != nil {
		cs.log.Debugf("fail to broadcast %s err=%v", msg, err)
	}
}

func (cs *Consensus) updateStatus() {
	if cs.driver == nil {
		return
	}
	st := cs.driver.State()
	isProp := cs.driver.IsProposer()
	cs.mtx.Lock()
	cs.status = st
	cs.isProp = isProp
	cs.mtx.Unlock()
}

// CurrentState returns the state as of the last processed event.
func (cs *Consensus) CurrentState() State {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.status
}

func (cs *Consensus) GetStatus() *module.ConsensusStatus {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return &module.ConsensusStatus{
		Height:   cs.status.Height,
		Round:    cs.status.Round,
		Step:     cs.status.Step.String(),
		Proposer: cs.isProp,
	}
}

func (cs *Consensus) Detector() *MisbehaviorDetector {
	return cs.md
}

type driverContext struct {
	cs *Consensus
}

func (c *driverContext) Broadcast(msg Message) {
	c.cs.broadcast(msg)
}

func (c *driverContext) ScheduleTimeout(id TimerID, d time.Duration) {
	c.CancelTimeout()
	c.cs.timer = c.cs.clock.AfterFunc(d, func() {
		c.cs.OnTimeout(id)
	})
}

func (c *driverContext) CancelTimeout() {
	if c.cs.timer != nil {
		c.cs.timer.Stop()
		c.cs.timer = nil
	}
}

func (c *driverContext) Propose(height int64, round int32) (*block.Block, error) {
	cs := c.cs
	txs := cs.opts.TxSource.Candidates(height, cs.cfg.txLimit())
	root, err := cs.opts.Committer.StateRoot(cs.lastBlock, txs)
	if err != nil {
		return nil, err
	}
	return block.New(height, cs.lastBlock.Ref().Hash, root, txs, cs.wallet.Address(),
		cs.clock.Now().UnixNano()/int64(time.Millisecond)), nil
}

func (c *driverContext) IsValid(blk *block.Block) bool {
	return c.cs.opts.Validator.IsValid(blk)
}

func (c *driverContext) Finalize(commit *Commit) {
	c.cs.finalized = commit
}

func (c *driverContext) Alarm(a *SafetyAlarm) {
	c.cs.metric.OnSafetyAlarm()
	if c.cs.opts.OnAlarm != nil {
		c.cs.opts.OnAlarm(a)
	}
}
