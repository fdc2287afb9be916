package node

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/icon-project/goagree/chain"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/db"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/module"
	"github.com/icon-project/goagree/server"
	"github.com/icon-project/goagree/server/metric"
)

// Node is one validator: its chain, its consensus service and the
// network manager they share.
type Node struct {
	id    string
	w     module.Wallet
	cfg   *Config
	chain *chain.Chain
	cs    *consensus.Consensus
	nm    module.NetworkManager

	logger log.Logger

	mtx    sync.Mutex
	alarms []*consensus.SafetyAlarm
}

func NewNode(w module.Wallet, nm module.NetworkManager, roster *chain.Roster, cfg *Config,
	logger log.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GlobalLogger()
	}
	addr := w.Address()
	name := hex.EncodeToString(addr[:])
	n := &Node{
		id:  uuid.Must(uuid.NewV4()).String(),
		w:   w,
		cfg: cfg,
		nm:  nm,
	}
	base := logger.WithFields(log.Fields{log.FieldKeyWallet: name})
	n.logger = base.WithFields(log.Fields{log.FieldKeyModule: "NODE"})

	database, err := db.Open(cfg.ResolveAbsolute(cfg.BaseDir), cfg.Chain.DBType, name)
	if err != nil {
		return nil, errors.Wrapf(err, "open database for %s", addr)
	}
	mctx := metric.NewMetricContext(name)
	ch, err := chain.NewChain(database, roster, &cfg.Chain, base, mctx)
	if err != nil {
		database.Close()
		return nil, err
	}
	es, err := consensus.NewEvidenceStore(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	cs, err := consensus.NewConsensus(consensus.Options{
		Wallet:        w,
		Config:        cfg.Consensus,
		Roster:        ch,
		Validator:     ch,
		Committer:     ch,
		TxSource:      ch,
		Sink:          ch,
		Network:       nm,
		Evidence:      es,
		LastBlock:     ch.LastBlock(),
		Logger:        logger,
		MetricContext: mctx,
		OnAlarm:       n.onAlarm,
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	n.chain = ch
	n.cs = cs
	n.logger.Infof("node created id=%s last=%d", n.id, ch.Store().LastHeight())
	return n, nil
}

func (n *Node) onAlarm(a *consensus.SafetyAlarm) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.alarms = append(n.alarms, a)
}

func (n *Node) Start() error {
	return n.cs.Start()
}

// Term stops consensus and closes the database.
func (n *Node) Term() {
	n.cs.Term()
	if err := n.chain.Close(); err != nil {
		n.logger.Warnf("fail to close database err=%+v", err)
	}
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Address() common.Address {
	return n.w.Address()
}

func (n *Node) Wallet() module.Wallet {
	return n.w
}

func (n *Node) Chain() *chain.Chain {
	return n.chain
}

func (n *Node) Consensus() *consensus.Consensus {
	return n.cs
}

func (n *Node) Status() *server.NodeStatus {
	return &server.NodeStatus{
		ID:         n.id,
		Address:    n.w.Address(),
		Consensus:  n.cs.GetStatus(),
		LastHeight: n.chain.Store().LastHeight(),
		TxPool:     n.chain.Pool().Len(),
		Evidence:   n.cs.Detector().Len(),
	}
}

func (n *Node) Evidence() []*consensus.Evidence {
	return n.cs.Detector().Evidence()
}

func (n *Node) EvidenceFor(addr common.Address) []*consensus.Evidence {
	return n.cs.Detector().EvidenceFor(addr)
}

func (n *Node) CommitAt(height int64) (*consensus.Commit, error) {
	return n.chain.Store().CommitAt(height)
}

func (n *Node) SubscribeCommits(ctx context.Context) <-chan *consensus.Commit {
	return n.cs.SubscribeCommits(ctx)
}

func (n *Node) SubmitTx(tx []byte) error {
	return n.chain.Pool().Add(tx)
}

func (n *Node) Alarms() []*consensus.SafetyAlarm {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]*consensus.SafetyAlarm(nil), n.alarms...)
}
