package node

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/icon-project/goagree/chain"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/module"
	"github.com/icon-project/goagree/network"
)

// Cluster runs every validator of one roster in this process, connected
// through a loopback hub.
type Cluster struct {
	hub   *network.Hub
	nodes []*Node
	log   log.Logger
}

// RosterOf gives every wallet weight one from height 1 on.
func RosterOf(ws []module.Wallet) (*chain.Roster, error) {
	auths := make([]consensus.Authority, len(ws))
	for i, w := range ws {
		auths[i] = consensus.Authority{Address: w.Address(), Weight: 1}
	}
	return chain.NewRoster(chain.RosterEntry{Height: 1, Authorities: auths})
}

func NewCluster(ws []module.Wallet, cfg *Config, logger log.Logger) (*Cluster, error) {
	if len(ws) == 0 {
		return nil, errors.FatalConfigError.New("no validator")
	}
	if logger == nil {
		logger = log.GlobalLogger()
	}
	roster, err := RosterOf(ws)
	if err != nil {
		return nil, err
	}
	c := &Cluster{
		hub: network.NewHub(logger),
		log: logger.WithFields(log.Fields{log.FieldKeyModule: "NODE"}),
	}
	for _, w := range ws {
		nm, err := c.hub.NewManager(w.Address())
		if err != nil {
			c.Term()
			return nil, err
		}
		n, err := NewNode(w, nm, roster, cfg, logger)
		if err != nil {
			c.Term()
			return nil, err
		}
		c.nodes = append(c.nodes, n)
	}
	return c, nil
}

func (c *Cluster) Start() error {
	egrp, _ := errgroup.WithContext(context.Background())
	for _, n := range c.nodes {
		egrp.Go(n.Start)
	}
	if err := egrp.Wait(); err != nil {
		return err
	}
	c.log.Infof("cluster started validators=%d", len(c.nodes))
	return nil
}

func (c *Cluster) Term() {
	for _, n := range c.nodes {
		n.Term()
	}
}

func (c *Cluster) Nodes() []*Node {
	return c.nodes
}

func (c *Cluster) Hub() *network.Hub {
	return c.hub
}
