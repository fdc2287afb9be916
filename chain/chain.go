package chain

import (
	"context"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/db"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/server/metric"
)

type Config struct {
	DBType         string `json:"db_type"`
	TxPoolSize     int    `json:"tx_pool_size,omitempty"`
	MaxTxsPerBlock int    `json:"max_txs_per_block,omitempty"`
	// GenesisState is the state root of the genesis block.
	GenesisState []byte `json:"genesis_state,omitempty"`
}

// Chain is the application side of one node: it feeds transactions to the
// consensus, checks and executes proposed blocks and stores commits.
type Chain struct {
	database db.Database
	pool     *TxPool
	store    *CommitStore
	executor *Executor
	roster   *Roster
	log      log.Logger
}

func NewChain(database db.Database, roster *Roster, cfg *Config, logger log.Logger,
	mctx context.Context) (*Chain, error) {
	logger = logger.WithFields(log.Fields{log.FieldKeyModule: "CH"})
	store, err := NewCommitStore(database, block.Genesis(cfg.GenesisState))
	if err != nil {
		return nil, err
	}
	maxTxs := cfg.MaxTxsPerBlock
	if maxTxs == 0 {
		maxTxs = -1
	}
	c := &Chain{
		database: database,
		pool:     NewTxPool(cfg.TxPoolSize, metric.NewTxMetric(mctx), logger),
		store:    store,
		executor: NewExecutor(store, maxTxs, logger),
		roster:   roster,
		log:      logger,
	}
	store.OnFinalize(c.pool.RemoveCommitted)
	logger.Infof("chain opened last=%d", store.LastHeight())
	return c, nil
}

func (c *Chain) Pool() *TxPool {
	return c.pool
}

func (c *Chain) Store() *CommitStore {
	return c.store
}

func (c *Chain) LastBlock() *block.Block {
	return c.store.LastBlock()
}

func (c *Chain) Candidates(height int64, max int) [][]byte {
	return c.pool.Candidates(height, max)
}

func (c *Chain) StateRoot(parent *block.Block, txs [][]byte) ([]byte, error) {
	return c.executor.StateRoot(parent, txs)
}

func (c *Chain) IsValid(blk *block.Block) bool {
	return c.executor.IsValid(blk)
}

func (c *Chain) Finalize(commit *consensus.Commit) error {
	if err := c.store.Finalize(commit); err != nil {
		return err
	}
	c.log.Infof("finalized height=%d block=%s txs=%d", commit.Height, commit.Block.Ref(),
		len(commit.Block.Txs))
	return nil
}

func (c *Chain) AuthoritiesAt(height int64) ([]consensus.Authority, error) {
	return c.roster.AuthoritiesAt(height)
}

func (c *Chain) Close() error {
	return c.database.Close()
}
