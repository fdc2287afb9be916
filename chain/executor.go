package chain

import (
	"bytes"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/log"
)

type stateTransition struct {
	Parent   []byte
	TxHashes [][]byte
}

// Executor derives state roots by chaining the parent state root with the
// hashes of the applied transactions, and validates candidate blocks
// against the last finalized one.
type Executor struct {
	store  *CommitStore
	maxTxs int
	log    log.Logger
}

func NewExecutor(store *CommitStore, maxTxs int, logger log.Logger) *Executor {
	return &Executor{
		store:  store,
		maxTxs: maxTxs,
		log:    logger,
	}
}

func (e *Executor) StateRoot(parent *block.Block, txs [][]byte) ([]byte, error) {
	st := stateTransition{
		Parent:   parent.Header.StateRoot,
		TxHashes: make([][]byte, len(txs)),
	}
	for i, tx := range txs {
		st.TxHashes[i] = block.TxHash(tx)
	}
	bs, err := codec.EncodeFrame(&st)
	if err != nil {
		return nil, err
	}
	return crypto.SHA3Sum256(bs), nil
}

func (e *Executor) IsValid(blk *block.Block) bool {
	if err := blk.Verify(); err != nil {
		e.log.Debugf("invalid block %s err=%v", blk, err)
		return false
	}
	last := e.store.LastBlock()
	if blk.Height() != last.Height()+1 {
		e.log.Debugf("invalid block %s last height=%d", blk, last.Height())
		return false
	}
	if !bytes.Equal(blk.Header.Parent, last.Ref().Hash) {
		e.log.Debugf("invalid block %s parent mismatch", blk)
		return false
	}
	if e.maxTxs >= 0 && len(blk.Txs) > e.maxTxs {
		e.log.Debugf("invalid block %s too many txs max=%d", blk, e.maxTxs)
		return false
	}
	for _, tx := range blk.Txs {
		if len(tx) == 0 || len(tx) > MaxTxSize {
			e.log.Debugf("invalid block %s tx size=%d", blk, len(tx))
			return false
		}
	}
	root, err := e.StateRoot(last, blk.Transactions())
	if err != nil || !bytes.Equal(root, blk.Header.StateRoot) {
		e.log.Debugf("invalid block %s state root mismatch", blk)
		return false
	}
	return true
}
