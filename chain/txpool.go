package chain

import (
	"container/list"
	"sync"
	"time"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/server/metric"
)

const (
	DefaultTxPoolSize = 5000
	MaxTxSize         = 64 * 1024
)

var (
	ErrDuplicateTransaction    = errors.NewBase(errors.IllegalArgumentError, "DuplicateTransaction")
	ErrTransactionPoolOverflow = errors.NewBase(errors.InvalidStateError, "TransactionPoolOverflow")
	ErrInvalidTransaction      = errors.NewBase(errors.IllegalArgumentError, "InvalidTransaction")
)

// TxPool keeps pending transactions in arrival order. Transactions are
// opaque byte strings identified by their SHA3 hash.
type TxPool struct {
	mutex  sync.Mutex
	size   int
	txList *list.List
	txMap  map[string]*list.Element
	metric *metric.TxMetric
	log    log.Logger
}

func NewTxPool(size int, m *metric.TxMetric, logger log.Logger) *TxPool {
	if size <= 0 {
		size = DefaultTxPoolSize
	}
	return &TxPool{
		size:   size,
		txList: list.New(),
		txMap:  make(map[string]*list.Element),
		metric: m,
		log:    logger,
	}
}

/*
	return ErrInvalidTransaction if tx is empty or too large
	return ErrTransactionPoolOverflow if pool is full
	return ErrDuplicateTransaction if tx exists in pool
*/
func (p *TxPool) Add(tx []byte) error {
	if len(tx) == 0 || len(tx) > MaxTxSize {
		return errors.Wrapf(ErrInvalidTransaction, "size=%d", len(tx))
	}
	hash := block.TxHash(tx)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.txMap[string(hash)]; ok {
		return ErrDuplicateTransaction
	}
	if p.txList.Len() >= p.size {
		if p.metric != nil {
			p.metric.OnDropTx(len(tx))
		}
		return ErrTransactionPoolOverflow
	}
	tx = append([]byte(nil), tx...)
	p.txMap[string(hash)] = p.txList.PushBack(tx)
	if p.metric != nil {
		p.metric.OnAddTx(hash, len(tx))
	}
	return nil
}

// Candidates returns up to max transactions from the front of the pool.
// It returns all of them for a negative max. The pool is not changed;
// transactions leave it when a block containing them is finalized.
func (p *TxPool) Candidates(height int64, max int) [][]byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	n := p.txList.Len()
	if max >= 0 && max < n {
		n = max
	}
	txs := make([][]byte, 0, n)
	for iter := p.txList.Front(); iter != nil && len(txs) < n; iter = iter.Next() {
		txs = append(txs, iter.Value.([]byte))
	}
	return txs
}

// RemoveCommitted drops the transactions of a finalized block.
func (p *TxPool) RemoveCommitted(c *consensus.Commit) {
	txs := c.Block.Transactions()
	hashes := make([][]byte, 0, len(txs))

	p.mutex.Lock()
	for _, tx := range txs {
		hash := block.TxHash(tx)
		if e, ok := p.txMap[string(hash)]; ok {
			p.txList.Remove(e)
			delete(p.txMap, string(hash))
			hashes = append(hashes, hash)
		}
	}
	p.mutex.Unlock()

	if p.metric != nil {
		p.metric.OnFinalize(hashes, time.Now())
	}
	if len(hashes) > 0 {
		p.log.Debugf("remove %d committed txs height=%d", len(hashes), c.Height)
	}
}

func (p *TxPool) Has(hash []byte) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, ok := p.txMap[string(hash)]
	return ok
}

func (p *TxPool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.txList.Len()
}
