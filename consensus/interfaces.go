package consensus

import (
	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/module"
)

// Transport broadcasts framed messages. Delivery is best effort.
type Transport interface {
	Broadcast(pi module.ProtocolInfo, b []byte) error
}

type BlockValidator interface {
	IsValid(blk *block.Block) bool
}

// StateCommitter supplies the state root a proposed block carries. The
// consensus never recomputes it.
type StateCommitter interface {
	StateRoot(parent *block.Block, txs [][]byte) ([]byte, error)
}

type TxSource interface {
	Candidates(height int64, max int) [][]byte
}

// FinalitySink receives every commit exactly once, in height order.
type FinalitySink interface {
	Finalize(c *Commit) error
}

type RosterSource interface {
	AuthoritiesAt(height int64) ([]Authority, error)
}
