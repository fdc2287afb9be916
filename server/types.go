package server

import (
	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/module"
)

type NodeStatus struct {
	ID         string                  `json:"id"`
	Address    common.Address          `json:"address"`
	Consensus  *module.ConsensusStatus `json:"consensus"`
	LastHeight int64                   `json:"last_height"`
	TxPool     int                     `json:"tx_pool"`
	Evidence   int                     `json:"evidence"`
}

type VoteResponse struct {
	Authority common.Address  `json:"authority"`
	Signature common.HexBytes `json:"signature"`
}

type CommitResponse struct {
	Height int64           `json:"height"`
	Round  int32           `json:"round"`
	Hash   common.HexBytes `json:"hash"`
	Block  *block.Block    `json:"block"`
	Votes  []VoteResponse  `json:"votes"`
}

func NewCommitResponse(c *consensus.Commit) *CommitResponse {
	res := &CommitResponse{
		Height: c.Height,
		Round:  c.Round,
		Hash:   c.Block.Ref().Hash,
		Block:  c.Block,
	}
	if c.Certificate != nil {
		for _, v := range c.Certificate.Votes {
			res.Votes = append(res.Votes, VoteResponse{
				Authority: v.Authority,
				Signature: v.Signature,
			})
		}
	}
	return res
}

// CommitNotification is pushed to commit stream sessions.
type CommitNotification struct {
	Height int64           `json:"height"`
	Round  int32           `json:"round"`
	Hash   common.HexBytes `json:"hash"`
	Txs    int             `json:"txs"`
}

type CommitRequest struct {
	// Height is the first height to stream. Zero streams from the next commit.
	Height int64 `json:"height" validate:"min=0"`
}

type CommitParam struct {
	Height int64 `param:"height" validate:"min=1"`
}

type EvidenceParam struct {
	Address string `param:"address" validate:"t_addr"`
}

type TransactionRequest struct {
	Data common.HexBytes `json:"data" validate:"t_tx"`
}

type TransactionResponse struct {
	Hash     common.HexBytes `json:"hash"`
	Accepted int             `json:"accepted"`
}
