package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/consensus"
)

func (srv *Manager) GetStatus(ctx echo.Context) error {
	nodes := srv.Nodes()
	res := make([]*NodeStatus, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, n.Status())
	}
	return ctx.JSON(http.StatusOK, res)
}

// PostTransaction hands the transaction to every local node. It fails only
// when no node accepted it.
func (srv *Manager) PostTransaction(ctx echo.Context) error {
	req := new(TransactionRequest)
	if err := ctx.Bind(req); err != nil {
		return err
	}
	if err := ctx.Validate(req); err != nil {
		return err
	}
	nodes := srv.Nodes()
	if len(nodes) == 0 {
		return errors.NotFoundError.New("no node")
	}
	res := &TransactionResponse{Hash: block.TxHash(req.Data)}
	var last error
	for _, n := range nodes {
		if err := n.SubmitTx(req.Data); err != nil {
			last = err
			continue
		}
		res.Accepted++
	}
	if res.Accepted == 0 {
		return last
	}
	return ctx.JSON(http.StatusAccepted, res)
}

func GetNodeStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, nodeOf(ctx).Status())
}

func GetEvidence(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, evidenceList(nodeOf(ctx).Evidence()))
}

func GetEvidenceFor(ctx echo.Context) error {
	p := new(EvidenceParam)
	if err := ctx.Bind(p); err != nil {
		return err
	}
	if err := ctx.Validate(p); err != nil {
		return err
	}
	addr, err := common.NewAddressFromString(p.Address)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, evidenceList(nodeOf(ctx).EvidenceFor(addr)))
}

func GetCommit(ctx echo.Context) error {
	p := new(CommitParam)
	if err := ctx.Bind(p); err != nil {
		return err
	}
	if err := ctx.Validate(p); err != nil {
		return err
	}
	c, err := nodeOf(ctx).CommitAt(p.Height)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, NewCommitResponse(c))
}

func evidenceList(es []*consensus.Evidence) []*consensus.Evidence {
	if es == nil {
		return []*consensus.Evidence{}
	}
	return es
}
