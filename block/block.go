package block

import (
	"bytes"
	"fmt"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
)

const (
	Version = 1
	HashLen = crypto.HashLen
)

var (
	ErrInvalidBlock = errors.NewBase(errors.IllegalArgumentError, "InvalidBlock")
	ErrInvalidRef   = errors.NewBase(errors.IllegalArgumentError, "InvalidRef")
)

// Ref names a candidate block by the hash of the whole block and the
// digest of its header. The zero Ref is the nil target.
type Ref struct {
	Hash         common.HexBytes `json:"hash"`
	HeaderDigest common.HexBytes `json:"headerDigest"`
}

func (r Ref) IsNil() bool {
	return len(r.Hash) == 0 && len(r.HeaderDigest) == 0
}

func (r Ref) Equal(r2 Ref) bool {
	return bytes.Equal(r.Hash, r2.Hash) && bytes.Equal(r.HeaderDigest, r2.HeaderDigest)
}

// Key returns a comparable form usable as a map key.
func (r Ref) Key() string {
	if r.IsNil() {
		return ""
	}
	return string(r.Hash) + string(r.HeaderDigest)
}

func (r Ref) Verify() error {
	if r.IsNil() {
		return nil
	}
	if len(r.Hash) != HashLen || len(r.HeaderDigest) != HashLen {
		return errors.Wrapf(ErrInvalidRef, "hash=%d digest=%d", len(r.Hash), len(r.HeaderDigest))
	}
	return nil
}

func (r Ref) String() string {
	if r.IsNil() {
		return "<nil>"
	}
	return common.HexPre(r.Hash)
}

type Header struct {
	Version   int             `json:"version"`
	Height    int64           `json:"height"`
	Timestamp int64           `json:"timestamp"`
	Proposer  common.Address  `json:"proposer"`
	Parent    common.HexBytes `json:"parent"`
	StateRoot common.HexBytes `json:"stateRoot"`
	TxRoot    common.HexBytes `json:"txRoot"`
}

func (h *Header) Digest() []byte {
	return crypto.SHA3Sum256(codec.MustEncodeFrame(h))
}

type Block struct {
	Header Header            `json:"header"`
	Txs    []common.HexBytes `json:"txs"`

	ref *Ref
}

// New assembles a block and fills its TxRoot.
func New(height int64, parent []byte, stateRoot []byte, txs [][]byte,
	proposer common.Address, timestamp int64) *Block {
	blk := &Block{
		Header: Header{
			Version:   Version,
			Height:    height,
			Timestamp: timestamp,
			Proposer:  proposer,
			Parent:    parent,
			StateRoot: stateRoot,
		},
	}
	for _, tx := range txs {
		blk.Txs = append(blk.Txs, tx)
	}
	blk.Header.TxRoot = TxRoot(blk.Transactions())
	return blk
}

func TxRoot(txs [][]byte) []byte {
	if len(txs) == 0 {
		return nil
	}
	return crypto.SHA3Sum256(codec.MustEncodeFrame(txs))
}

func TxHash(tx []byte) []byte {
	return crypto.SHA3Sum256(tx)
}

func (b *Block) Height() int64 {
	return b.Header.Height
}

func (b *Block) Transactions() [][]byte {
	txs := make([][]byte, len(b.Txs))
	for i, tx := range b.Txs {
		txs[i] = tx
	}
	return txs
}

// Ref returns the block reference. A block must not be modified after its
// Ref is taken.
func (b *Block) Ref() Ref {
	if b.ref == nil {
		b.ref = &Ref{
			Hash:         crypto.SHA3Sum256(codec.MustEncodeFrame(b)),
			HeaderDigest: b.Header.Digest(),
		}
	}
	return *b.ref
}

// Verify checks the block against its own header.
func (b *Block) Verify() error {
	if b.Header.Version != Version {
		return errors.Wrapf(ErrInvalidBlock, "version=%d", b.Header.Version)
	}
	if b.Header.Height <= 0 {
		return errors.Wrapf(ErrInvalidBlock, "height=%d", b.Header.Height)
	}
	if !bytes.Equal(b.Header.TxRoot, TxRoot(b.Transactions())) {
		return errors.Wrapf(ErrInvalidBlock, "tx root mismatch height=%d", b.Header.Height)
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{H:%d ID:%s Txs:%d Proposer:%s}",
		b.Header.Height, b.Ref(), len(b.Txs), b.Header.Proposer)
}

// Genesis returns the block at height 0 that every node starts from.
func Genesis(stateRoot []byte) *Block {
	return &Block{
		Header: Header{
			Version:   Version,
			StateRoot: stateRoot,
		},
	}
}
