package db

import (
	"encoding/binary"

	"github.com/icon-project/goagree/common/errors"
)

type Bucket interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Set(key []byte, value []byte) error
	Delete(key []byte) error
}

type BucketID string

// Bucket IDs
const (
	// CommitByHeight maps framed commit (block and certificate) from height.
	CommitByHeight BucketID = "C"

	// EvidenceBySequence maps framed equivocation evidence from its
	// sequence number.
	EvidenceBySequence BucketID = "E"

	// ChainProperty is general key value map for chain property.
	ChainProperty BucketID = "P"
)

// internalKey returns key prefixed with the bucket's id.
func internalKey(id BucketID, key []byte) []byte {
	buf := make([]byte, len(key)+len(id))
	copy(buf, id)
	copy(buf[len(id):], key)
	return buf
}

func DoGet(bk Bucket, key []byte) ([]byte, error) {
	v, err := bk.Get(key)
	if v == nil && err == nil {
		return nil, errors.NotFoundError.Errorf("NotFound(key=%x)", key)
	}
	return v, err
}

func Int64Key(v int64) []byte {
	bs := make([]byte, 8)
	binary.BigEndian.PutUint64(bs, uint64(v))
	return bs
}
