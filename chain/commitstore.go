package chain

import (
	"sync"

	"github.com/icon-project/goagree/block"
	"github.com/icon-project/goagree/common/cache"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/db"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/consensus"
)

var lastHeightKey = []byte("commit.last")

const commitCacheSize = 128

// CommitStore keeps every finalized commit by height. It accepts commits
// strictly in height order.
type CommitStore struct {
	mu      sync.RWMutex
	commits db.Bucket
	props   db.Bucket
	cache   *cache.LRUCache
	genesis *block.Block
	last    *consensus.Commit
	hooks   []func(c *consensus.Commit)
}

func NewCommitStore(database db.Database, genesis *block.Block) (*CommitStore, error) {
	commits, err := database.GetBucket(db.CommitByHeight)
	if err != nil {
		return nil, err
	}
	props, err := database.GetBucket(db.ChainProperty)
	if err != nil {
		return nil, err
	}
	s := &CommitStore{
		commits: commits,
		props:   props,
		genesis: genesis,
	}
	s.cache = cache.NewLRUCache(commitCacheSize, s.decode)
	bs, err := props.Get(lastHeightKey)
	if err != nil {
		return nil, err
	}
	if bs != nil {
		var height int64
		if _, err := codec.UnmarshalFromBytes(bs, &height); err != nil {
			return nil, errors.Wrapc(err, errors.StorageFormatError, "last height")
		}
		if s.last, err = s.load(height); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OnFinalize registers f to run after each stored commit.
func (s *CommitStore) OnFinalize(f func(c *consensus.Commit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, f)
}

func (s *CommitStore) Finalize(c *consensus.Commit) error {
	s.mu.Lock()
	if expected := s.lastHeightLocked() + 1; c.Height != expected {
		s.mu.Unlock()
		return errors.InvalidStateError.Errorf("commit height=%d expected=%d", c.Height, expected)
	}
	bs, err := codec.EncodeFrame(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.commits.Set(db.Int64Key(c.Height), bs); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.props.Set(lastHeightKey, codec.MustMarshalToBytes(c.Height)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.last = c
	hooks := s.hooks
	s.mu.Unlock()

	for _, f := range hooks {
		f(c)
	}
	return nil
}

func (s *CommitStore) lastHeightLocked() int64 {
	if s.last == nil {
		return s.genesis.Height()
	}
	return s.last.Height
}

func (s *CommitStore) LastHeight() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeightLocked()
}

// LastBlock returns the genesis block until the first commit.
func (s *CommitStore) LastBlock() *block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return s.genesis
	}
	return s.last.Block
}

func (s *CommitStore) LastCommit() *consensus.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// CommitAt returns NotFoundError for heights not finalized yet.
func (s *CommitStore) CommitAt(height int64) (*consensus.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last != nil && s.last.Height == height {
		return s.last, nil
	}
	return s.load(height)
}

func (s *CommitStore) load(height int64) (*consensus.Commit, error) {
	c, err := s.cache.Get(db.Int64Key(height))
	if err != nil {
		return nil, err
	}
	return c.(*consensus.Commit), nil
}

func (s *CommitStore) decode(key []byte) (interface{}, error) {
	bs, err := db.DoGet(s.commits, key)
	if err != nil {
		return nil, err
	}
	c := new(consensus.Commit)
	if err := codec.DecodeFrame(bs, c); err != nil {
		return nil, errors.Wrapcf(err, errors.StorageFormatError, "commit key=%x", key)
	}
	return c, nil
}
