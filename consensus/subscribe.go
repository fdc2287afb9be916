package consensus

import (
	"context"
	"sync"
)

// commitSubscriber queues commits without bound so that a slow reader
// never stalls the event loop.
type commitSubscriber struct {
	mu    sync.Mutex
	queue []*Commit
	wake  chan struct{}
	out   chan *Commit
}

func (s *commitSubscriber) push(c *Commit) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *commitSubscriber) pop() []*Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *commitSubscriber) run(ctx context.Context, stop <-chan struct{}, onExit func()) {
	defer func() {
		onExit()
		close(s.out)
	}()
	for {
		for _, c := range s.pop() {
			select {
			case s.out <- c:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// SubscribeCommits returns a channel carrying every commit finalized after
// the call, in height order. It is closed when ctx is done or the
// consensus terminates.
func (cs *Consensus) SubscribeCommits(ctx context.Context) <-chan *Commit {
	s := &commitSubscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan *Commit, cs.cfg.CommitBuffer),
	}
	cs.mtx.Lock()
	cs.subs[s] = struct{}{}
	cs.mtx.Unlock()
	go s.run(ctx, cs.stop, func() {
		cs.mtx.Lock()
		delete(cs.subs, s)
		cs.mtx.Unlock()
	})
	return s.out
}

func (cs *Consensus) publish(c *Commit) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	for s := range cs.subs {
		s.push(c)
	}
}

// LastCommit returns the most recent commit seen by this node.
func (cs *Consensus) LastCommit() *Commit {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.lastCommit
}
