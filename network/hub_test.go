package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/module"
)

const (
	testProto  module.ProtocolInfo = 0x0100
	otherProto module.ProtocolInfo = 0x0200
)

type testReactor struct {
	lock     sync.Mutex
	received [][]byte
	from     []module.PeerID
	joined   []module.PeerID
	ch       chan struct{}
}

func newTestReactor() *testReactor {
	return &testReactor{ch: make(chan struct{}, 100)}
}

func (r *testReactor) OnReceive(pi module.ProtocolInfo, b []byte, from module.PeerID) (bool, error) {
	r.lock.Lock()
	r.received = append(r.received, b)
	r.from = append(r.from, from)
	r.lock.Unlock()
	r.ch <- struct{}{}
	return false, nil
}

func (r *testReactor) OnJoin(id module.PeerID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.joined = append(r.joined, id)
}

func (r *testReactor) OnLeave(id module.PeerID) {}

func (r *testReactor) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.received)
}

func peerID(b byte) module.PeerID {
	var id common.Address
	id[19] = b
	return id
}

func setupPeers(t *testing.T, h *Hub, n int) ([]module.ProtocolHandler, []*testReactor) {
	var phs []module.ProtocolHandler
	var rs []*testReactor
	for i := 0; i < n; i++ {
		m, err := h.NewManager(peerID(byte(i + 1)))
		require.NoError(t, err)
		r := newTestReactor()
		ph, err := m.RegisterReactor("test", r, []module.ProtocolInfo{testProto})
		require.NoError(t, err)
		phs = append(phs, ph)
		rs = append(rs, r)
	}
	return phs, rs
}

func waitReceive(t *testing.T, r *testReactor) {
	select {
	case <-r.ch:
	case <-time.After(time.Second):
		t.Fatal("no packet delivered")
	}
}

func TestHub_BroadcastReachesOthers(t *testing.T) {
	h := NewHub(nil)
	phs, rs := setupPeers(t, h, 3)

	require.NoError(t, phs[0].Broadcast(testProto, []byte("hello")))
	waitReceive(t, rs[1])
	waitReceive(t, rs[2])
	assert.Equal(t, 0, rs[0].count())
	assert.Equal(t, []byte("hello"), rs[1].received[0])
	assert.Equal(t, peerID(1), rs[2].from[0])

	assert.Len(t, phs[0].GetPeers(), 2)
}

func TestHub_FiltersSubProtocol(t *testing.T) {
	h := NewHub(nil)
	phs, rs := setupPeers(t, h, 2)

	require.NoError(t, phs[0].Broadcast(otherProto, []byte("skip")))
	require.NoError(t, phs[0].Broadcast(testProto, []byte("take")))
	waitReceive(t, rs[1])
	assert.Equal(t, 1, rs[1].count())
	assert.Equal(t, []byte("take"), rs[1].received[0])
}

func TestHub_Isolate(t *testing.T) {
	h := NewHub(nil)
	phs, rs := setupPeers(t, h, 3)

	h.Isolate(peerID(3), true)
	require.NoError(t, phs[0].Broadcast(testProto, []byte("a")))
	require.NoError(t, phs[2].Broadcast(testProto, []byte("b")))
	waitReceive(t, rs[1])
	assert.Equal(t, 0, rs[2].count())
	assert.Equal(t, 1, rs[1].count())
	assert.Len(t, phs[0].GetPeers(), 1)

	h.Isolate(peerID(3), false)
	require.NoError(t, phs[0].Unicast(testProto, []byte("c"), peerID(3)))
	waitReceive(t, rs[2])
	assert.Equal(t, []byte("c"), rs[2].received[0])
}

func TestHub_JoinAndDuplicate(t *testing.T) {
	h := NewHub(nil)
	_, rs := setupPeers(t, h, 1)
	_, err := h.NewManager(peerID(2))
	require.NoError(t, err)
	assert.Equal(t, []module.PeerID{peerID(2)}, rs[0].joined)

	_, err = h.NewManager(peerID(2))
	assert.Error(t, err)
}

func TestQueue_Bounded(t *testing.T) {
	q := newQueue(2)
	assert.True(t, q.Push(&packet{payload: []byte{1}}))
	assert.True(t, q.Push(&packet{payload: []byte{2}}))
	assert.False(t, q.Push(&packet{payload: []byte{3}}))
	assert.Equal(t, 0, q.Available())

	assert.Equal(t, []byte{1}, q.Pop().payload)
	assert.True(t, q.Push(&packet{payload: []byte{4}}))
	assert.Equal(t, []byte{2}, q.Pop().payload)
	assert.Equal(t, []byte{4}, q.Pop().payload)
	assert.Nil(t, q.Pop())
}
