package network

import (
	"sort"
	"sync"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/module"
)

const DefaultReceiveQueueSize = 1000

// Hub connects in-process network managers. Every broadcast is delivered
// to every other reachable peer on a per-handler goroutine.
type Hub struct {
	lock      sync.RWMutex
	managers  map[module.PeerID]*manager
	isolated  map[module.PeerID]bool
	queueSize int
	log       log.Logger
}

func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.GlobalLogger()
	}
	return &Hub{
		managers:  make(map[module.PeerID]*manager),
		isolated:  make(map[module.PeerID]bool),
		queueSize: DefaultReceiveQueueSize,
		log:       logger.WithFields(log.Fields{log.FieldKeyModule: "NM"}),
	}
}

// NewManager attaches a peer to the hub.
func (h *Hub) NewManager(id module.PeerID) (module.NetworkManager, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.managers[id]; ok {
		return nil, errors.IllegalArgumentError.Errorf("duplicate peer %s", id)
	}
	m := newManager(h, id)
	h.managers[id] = m
	for pid, other := range h.managers {
		if pid != id {
			other.onJoin(id)
			m.onJoin(pid)
		}
	}
	return m, nil
}

// Isolate cuts the peer off in both directions until it is restored with
// isolate=false.
func (h *Hub) Isolate(id module.PeerID, isolate bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if isolate {
		h.isolated[id] = true
	} else {
		delete(h.isolated, id)
	}
}

func (h *Hub) reachable(from, to module.PeerID) bool {
	return from != to && !h.isolated[from] && !h.isolated[to]
}

func (h *Hub) peersOf(id module.PeerID) []module.PeerID {
	h.lock.RLock()
	defer h.lock.RUnlock()

	peers := make([]module.PeerID, 0, len(h.managers))
	for pid := range h.managers {
		if h.reachable(id, pid) {
			peers = append(peers, pid)
		}
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].String() < peers[j].String()
	})
	return peers
}

func (h *Hub) broadcast(pkt *packet) error {
	h.lock.RLock()
	defer h.lock.RUnlock()

	if h.isolated[pkt.src] {
		return nil
	}
	for pid, m := range h.managers {
		if h.reachable(pkt.src, pid) {
			m.onPacket(pkt)
		}
	}
	return nil
}

func (h *Hub) unicast(pkt *packet, id module.PeerID) error {
	h.lock.RLock()
	defer h.lock.RUnlock()

	m, ok := h.managers[id]
	if !ok {
		return errors.NotFoundError.Errorf("unknown peer %s", id)
	}
	if h.reachable(pkt.src, id) {
		m.onPacket(pkt)
	}
	return nil
}

func (h *Hub) detach(id module.PeerID) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.managers, id)
	for _, other := range h.managers {
		other.onLeave(id)
	}
}
