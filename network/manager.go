package network

import (
	"sync"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/module"
)

type manager struct {
	hub      *Hub
	id       module.PeerID
	lock     sync.RWMutex
	handlers map[module.Reactor]*protocolHandler
	log      log.Logger
}

func newManager(h *Hub, id module.PeerID) *manager {
	return &manager{
		hub:      h,
		id:       id,
		handlers: make(map[module.Reactor]*protocolHandler),
		log:      h.log.WithFields(log.Fields{log.FieldKeyWallet: id.String()[2:]}),
	}
}

func (m *manager) PeerID() module.PeerID {
	return m.id
}

func (m *manager) RegisterReactor(name string, r module.Reactor, spiList []module.ProtocolInfo) (module.ProtocolHandler, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.handlers[r]; ok {
		return nil, errors.InvalidStateError.Errorf("already registered reactor=%s", name)
	}
	ph := newProtocolHandler(m, spiList, r, name, m.hub.queueSize)
	m.handlers[r] = ph
	m.log.Debugf("RegisterReactor name=%s protocols=%v", name, spiList)
	return ph, nil
}

func (m *manager) UnregisterReactor(r module.Reactor) error {
	m.lock.Lock()
	ph, ok := m.handlers[r]
	delete(m.handlers, r)
	empty := len(m.handlers) == 0
	m.lock.Unlock()

	if !ok {
		return errors.NotFoundError.New("unknown reactor")
	}
	ph.stop()
	if empty {
		m.hub.detach(m.id)
	}
	return nil
}

func (m *manager) onPacket(pkt *packet) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, ph := range m.handlers {
		ph.onPacket(pkt)
	}
}

func (m *manager) onJoin(id module.PeerID) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, ph := range m.handlers {
		ph.reactor.OnJoin(id)
	}
}

func (m *manager) onLeave(id module.PeerID) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, ph := range m.handlers {
		ph.reactor.OnLeave(id)
	}
}
