package network

import (
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/module"
)

type protocolHandler struct {
	m            *manager
	subProtocols map[module.ProtocolInfo]bool
	reactor      module.Reactor
	name         string
	receiveQueue *queue
	done         chan struct{}
	log          log.Logger
}

func newProtocolHandler(m *manager, spiList []module.ProtocolInfo, r module.Reactor, name string, size int) *protocolHandler {
	ph := &protocolHandler{
		m:            m,
		subProtocols: make(map[module.ProtocolInfo]bool),
		reactor:      r,
		name:         name,
		receiveQueue: newQueue(size),
		done:         make(chan struct{}),
		log:          m.log.WithFields(log.Fields{"reactor": name}),
	}
	for _, sp := range spiList {
		ph.subProtocols[sp] = true
	}
	go ph.receiveRoutine()
	return ph
}

func (ph *protocolHandler) receiveRoutine() {
	for {
		select {
		case <-ph.done:
			return
		case <-ph.receiveQueue.Wait():
		}
		for {
			pkt := ph.receiveQueue.Pop()
			if pkt == nil {
				break
			}
			if _, err := ph.reactor.OnReceive(pkt.subProtocol, pkt.payload, pkt.src); err != nil {
				ph.log.Tracef("receiveRoutine pkt=%s err=%v", pkt, err)
			}
		}
	}
}

func (ph *protocolHandler) onPacket(pkt *packet) {
	if !ph.subProtocols[pkt.subProtocol] {
		return
	}
	if ok := ph.receiveQueue.Push(pkt); !ok {
		ph.log.Debugf("onPacket receiveQueue Push failure pkt=%s", pkt)
	}
}

func (ph *protocolHandler) stop() {
	close(ph.done)
}

func (ph *protocolHandler) Broadcast(pi module.ProtocolInfo, b []byte) error {
	return ph.m.hub.broadcast(newPacket(pi, b, ph.m.id))
}

func (ph *protocolHandler) Unicast(pi module.ProtocolInfo, b []byte, id module.PeerID) error {
	return ph.m.hub.unicast(newPacket(pi, b, ph.m.id), id)
}

func (ph *protocolHandler) GetPeers() []module.PeerID {
	return ph.m.hub.peersOf(ph.m.id)
}
