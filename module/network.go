package module

import (
	"fmt"

	"github.com/icon-project/goagree/common"
)

type PeerID = common.Address

type ProtocolInfo uint16

func NewProtocolInfo(id byte, version byte) ProtocolInfo {
	return ProtocolInfo(int(id)<<8 | int(version))
}

func (pi ProtocolInfo) ID() byte {
	return byte(pi >> 8)
}

func (pi ProtocolInfo) Version() byte {
	return byte(pi)
}

func (pi ProtocolInfo) Uint16() uint16 {
	return uint16(pi)
}

func (pi ProtocolInfo) String() string {
	return fmt.Sprintf("{ID:%#02x,Ver:%#02x}", pi.ID(), pi.Version())
}

type Reactor interface {
	// OnReceive is called from the network goroutine. Returning true asks
	// the network to relay the payload to other peers.
	OnReceive(pi ProtocolInfo, b []byte, from PeerID) (bool, error)
	OnJoin(id PeerID)
	OnLeave(id PeerID)
}

type ProtocolHandler interface {
	Broadcast(pi ProtocolInfo, b []byte) error
	Unicast(pi ProtocolInfo, b []byte, id PeerID) error
	GetPeers() []PeerID
}

type NetworkManager interface {
	RegisterReactor(name string, r Reactor, pis []ProtocolInfo) (ProtocolHandler, error)
	UnregisterReactor(r Reactor) error
	PeerID() PeerID
}
