package network

import (
	"fmt"

	"github.com/icon-project/goagree/module"
)

type packet struct {
	subProtocol module.ProtocolInfo
	payload     []byte
	src         module.PeerID
}

func newPacket(spi module.ProtocolInfo, payload []byte, src module.PeerID) *packet {
	return &packet{
		subProtocol: spi,
		payload:     append([]byte(nil), payload...),
		src:         src,
	}
}

func (p *packet) String() string {
	return fmt.Sprintf("{spi:%s,len:%d,src:%s}", p.subProtocol, len(p.payload), p.src)
}
