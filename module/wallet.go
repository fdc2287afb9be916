package module

import "github.com/icon-project/goagree/common"

// Wallet signs 32-byte digests with the node's authority key.
type Wallet interface {
	Address() common.Address
	Sign(hash []byte) ([]byte, error)
	PublicKey() []byte
}
