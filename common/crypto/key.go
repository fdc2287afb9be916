package crypto

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/icon-project/goagree/common/errors"
)

const (
	PrivateKeyLen = 32

	PublicKeyLenCompressed   = 33
	PublicKeyLenUncompressed = 65
)

type PrivateKey struct {
	real *secp256k1.PrivateKey
}

// PublicKey is a secp256k1 public key; it serializes to the 33-byte
// compressed form unless asked otherwise.
type PublicKey struct {
	real *secp256k1.PublicKey
}

func GenerateKeyPair() (*PrivateKey, *PublicKey) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	return &PrivateKey{sk}, &PublicKey{sk.PubKey()}
}

func ParsePrivateKey(bs []byte) (*PrivateKey, error) {
	if len(bs) != PrivateKeyLen {
		return nil, errors.IllegalArgumentError.Errorf("private key length=%d", len(bs))
	}
	return &PrivateKey{secp256k1.PrivKeyFromBytes(bs)}, nil
}

func (key *PrivateKey) Bytes() []byte {
	return key.real.Serialize()
}

func (key *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key.real.PubKey()}
}

func (key *PrivateKey) String() string {
	return "0x" + hex.EncodeToString(key.Bytes())
}

func ParsePublicKey(bs []byte) (*PublicKey, error) {
	switch len(bs) {
	case PublicKeyLenCompressed, PublicKeyLenUncompressed:
	default:
		return nil, errors.IllegalArgumentError.Errorf("public key length=%d", len(bs))
	}
	pk, err := secp256k1.ParsePubKey(bs)
	if err != nil {
		return nil, errors.IllegalArgumentError.Wrap(err, "invalid public key")
	}
	return &PublicKey{pk}, nil
}

func (key *PublicKey) SerializeCompressed() []byte {
	return key.real.SerializeCompressed()
}

func (key *PublicKey) SerializeUncompressed() []byte {
	return key.real.SerializeUncompressed()
}

func (key *PublicKey) Equal(key2 *PublicKey) bool {
	if key == nil || key2 == nil {
		return key == key2
	}
	return key.real.IsEqual(key2.real)
}

func (key *PublicKey) String() string {
	return "0x" + hex.EncodeToString(key.SerializeCompressed())
}
