package crypto

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/icon-project/goagree/common/errors"
)

const (
	SignatureLenRawWithV = 65
	SignatureLenRaw      = 64
	HashLen              = 32
)

const compactSigMagicOffset = 27

// Signature is a recoverable ECDSA signature kept as [V|R|S] with the
// compact magic offset applied to V.
type Signature struct {
	bytes []byte
}

func NewSignature(hash []byte, privKey *PrivateKey) (*Signature, error) {
	if len(hash) != HashLen || privKey == nil {
		return nil, errors.IllegalArgumentError.New("invalid arguments for signing")
	}
	return &Signature{
		bytes: ecdsa.SignCompact(privKey.real, hash, false),
	}, nil
}

// ParseSignature parses a 65-byte [R|S|V] signature.
func ParseSignature(sig []byte) (*Signature, error) {
	if len(sig) != SignatureLenRawWithV {
		return nil, errors.IllegalArgumentError.Errorf("signature length=%d", len(sig))
	}
	vrs := make([]byte, SignatureLenRawWithV)
	copy(vrs[1:], sig[:SignatureLenRaw])
	vrs[0] = sig[SignatureLenRaw] + compactSigMagicOffset
	return &Signature{bytes: vrs}, nil
}

// SerializeRSV returns the 65-byte [R|S|V] form with V in {0,1}.
func (sig *Signature) SerializeRSV() ([]byte, error) {
	if sig == nil || len(sig.bytes) != SignatureLenRawWithV {
		return nil, errors.InvalidStateError.New("empty signature")
	}
	s := make([]byte, SignatureLenRawWithV)
	copy(s[:SignatureLenRaw], sig.bytes[1:])
	s[SignatureLenRaw] = sig.bytes[0] - compactSigMagicOffset
	return s, nil
}

func (sig *Signature) RecoverPublicKey(hash []byte) (*PublicKey, error) {
	if sig == nil || len(sig.bytes) != SignatureLenRawWithV {
		return nil, errors.IllegalArgumentError.New("empty signature")
	}
	if len(hash) != HashLen {
		return nil, errors.IllegalArgumentError.Errorf("hash length=%d", len(hash))
	}
	pk, _, err := ecdsa.RecoverCompact(sig.bytes, hash)
	if err != nil {
		return nil, errors.IllegalArgumentError.Wrap(err, "recover failed")
	}
	return &PublicKey{real: pk}, nil
}

func (sig *Signature) Verify(hash []byte, pubKey *PublicKey) bool {
	if sig == nil || len(sig.bytes) != SignatureLenRawWithV ||
		len(hash) != HashLen || pubKey == nil {
		return false
	}
	r := new(secp256k1.ModNScalar)
	s := new(secp256k1.ModNScalar)
	if overflow := r.SetByteSlice(sig.bytes[1:33]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig.bytes[33:]); overflow {
		return false
	}
	return ecdsa.NewSignature(r, s).Verify(hash, pubKey.real)
}

func (sig *Signature) String() string {
	if sig == nil || len(sig.bytes) == 0 {
		return "[empty]"
	}
	rsv, _ := sig.SerializeRSV()
	return "0x" + hex.EncodeToString(rsv)
}
