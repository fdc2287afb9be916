package consensus

import (
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/module"
)

// signedBase caches the digest and the recovered signer of a message. The
// digest is SHA3-256 over the framed encoding of the unsigned content.
type signedBase struct {
	_hash   []byte
	_signer *common.Address
	_err    error
}

func (s *signedBase) reset() {
	s._hash = nil
	s._signer = nil
	s._err = nil
}

func (s *signedBase) hash(content interface{}) []byte {
	if s._hash == nil {
		s._hash = crypto.SHA3Sum256(codec.MustEncodeFrame(content))
	}
	return s._hash
}

func (s *signedBase) signer(content interface{}, sigBytes []byte) (common.Address, error) {
	if s._signer == nil && s._err == nil {
		s._err = func() error {
			sig, err := crypto.ParseSignature(sigBytes)
			if err != nil {
				return err
			}
			pk, err := sig.RecoverPublicKey(s.hash(content))
			if err != nil {
				return err
			}
			addr := common.NewAddressFromPublicKey(pk)
			s._signer = &addr
			return nil
		}()
		if s._err != nil {
			s._err = errors.InvalidSignatureError.Wrap(s._err, "bad signature")
		}
	}
	if s._err != nil {
		return common.Address{}, s._err
	}
	return *s._signer, nil
}

func (s *signedBase) sign(w module.Wallet, content interface{}) ([]byte, error) {
	s.reset()
	sig, err := w.Sign(s.hash(content))
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	return sig, nil
}
