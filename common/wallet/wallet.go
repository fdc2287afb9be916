package wallet

import (
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/module"
)

type softwareWallet struct {
	skey    *crypto.PrivateKey
	pkey    *crypto.PublicKey
	address common.Address
}

func (w *softwareWallet) Address() common.Address {
	return w.address
}

func (w *softwareWallet) Sign(hash []byte) ([]byte, error) {
	sig, err := crypto.NewSignature(hash, w.skey)
	if err != nil {
		return nil, err
	}
	return sig.SerializeRSV()
}

func (w *softwareWallet) PublicKey() []byte {
	return w.pkey.SerializeCompressed()
}

func New() module.Wallet {
	sk, _ := crypto.GenerateKeyPair()
	return NewFromPrivateKey(sk)
}

func NewFromPrivateKey(sk *crypto.PrivateKey) module.Wallet {
	pk := sk.PublicKey()
	return &softwareWallet{
		skey:    sk,
		pkey:    pk,
		address: common.NewAddressFromPublicKey(pk),
	}
}
