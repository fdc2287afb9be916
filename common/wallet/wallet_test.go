package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
)

const testScryptN = 1 << 10

func TestWallet_SignRecover(t *testing.T) {
	w := New()
	hash := crypto.SHA3Sum256([]byte("precommit"))

	sigBytes, err := w.Sign(hash)
	require.NoError(t, err)
	sig, err := crypto.ParseSignature(sigBytes)
	require.NoError(t, err)
	pk, err := sig.RecoverPublicKey(hash)
	require.NoError(t, err)

	assert.Equal(t, w.Address(), common.NewAddressFromPublicKey(pk))
	assert.Equal(t, w.PublicKey(), pk.SerializeCompressed())
}

func TestKeyStore_RoundTrip(t *testing.T) {
	w := New()
	ks, err := KeyStoreFromWallet(w, []byte("secret"), testScryptN)
	require.NoError(t, err)

	addr, err := ReadAddressFromKeyStore(ks)
	assert.NoError(t, err)
	assert.Equal(t, w.Address(), addr)

	w2, err := NewFromKeyStore(ks, []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, w.Address(), w2.Address())

	_, err = NewFromKeyStore(ks, []byte("wrong"))
	assert.True(t, errors.Is(err, ErrInvalidPassword))
}
