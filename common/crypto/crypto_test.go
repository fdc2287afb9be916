package crypto

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPair(t *testing.T) {
	sk, pk := GenerateKeyPair()
	assert.True(t, sk.PublicKey().Equal(pk))
	assert.Equal(t, sk.String(), fmt.Sprint(sk))

	sk2, err := ParsePrivateKey(sk.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, sk.Bytes(), sk2.Bytes())

	_, err = ParsePrivateKey([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPublicKeyFormats(t *testing.T) {
	_, pk := GenerateKeyPair()

	c := pk.SerializeCompressed()
	assert.Len(t, c, PublicKeyLenCompressed)
	u := pk.SerializeUncompressed()
	assert.Len(t, u, PublicKeyLenUncompressed)

	pk1, err := ParsePublicKey(c)
	assert.NoError(t, err)
	assert.True(t, pk.Equal(pk1))
	pk2, err := ParsePublicKey(u)
	assert.NoError(t, err)
	assert.True(t, pk.Equal(pk2))

	_, err = ParsePublicKey(nil)
	assert.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	sk, pk := GenerateKeyPair()
	hash := SHA3Sum256([]byte("prevote h=10 r=0"))

	sig, err := NewSignature(hash, sk)
	assert.NoError(t, err)
	assert.True(t, sig.Verify(hash, pk))

	rsv, err := sig.SerializeRSV()
	assert.NoError(t, err)
	assert.Len(t, rsv, SignatureLenRawWithV)

	sig2, err := ParseSignature(rsv)
	assert.NoError(t, err)
	recovered, err := sig2.RecoverPublicKey(hash)
	assert.NoError(t, err)
	assert.True(t, pk.Equal(recovered))

	other := SHA3Sum256([]byte("prevote h=10 r=1"))
	recovered, err = sig2.RecoverPublicKey(other)
	if err == nil {
		assert.False(t, pk.Equal(recovered))
	}
	assert.False(t, sig2.Verify(other, pk))
}

func TestSignatureInvalidInput(t *testing.T) {
	sk, _ := GenerateKeyPair()
	_, err := NewSignature([]byte{1}, sk)
	assert.Error(t, err)
	_, err = NewSignature(SHA3Sum256(nil), nil)
	assert.Error(t, err)

	for _, size := range []int{0, SignatureLenRaw, SignatureLenRawWithV + 1} {
		_, err := ParseSignature(make([]byte, size))
		assert.Error(t, err, "size=%d", size)
	}

	var empty Signature
	_, err = empty.SerializeRSV()
	assert.Error(t, err)
	assert.Equal(t, "[empty]", empty.String())
}
