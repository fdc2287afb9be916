package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/icon-project/goagree/common/codec"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
)

func TestAddress_SetString(t *testing.T) {
	tests := []struct {
		name string
		s    string
		ok   bool
	}{
		{"Prefixed", "hx1234567890abcdef1234567890abcdef12345678", true},
		{"NoPrefix", "1234567890abcdef1234567890abcdef12345678", true},
		{"Short", "hx1234567890abcdef1234567890abcdef123456", false},
		{"Upper", "hx1234567890ABCDEF1234567890abcdef12345678", false},
		{"NotHex", "hx1234567890abcdef1234567890abcdef1234567z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAddressFromString(tt.s)
			if !tt.ok {
				assert.Error(t, err)
				assert.Equal(t, errors.IllegalArgumentError, errors.CodeOf(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "hx1234567890abcdef1234567890abcdef12345678", a.String())
		})
	}
}

func TestAddress_FromPublicKey(t *testing.T) {
	sk, pk := crypto.GenerateKeyPair()
	a1 := NewAddressFromPublicKey(pk)
	a2 := NewAddressFromPublicKey(sk.PublicKey())
	assert.Equal(t, a1, a2)
	assert.False(t, a1.IsZero())

	_, pk2 := crypto.GenerateKeyPair()
	assert.NotEqual(t, a1, NewAddressFromPublicKey(pk2))
}

func TestAddress_Encoding(t *testing.T) {
	a := MustNewAddressFromString("hx0001020304050607080910111213141516171819")

	js, err := json.Marshal(a)
	assert.NoError(t, err)
	assert.Equal(t, `"hx0001020304050607080910111213141516171819"`, string(js))
	var a2 Address
	assert.NoError(t, json.Unmarshal(js, &a2))
	assert.Equal(t, a, a2)

	bs, err := codec.MarshalToBytes(a)
	assert.NoError(t, err)
	var a3 Address
	_, err = codec.UnmarshalFromBytes(bs, &a3)
	assert.NoError(t, err)
	assert.Equal(t, a, a3)

	a4, err := NewAddress(a.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, a, a4)
	_, err = NewAddress(a.Bytes()[1:])
	assert.Error(t, err)
}
