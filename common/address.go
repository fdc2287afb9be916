package common

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
)

const AddressBytes = 20

// Address identifies an authority. It is derived from the public key and
// is comparable, so it can be used as a map key.
type Address [AddressBytes]byte

var ErrInvalidAddress = errors.NewBase(errors.IllegalArgumentError, "InvalidAddress")

func (a Address) String() string {
	return "hx" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return a.SetString(s)
}

// SetString accepts "hx" followed by 40 lower-case hex digits. The prefix
// may be omitted.
func (a *Address) SetString(s string) error {
	s = strings.TrimPrefix(s, "hx")
	if len(s) != AddressBytes*2 || strings.ToLower(s) != s {
		return errors.Wrapf(ErrInvalidAddress, "address=%q", s)
	}
	bs, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrapc(err, errors.IllegalArgumentError, "address is not hex")
	}
	copy(a[:], bs)
	return nil
}

func (a *Address) SetBytes(b []byte) error {
	if len(b) != AddressBytes {
		return errors.Wrapf(ErrInvalidAddress, "address length=%d", len(b))
	}
	copy(a[:], b)
	return nil
}

func NewAddress(b []byte) (Address, error) {
	var a Address
	err := a.SetBytes(b)
	return a, err
}

func NewAddressFromString(s string) (Address, error) {
	var a Address
	err := a.SetString(s)
	return a, err
}

func MustNewAddressFromString(s string) Address {
	a, err := NewAddressFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAddressFromPublicKey takes the last 20 bytes of SHA3-256 over the
// uncompressed key without its format byte.
func NewAddressFromPublicKey(pubKey *crypto.PublicKey) Address {
	pk := pubKey.SerializeUncompressed()
	digest := crypto.SHA3Sum256(pk[1:])
	var a Address
	copy(a[:], digest[len(digest)-AddressBytes:])
	return a
}
