package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/crypto/sha3"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/crypto"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/module"
)

const (
	keyStoreVersion = 3
	cipherAES128CTR = "aes-128-ctr"
	kdfScrypt       = "scrypt"
)

type AES128CTRParams struct {
	IV common.HexBytes `json:"iv"`
}

type ScryptParams struct {
	DKLen int             `json:"dklen"`
	N     int             `json:"n"`
	R     int             `json:"r"`
	P     int             `json:"p"`
	Salt  common.HexBytes `json:"salt"`
}

const DefaultScryptN = 1 << 16

func (p *ScryptParams) Init(n int) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	if n <= 0 {
		n = DefaultScryptN
	}
	p.DKLen = 32
	p.P = 1
	p.R = 8
	p.N = n
	p.Salt = salt
	return nil
}

func (p *ScryptParams) Key(pw []byte) ([]byte, error) {
	return scrypt.Key(pw, p.Salt.Bytes(), p.N, p.R, p.P, p.DKLen)
}

type CryptoData struct {
	Cipher       string          `json:"cipher"`
	CipherParams json.RawMessage `json:"cipherparams"`
	CipherText   common.HexBytes `json:"ciphertext"`
	KDF          string          `json:"kdf"`
	KDFParams    json.RawMessage `json:"kdfparams"`
	MAC          common.HexBytes `json:"mac"`
}

type KeyStoreData struct {
	Address common.Address `json:"address"`
	ID      string         `json:"id"`
	Version int            `json:"version"`
	Crypto  CryptoData     `json:"crypto"`
}

var ErrInvalidPassword = errors.NewBase(errors.IllegalArgumentError, "InvalidPassword")

func macOf(key, cipherText []byte) []byte {
	s := sha3.New256()
	s.Write(key)
	s.Write(cipherText)
	return s.Sum([]byte{})
}

// EncryptKeyAsKeyStore encrypts the key with AES-128-CTR under a scrypt
// derived key. A non-positive n selects DefaultScryptN.
func EncryptKeyAsKeyStore(s *crypto.PrivateKey, pw []byte, n int) ([]byte, error) {
	var ks KeyStoreData
	var c AES128CTRParams
	var k ScryptParams

	if err := k.Init(n); err != nil {
		return nil, err
	}
	key, err := k.Key(pw)
	if err != nil {
		return nil, err
	}
	ks.Crypto.KDF = kdfScrypt
	ks.Crypto.KDFParams, err = json.Marshal(&k)
	if err != nil {
		return nil, err
	}

	b, err := aes.NewCipher(key[0:16])
	if err != nil {
		return nil, err
	}
	c.IV = make([]byte, b.BlockSize())
	_, err = io.ReadFull(rand.Reader, c.IV)
	if err != nil {
		return nil, err
	}
	secret := s.Bytes()
	cipherText := make([]byte, len(secret))
	enc := cipher.NewCTR(b, c.IV)
	enc.XORKeyStream(cipherText, secret)

	ks.Crypto.Cipher = cipherAES128CTR
	ks.Crypto.CipherParams, err = json.Marshal(&c)
	if err != nil {
		return nil, err
	}
	ks.Crypto.CipherText = cipherText
	ks.Crypto.MAC = macOf(key[16:32], cipherText)
	ks.Version = keyStoreVersion
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	ks.ID = id.String()
	ks.Address = common.NewAddressFromPublicKey(s.PublicKey())
	return json.MarshalIndent(&ks, "", "  ")
}

func DecryptKeyStore(data, pw []byte) (*crypto.PrivateKey, error) {
	var ksData KeyStoreData
	if err := json.Unmarshal(data, &ksData); err != nil {
		return nil, err
	}
	if ksData.Version != keyStoreVersion {
		return nil, errors.IllegalArgumentError.Errorf("UnsupportedVersion(version=%d)", ksData.Version)
	}
	if ksData.Crypto.Cipher != cipherAES128CTR {
		return nil, errors.UnsupportedError.Errorf("UnsupportedCipher(cipher=%s)",
			ksData.Crypto.Cipher)
	}
	var cipherParams AES128CTRParams
	if err := json.Unmarshal(ksData.Crypto.CipherParams, &cipherParams); err != nil {
		return nil, err
	}

	if ksData.Crypto.KDF != kdfScrypt {
		return nil, errors.UnsupportedError.Errorf("UnsupportedKDF(kdf=%s)", ksData.Crypto.KDF)
	}
	var kdfParams ScryptParams
	if err := json.Unmarshal(ksData.Crypto.KDFParams, &kdfParams); err != nil {
		return nil, err
	}

	key, err := kdfParams.Key(pw)
	if err != nil {
		return nil, err
	}

	cipheredBytes := ksData.Crypto.CipherText.Bytes()

	if !bytes.Equal(macOf(key[16:32], cipheredBytes), ksData.Crypto.MAC.Bytes()) {
		return nil, errors.WithStack(ErrInvalidPassword)
	}

	block, err := aes.NewCipher(key[0:16])
	if err != nil {
		return nil, err
	}

	secretBytes := make([]byte, len(cipheredBytes))

	stream := cipher.NewCTR(block, cipherParams.IV.Bytes())
	stream.XORKeyStream(secretBytes, cipheredBytes)

	secret, err := crypto.ParsePrivateKey(secretBytes)
	if err != nil {
		return nil, err
	}
	if address := common.NewAddressFromPublicKey(secret.PublicKey()); address != ksData.Address {
		return nil, errors.IllegalArgumentError.Errorf(
			"AddressMismatch(recovered=%s,stored=%s)", address, ksData.Address)
	}
	return secret, nil
}

func ReadAddressFromKeyStore(data []byte) (common.Address, error) {
	var ksData KeyStoreData
	if err := json.Unmarshal(data, &ksData); err != nil {
		return common.Address{}, err
	}
	return ksData.Address, nil
}

func NewFromKeyStore(data, pw []byte) (module.Wallet, error) {
	secret, err := DecryptKeyStore(data, pw)
	if err != nil {
		return nil, err
	}
	return NewFromPrivateKey(secret), nil
}

func KeyStoreFromWallet(w module.Wallet, pw []byte, n int) ([]byte, error) {
	s, ok := w.(*softwareWallet)
	if !ok {
		return nil, errors.UnsupportedError.Errorf("wallet %T has no exportable key", w)
	}
	return EncryptKeyAsKeyStore(s.skey, pw, n)
}
