package crypto

import "golang.org/x/crypto/sha3"

func SHA3Sum256(data []byte) []byte {
	digest := sha3.Sum256(data)
	return digest[:]
}
