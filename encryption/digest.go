package encryption

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Supported digest algorithms for ledger entries
const (
	SHA256    = "sha256"
	SHA3_256  = "sha3-256"
	Keccak256 = "keccak256"
)

var ErrUnknownHash = errors.New("encryption: unknown hash algorithm")

// HashFunc maps the canonical encoding of an entry to its raw digest.
// All supported algorithms produce 32 bytes.
type HashFunc func(data []byte) []byte

// DigestSize is the raw size of every supported digest
const DigestSize = 32

var hashFuncs = map[string]HashFunc{
	SHA256: func(data []byte) []byte {
		sum := sha256.Sum256(data)
		return sum[:]
	},
	SHA3_256: func(data []byte) []byte {
		sum := sha3.Sum256(data)
		return sum[:]
	},
	Keccak256: func(data []byte) []byte {
		return crypto.Keccak256(data)
	},
}

// LookupHash returns the HashFunc registered under name. The empty name
// selects SHA-256.
func LookupHash(name string) (HashFunc, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = SHA256
	}
	h, ok := hashFuncs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHash, name)
	}
	return h, nil
}

// DefaultHash returns the SHA-256 HashFunc
func DefaultHash() HashFunc {
	return hashFuncs[SHA256]
}
