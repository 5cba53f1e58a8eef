package crypto

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

const (
	minNonceBytes = 16  // RFC 7296 2.10: at least 128 bits
	maxNonceBytes = 256 // RFC 7296 2.10: no more than 256 bytes
)

// NonceGen produces the Ni/Nr nonce for one side of an exchange, sized
// to at least half the key size of the negotiated PRF, per RFC 7296
// 2.10, and never smaller than minNonceBytes.
type NonceGen struct {
	size int
}

// NewNonceGen sizes the generator from the negotiated PRF's key length,
// in bytes.
func NewNonceGen(prfKeyLen int) *NonceGen {
	size := prfKeyLen / 2
	if size < minNonceBytes {
		size = minNonceBytes
	}
	if size > maxNonceBytes {
		size = maxNonceBytes
	}
	return &NonceGen{size: size}
}

// Generate returns a fresh, crypto/rand-backed nonce.
func (g *NonceGen) Generate() ([]byte, error) {
	b := make([]byte, g.size)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "nonce generation")
	}
	return b, nil
}
