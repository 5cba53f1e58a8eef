// Package crypto derives the shared secrets, nonces and IKE keying
// material used by the IKE_INIT task: key exchange providers for the
// classical DH groups and the RFC 9370 additional key exchanges, a
// nonce source sized to the negotiated PRF, and the PRF+ keymat chain.
package crypto

import (
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// KeyExchange drives one side's share of a single key-exchange method.
// Classical DH groups use it symmetrically on both sides. KEM-based
// methods (ML-KEM) only have the initiator call GenerateKeyPair and
// ComputeSecret; the responder instead uses the Encapsulator interface.
type KeyExchange interface {
	Method() protocol.KeMethod
	// GenerateKeyPair produces this side's local key share as bytes
	// suitable for a KE payload's KeyData.
	GenerateKeyPair() (publicValue []byte, err error)
	// ComputeSecret derives the shared secret from the peer's public
	// value. Only meaningful after GenerateKeyPair.
	ComputeSecret(peerPublic []byte) (secret []byte, err error)
}

// Encapsulator is implemented by KEM-based key-exchange methods. The
// responder calls Encapsulate against the initiator's public value
// instead of GenerateKeyPair+ComputeSecret.
type Encapsulator interface {
	Encapsulate(peerPublic []byte) (ciphertext, secret []byte, err error)
}

// ErrUnsupportedKeMethod is returned by NewKeyExchange for any method
// this task does not implement.
var ErrUnsupportedKeMethod = errors.New("unsupported key exchange method")

// NewKeyExchange builds the KeyExchange implementation for a negotiated
// method: math/big-backed MODP groups, stdlib crypto/ecdh-backed ECP
// groups, or the ML-KEM-768 KEM used for post-quantum hybridisation.
func NewKeyExchange(method protocol.KeMethod) (KeyExchange, error) {
	switch method {
	case protocol.MODP_1024, protocol.MODP_2048, protocol.MODP_3072, protocol.MODP_4096:
		return newModpGroup(method)
	case protocol.ECP_256, protocol.ECP_384, protocol.ECP_521:
		return newEcpGroup(method)
	case protocol.ML_KEM_768:
		return newMlkem768()
	default:
		return nil, errors.Wrapf(ErrUnsupportedKeMethod, "method %s", method)
	}
}

// IsKem reports whether method uses KEM (encapsulate/decapsulate)
// semantics rather than symmetric Diffie-Hellman semantics.
func IsKem(method protocol.KeMethod) bool {
	return method == protocol.ML_KEM_768
}
