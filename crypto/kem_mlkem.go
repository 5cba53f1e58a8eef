package crypto

import (
	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// mlkem768Method implements KeyExchange and Encapsulator for ML-KEM-768,
// the post-quantum KEM used by the RFC 9370 ADDITIONAL_KEY_EXCHANGE
// hybridisation path. The initiator's role is GenerateKeyPair then
// ComputeSecret (decapsulate); the responder's role is Encapsulate.
// cloudflare/circl is the pack's own source for this primitive family,
// exercised the same way the agent-stack example uses it.
type mlkem768Method struct {
	scheme circlkem.Scheme
	priv   circlkem.PrivateKey
}

func newMlkem768() (*mlkem768Method, error) {
	return &mlkem768Method{scheme: mlkem768.Scheme()}, nil
}

func (m *mlkem768Method) Method() protocol.KeMethod { return protocol.ML_KEM_768 }

// GenerateKeyPair produces the initiator's encapsulation key, sent as
// this side's KE payload KeyData.
func (m *mlkem768Method) GenerateKeyPair() ([]byte, error) {
	pub, priv, err := m.scheme.GenerateKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "mlkem768 key generation")
	}
	m.priv = priv
	return pub.MarshalBinary()
}

// ComputeSecret decapsulates the responder's ciphertext using the
// private key generated by GenerateKeyPair. Only valid for the
// initiator.
func (m *mlkem768Method) ComputeSecret(peerPublic []byte) ([]byte, error) {
	if m.priv == nil {
		return nil, errors.New("mlkem768: GenerateKeyPair not called")
	}
	ct := peerPublic
	if len(ct) != m.scheme.CiphertextSize() {
		return nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "bad mlkem768 ciphertext size")
	}
	return m.scheme.Decapsulate(m.priv, ct)
}

// Encapsulate is the responder's half: given the initiator's
// encapsulation key, it returns the ciphertext (this side's KE payload
// KeyData) and the shared secret.
func (m *mlkem768Method) Encapsulate(peerPublic []byte) (ciphertext, secret []byte, err error) {
	if len(peerPublic) != m.scheme.PublicKeySize() {
		return nil, nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "bad mlkem768 public key size")
	}
	pub, err := m.scheme.UnmarshalBinaryPublicKey(peerPublic)
	if err != nil {
		return nil, nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "malformed mlkem768 public key")
	}
	ct, ss, err := m.scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mlkem768 encapsulation")
	}
	return ct, ss, nil
}
