package crypto

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	camellia "github.com/dgryski/go-camellia"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

type prfFunc func(key, data []byte) []byte

// Prf is the negotiated pseudo-random function: its output length in
// bytes and the HMAC construction it drives. The keymat deriver treats
// the PRF as the anchor that every other key's length is measured
// against, same as the teacher's cipherSuite.prfLen/prf pair.
type Prf struct {
	Id     protocol.PrfTransformId
	KeyLen int // bytes
	Func   prfFunc
}

func newPrf(id protocol.PrfTransformId) (*Prf, error) {
	switch id {
	case protocol.PRF_HMAC_SHA1:
		return &Prf{Id: id, KeyLen: sha1.Size, Func: hmacPrf(sha1.New)}, nil
	case protocol.PRF_HMAC_SHA2_256:
		return &Prf{Id: id, KeyLen: sha256.Size, Func: hmacPrf(sha256.New)}, nil
	case protocol.PRF_HMAC_SHA2_384:
		return &Prf{Id: id, KeyLen: sha512.Size384, Func: hmacPrf(sha512.New384)}, nil
	default:
		return nil, errors.Errorf("unsupported prf transform %d", id)
	}
}

func hmacPrf(h func() hash.Hash) prfFunc {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)
	}
}

// integrityKeyLen returns the key-material length, in bytes, of the
// negotiated integrity transform. The task itself never runs the MAC,
// only sizes SK_a for it, same division of labour as cipher_suites.go.
func integrityKeyLen(id protocol.AuthTransformId) (int, error) {
	switch id {
	case protocol.AUTH_HMAC_SHA1_96:
		return sha1.Size, nil
	case protocol.AUTH_HMAC_SHA2_256_128:
		return sha256.Size, nil
	case protocol.AUTH_HMAC_SHA2_384_192:
		return sha512.Size384, nil
	default:
		return 0, errors.Errorf("unsupported integrity transform %d", id)
	}
}

// encrKeyLen returns the cipher key length, in bytes, for a transform
// carrying an explicit key-length attribute (AES, Camellia), falling
// back to the cipher's own default otherwise.
func encrKeyLen(id protocol.EncrTransformId, attrKeyLenBits uint16) (int, error) {
	if attrKeyLenBits != 0 {
		return int(attrKeyLenBits) / 8, nil
	}
	switch id {
	case protocol.ENCR_AES_CBC:
		return 16, nil
	case protocol.ENCR_CAMELLIA_CBC:
		return camellia.BlockSize, nil
	default:
		return 0, errors.Errorf("unsupported encryption transform %d", id)
	}
}

// blockSize returns the cipher's block size, used to size the IV
// carried in SK_e derivation and, later, in actual encryption (out of
// this task's scope, but the size still belongs with the transform).
func blockSize(id protocol.EncrTransformId) (int, error) {
	switch id {
	case protocol.ENCR_AES_CBC:
		return aes.BlockSize, nil
	case protocol.ENCR_CAMELLIA_CBC:
		return camellia.BlockSize, nil
	default:
		return 0, errors.Errorf("unsupported encryption transform %d", id)
	}
}

// CipherSuite is the set of transforms selected for the IKE SA, reduced
// to the key-material lengths the keymat deriver needs. It does not
// perform encryption itself; that is Non-goal per the task's scope, the
// same boundary the teacher draws between CipherSuite and Tkm.
type CipherSuite struct {
	Prf       *Prf
	KeyLen    int // SK_e length, bytes
	MacKeyLen int // SK_a length, bytes
	IvLen     int
}

// NewCipherSuite builds a CipherSuite from the proposal selected during
// SA negotiation.
func NewCipherSuite(prop *protocol.SaProposal) (*CipherSuite, error) {
	cs := &CipherSuite{}
	prfTr := prop.TransformOfType(protocol.TRANSFORM_TYPE_PRF)
	if prfTr == nil {
		return nil, errors.New("proposal missing PRF transform")
	}
	prf, err := newPrf(protocol.PrfTransformId(prfTr.TransformId))
	if err != nil {
		return nil, err
	}
	cs.Prf = prf

	if encrTr := prop.TransformOfType(protocol.TRANSFORM_TYPE_ENCR); encrTr != nil {
		keyLen, err := encrKeyLen(protocol.EncrTransformId(encrTr.TransformId), encrTr.KeyLength)
		if err != nil {
			return nil, err
		}
		ivLen, err := blockSize(protocol.EncrTransformId(encrTr.TransformId))
		if err != nil {
			return nil, err
		}
		cs.KeyLen = keyLen
		cs.IvLen = ivLen
	}
	if authTr := prop.TransformOfType(protocol.TRANSFORM_TYPE_INTEG); authTr != nil {
		macKeyLen, err := integrityKeyLen(protocol.AuthTransformId(authTr.TransformId))
		if err != nil {
			return nil, err
		}
		cs.MacKeyLen = macKeyLen
	}
	return cs, nil
}
