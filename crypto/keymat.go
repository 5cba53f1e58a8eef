package crypto

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// Keymat owns the negotiated CipherSuite and the derived IKE SA keys.
// It is the external interface the IKE_INIT task drives: it never
// touches the wire itself, only sizes and derives keying material, the
// same split of responsibility the teacher's Tkm keeps between dh/prf
// plumbing and the message codec.
type Keymat struct {
	suite *CipherSuite
	log   log.Logger

	skD, skAi, skAr, skEi, skEr, skPi, skPr []byte

	hashAlgos []uint16
}

func NewKeymat(suite *CipherSuite, logger log.Logger) *Keymat {
	return &Keymat{suite: suite, log: logger}
}

// CreateNonceGen returns a nonce generator sized to this suite's PRF,
// per RFC 7296 2.10.
func (k *Keymat) CreateNonceGen() *NonceGen {
	return NewNonceGen(k.suite.Prf.KeyLen)
}

// CreateKe builds the KeyExchange provider for one key-exchange method,
// used for both the primary exchange and each RFC 9370 additional one.
func (k *Keymat) CreateKe(method protocol.KeMethod) (KeyExchange, error) {
	return NewKeyExchange(method)
}

// AddHashAlgorithm records a signature hash algorithm ID the peer
// advertised (or that this side will advertise) via
// SIGNATURE_HASH_ALGORITHMS, for RFC 7427 EXT_SIGNATURE_AUTH. The
// IKE_INIT task tracks these but never itself builds a signature.
func (k *Keymat) AddHashAlgorithm(id uint16) {
	for _, existing := range k.hashAlgos {
		if existing == id {
			return
		}
	}
	k.hashAlgos = append(k.hashAlgos, id)
}

func (k *Keymat) HashAlgorithms() []uint16 { return k.hashAlgos }

// GetSkD returns the SK_d key material used to seed later Child SA and
// rekey derivations and, per RFC 9370, inherited into a chained
// IKE_FOLLOWUP_KE derivation.
func (k *Keymat) GetSkD() []byte { return k.skD }

func (k *Keymat) SkAi() []byte { return k.skAi }
func (k *Keymat) SkAr() []byte { return k.skAr }
func (k *Keymat) SkEi() []byte { return k.skEi }
func (k *Keymat) SkEr() []byte { return k.skEr }

// DeriveIkeKeys computes SKEYSEED and the full IKE keymat chain.
//
// sharedSecrets holds, in order, the shared secret from the primary key
// exchange followed by the shared secret from each RFC 9370 additional
// key exchange negotiated; for a classical single-exchange IKE_SA_INIT
// it has exactly one element. skDPrev is nil for the first derivation
// in an exchange chain, and the previous SK_d for a chained
// IKE_FOLLOWUP_KE derivation (RFC 9370 5.1 inherits SK_d as the PRF key
// instead of re-deriving SKEYSEED from the nonces).
func (k *Keymat) DeriveIkeKeys(ni, nr []byte, sharedSecrets [][]byte, spiI, spiR protocol.Spi, skDPrev []byte) error {
	if k.suite == nil || k.suite.Prf == nil {
		return errors.New("keymat: cipher suite not set")
	}
	prf := k.suite.Prf
	secret := concatSecrets(sharedSecrets)

	var skeyseed []byte
	if skDPrev != nil {
		skeyseed = prf.Func(skDPrev, concatSecrets([][]byte{ni, nr, secret}))
	} else {
		skeyseed = prf.Func(concatSecrets([][]byte{ni, nr}), secret)
	}

	kmLen := 3*prf.KeyLen + 2*k.suite.KeyLen + 2*k.suite.MacKeyLen
	seed := concatSecrets([][]byte{ni, nr, spiI[:], spiR[:]})
	keymat := prfPlus(prf.Func, skeyseed, seed, kmLen)

	offset := 0
	k.skD = keymat[offset : offset+prf.KeyLen]
	offset += prf.KeyLen
	k.skAi = keymat[offset : offset+k.suite.MacKeyLen]
	offset += k.suite.MacKeyLen
	k.skAr = keymat[offset : offset+k.suite.MacKeyLen]
	offset += k.suite.MacKeyLen
	k.skEi = keymat[offset : offset+k.suite.KeyLen]
	offset += k.suite.KeyLen
	k.skEr = keymat[offset : offset+k.suite.KeyLen]
	offset += k.suite.KeyLen
	k.skPi = keymat[offset : offset+prf.KeyLen]
	offset += prf.KeyLen
	k.skPr = keymat[offset : offset+prf.KeyLen]

	level.Debug(k.log).Log("msg", "derived ike keymat", "keys_count", len(sharedSecrets), "chained", skDPrev != nil)
	return nil
}

func concatSecrets(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// prfPlus implements the IKEv2 PRF+ construction from RFC 7296 2.13:
// T1 = prf(key, data | 0x01); Tn = prf(key, T(n-1) | data | n)
func prfPlus(prf prfFunc, key, data []byte, bits int) []byte {
	var ret, prev []byte
	for round := byte(1); len(ret) < bits; round++ {
		prev = prf(key, append(append(append([]byte{}, prev...), data...), round))
		ret = append(ret, prev...)
	}
	return ret[:bits]
}
