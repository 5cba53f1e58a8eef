package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// modpGroup implements KeyExchange for the RFC 3526 / RFC 2409 MODP
// groups, the same prime-field Diffie-Hellman the teacher's dhGroup
// abstraction wraps, done here directly with math/big since the
// standard library has no better-fitting finite-field DH primitive.
type modpGroup struct {
	method    protocol.KeMethod
	prime     *big.Int
	generator *big.Int
	private   *big.Int
}

var modpPrimeHex = map[protocol.KeMethod]string{
	// RFC 2409, group 2 (1024-bit MODP).
	protocol.MODP_1024: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381" +
		"FFFFFFFFFFFFFFFF",
	// RFC 3526, group 14 (2048-bit MODP).
	protocol.MODP_2048: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
		"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
		"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
		"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
		"15728E5A8AACAA68FFFFFFFFFFFFFFFF",
	// RFC 3526, group 15 (3072-bit MODP).
	protocol.MODP_3072: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
		"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
		"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
		"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
		"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
		"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
		"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
		"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
		"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
		"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF",
	// RFC 3526, group 16 (4096-bit MODP).
	protocol.MODP_4096: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
		"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
		"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
		"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
		"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
		"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
		"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
		"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
		"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
		"43DB5BFCE0FD108E4B82D120A92108011A723C12A787E6D7" +
		"88719A10BDBA5B2699C327186AF4E23C1A946834B6150BDA" +
		"2583E9CA2AD44CE8DBBBC2DB04DE8EF92E8EFC141FBECAA6" +
		"287C59474E6BC05D99B2964FA090C3A2233BA186515BE7ED" +
		"1F612970CEE2D7AFB81BDD762170481CD0069127D5B05AA9" +
		"93B4EA988D8FDDC186FFB7DC90A6C08F4DF435C934063199" +
		"FFFFFFFFFFFFFFFF",
}

func newModpGroup(method protocol.KeMethod) (*modpGroup, error) {
	hexStr, ok := modpPrimeHex[method]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedKeMethod, "modp method %s", method)
	}
	p, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, errors.Errorf("invalid modp prime for %s", method)
	}
	return &modpGroup{method: method, prime: p, generator: big.NewInt(2)}, nil
}

func (g *modpGroup) Method() protocol.KeMethod { return g.method }

func (g *modpGroup) GenerateKeyPair() ([]byte, error) {
	priv, err := rand.Int(rand.Reader, g.prime)
	if err != nil {
		return nil, errors.Wrap(err, "modp private value")
	}
	g.private = priv
	pub := new(big.Int).Exp(g.generator, priv, g.prime)
	return leftPad(pub.Bytes(), (g.prime.BitLen()+7)/8), nil
}

func (g *modpGroup) ComputeSecret(peerPublic []byte) ([]byte, error) {
	if g.private == nil {
		return nil, errors.New("modp: GenerateKeyPair not called")
	}
	theirPublic := new(big.Int).SetBytes(peerPublic)
	if theirPublic.Cmp(big.NewInt(1)) <= 0 || theirPublic.Cmp(g.prime) >= 0 {
		return nil, errors.Wrap(protocol.ERR_INVALID_KE_PAYLOAD, "modp public value out of range")
	}
	shared := new(big.Int).Exp(theirPublic, g.private, g.prime)
	return leftPad(shared.Bytes(), (g.prime.BitLen()+7)/8), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
