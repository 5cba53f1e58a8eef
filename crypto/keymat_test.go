package crypto

import (
	"bytes"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/nullcipher/ikeinit/protocol"
)

func testSuite(t *testing.T) *CipherSuite {
	t.Helper()
	prop := &protocol.SaProposal{
		Transforms: []*protocol.Transform{
			{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC), KeyLength: 256},
			{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)},
			{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)},
			{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)},
		},
	}
	suite, err := NewCipherSuite(prop)
	if err != nil {
		t.Fatalf("NewCipherSuite: %v", err)
	}
	return suite
}

func TestDeriveIkeKeysSymmetric(t *testing.T) {
	suite := testSuite(t)
	ni := bytes.Repeat([]byte{0x11}, 32)
	nr := bytes.Repeat([]byte{0x22}, 32)
	secret := bytes.Repeat([]byte{0x33}, 256)
	spiI := protocol.Spi{1, 2, 3, 4, 5, 6, 7, 8}
	spiR := protocol.Spi{8, 7, 6, 5, 4, 3, 2, 1}

	initiatorKeymat := NewKeymat(suite, log.NewNopLogger())
	if err := initiatorKeymat.DeriveIkeKeys(ni, nr, [][]byte{secret}, spiI, spiR, nil); err != nil {
		t.Fatalf("initiator DeriveIkeKeys: %v", err)
	}
	responderKeymat := NewKeymat(suite, log.NewNopLogger())
	if err := responderKeymat.DeriveIkeKeys(ni, nr, [][]byte{secret}, spiI, spiR, nil); err != nil {
		t.Fatalf("responder DeriveIkeKeys: %v", err)
	}

	if !bytes.Equal(initiatorKeymat.GetSkD(), responderKeymat.GetSkD()) {
		t.Fatalf("SK_d mismatch")
	}
	if !bytes.Equal(initiatorKeymat.SkEi(), responderKeymat.SkEi()) {
		t.Fatalf("SK_ei mismatch")
	}
	if len(initiatorKeymat.SkEi()) != suite.KeyLen {
		t.Fatalf("SK_ei length = %d, want %d", len(initiatorKeymat.SkEi()), suite.KeyLen)
	}
}

func TestDeriveIkeKeysChainedChangesOutput(t *testing.T) {
	suite := testSuite(t)
	ni := bytes.Repeat([]byte{0x11}, 32)
	nr := bytes.Repeat([]byte{0x22}, 32)
	secret := bytes.Repeat([]byte{0x33}, 256)
	spiI := protocol.Spi{1}
	spiR := protocol.Spi{2}

	fresh := NewKeymat(suite, log.NewNopLogger())
	fresh.DeriveIkeKeys(ni, nr, [][]byte{secret}, spiI, spiR, nil)

	chained := NewKeymat(suite, log.NewNopLogger())
	chained.DeriveIkeKeys(ni, nr, [][]byte{secret}, spiI, spiR, fresh.GetSkD())

	if bytes.Equal(fresh.GetSkD(), chained.GetSkD()) {
		t.Fatalf("chained derivation should differ from fresh derivation")
	}
}

func TestAddHashAlgorithmDeduplicates(t *testing.T) {
	k := NewKeymat(testSuite(t), log.NewNopLogger())
	k.AddHashAlgorithm(2)
	k.AddHashAlgorithm(4)
	k.AddHashAlgorithm(2)
	if len(k.HashAlgorithms()) != 2 {
		t.Fatalf("HashAlgorithms = %v, want 2 unique entries", k.HashAlgorithms())
	}
}
