package crypto

import (
	"bytes"
	"testing"

	"github.com/nullcipher/ikeinit/protocol"
)

func TestModpGroupSharedSecretMatches(t *testing.T) {
	initiator, err := NewKeyExchange(protocol.MODP_2048)
	if err != nil {
		t.Fatalf("NewKeyExchange: %v", err)
	}
	responder, err := NewKeyExchange(protocol.MODP_2048)
	if err != nil {
		t.Fatalf("NewKeyExchange: %v", err)
	}
	iPub, err := initiator.GenerateKeyPair()
	if err != nil {
		t.Fatalf("initiator GenerateKeyPair: %v", err)
	}
	rPub, err := responder.GenerateKeyPair()
	if err != nil {
		t.Fatalf("responder GenerateKeyPair: %v", err)
	}
	iSecret, err := initiator.ComputeSecret(rPub)
	if err != nil {
		t.Fatalf("initiator ComputeSecret: %v", err)
	}
	rSecret, err := responder.ComputeSecret(iPub)
	if err != nil {
		t.Fatalf("responder ComputeSecret: %v", err)
	}
	if !bytes.Equal(iSecret, rSecret) {
		t.Fatalf("shared secrets differ")
	}
}

func TestEcpGroupSharedSecretMatches(t *testing.T) {
	for _, method := range []protocol.KeMethod{protocol.ECP_256, protocol.ECP_384, protocol.ECP_521} {
		initiator, err := NewKeyExchange(method)
		if err != nil {
			t.Fatalf("NewKeyExchange(%s): %v", method, err)
		}
		responder, err := NewKeyExchange(method)
		if err != nil {
			t.Fatalf("NewKeyExchange(%s): %v", method, err)
		}
		iPub, _ := initiator.GenerateKeyPair()
		rPub, _ := responder.GenerateKeyPair()
		iSecret, err := initiator.ComputeSecret(rPub)
		if err != nil {
			t.Fatalf("%s initiator ComputeSecret: %v", method, err)
		}
		rSecret, err := responder.ComputeSecret(iPub)
		if err != nil {
			t.Fatalf("%s responder ComputeSecret: %v", method, err)
		}
		if !bytes.Equal(iSecret, rSecret) {
			t.Fatalf("%s shared secrets differ", method)
		}
	}
}

func TestMlkem768EncapsulateDecapsulate(t *testing.T) {
	initiator, err := NewKeyExchange(protocol.ML_KEM_768)
	if err != nil {
		t.Fatalf("NewKeyExchange: %v", err)
	}
	pub, err := initiator.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	responder, err := NewKeyExchange(protocol.ML_KEM_768)
	if err != nil {
		t.Fatalf("NewKeyExchange: %v", err)
	}
	encap, ok := responder.(Encapsulator)
	if !ok {
		t.Fatalf("ML_KEM_768 provider does not implement Encapsulator")
	}
	ct, rSecret, err := encap.Encapsulate(pub)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}
	iSecret, err := initiator.ComputeSecret(ct)
	if err != nil {
		t.Fatalf("ComputeSecret: %v", err)
	}
	if !bytes.Equal(iSecret, rSecret) {
		t.Fatalf("shared secrets differ")
	}
}

func TestNewKeyExchangeRejectsUnsupported(t *testing.T) {
	if _, err := NewKeyExchange(protocol.KE_NONE); err == nil {
		t.Fatalf("expected error for unsupported method")
	}
}
