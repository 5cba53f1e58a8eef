package proposal

import "testing"

import "github.com/nullcipher/ikeinit/protocol"

func ikeProposal(dh uint16, extra ...*protocol.Transform) *protocol.SaProposal {
	trs := []*protocol.Transform{
		{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC), KeyLength: 256},
		{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)},
		{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)},
		{Type: protocol.TRANSFORM_TYPE_DH, TransformId: dh},
	}
	trs = append(trs, extra...)
	return &protocol.SaProposal{Number: 1, ProtocolId: protocol.IKE, Transforms: trs}
}

func TestSelectFindsCommonProposal(t *testing.T) {
	local := []*protocol.SaProposal{ikeProposal(uint16(protocol.ECP_256))}
	remote := []*protocol.SaProposal{ikeProposal(uint16(protocol.MODP_2048)), ikeProposal(uint16(protocol.ECP_256))}

	sel, err := Select(remote, local, SelectFlags{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.TransformOfType(protocol.TRANSFORM_TYPE_DH).TransformId != uint16(protocol.ECP_256) {
		t.Fatalf("selected wrong DH group: %+v", sel)
	}
}

func TestSelectReturnsErrorWhenNoMatch(t *testing.T) {
	local := []*protocol.SaProposal{ikeProposal(uint16(protocol.ECP_256))}
	remote := []*protocol.SaProposal{ikeProposal(uint16(protocol.MODP_2048))}

	if _, err := Select(remote, local, SelectFlags{}); err != ErrNoProposalChosen {
		t.Fatalf("Select error = %v, want ErrNoProposalChosen", err)
	}
}

func TestSelectSkipsPrivateTransformIds(t *testing.T) {
	local := []*protocol.SaProposal{ikeProposal(uint16(protocol.ECP_256),
		&protocol.Transform{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE1, TransformId: 2000})}
	remote := []*protocol.SaProposal{ikeProposal(uint16(protocol.ECP_256),
		&protocol.Transform{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE1, TransformId: 2000})}

	if _, err := Select(remote, local, SelectFlags{SkipPrivate: true}); err != ErrNoProposalChosen {
		t.Fatalf("expected private transform to be rejected, got err=%v", err)
	}
	sel, err := Select(remote, local, SelectFlags{SkipPrivate: false})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.TransformOfType(protocol.TRANSFORM_TYPE_ADDITIONAL_KE1) == nil {
		t.Fatalf("expected additional KE transform to survive selection")
	}
}

func TestSelectPreferSuppliedOrder(t *testing.T) {
	local := []*protocol.SaProposal{ikeProposal(uint16(protocol.ECP_256)), ikeProposal(uint16(protocol.MODP_2048))}
	remote := []*protocol.SaProposal{ikeProposal(uint16(protocol.MODP_2048))}

	sel, err := Select(remote, local, SelectFlags{PreferSupplied: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.TransformOfType(protocol.TRANSFORM_TYPE_DH).TransformId != uint16(protocol.MODP_2048) {
		t.Fatalf("expected remote-preferred group, got %+v", sel)
	}
}
