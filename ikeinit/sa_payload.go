package ikeinit

import "github.com/nullcipher/ikeinit/protocol"

// buildOutboundSa builds the SA payload an initiator sends: every
// configured proposal, with the chosen key-exchange method promoted to
// the first transform of its type within any proposal that offers it,
// and proposals that do not offer it moved to the end of the list
// (still offered, but last), per §4.2.
func buildOutboundSa(configured []*protocol.SaProposal, chosen protocol.KeMethod, spiI protocol.Spi, rekey bool) *protocol.SaPayload {
	var withMethod, without []*protocol.SaProposal
	for _, p := range configured {
		cp := cloneProposal(p)
		if rekey {
			cp.Spi = append([]byte{}, spiI[:]...)
		}
		if promoteKeMethod(cp, chosen) {
			withMethod = append(withMethod, cp)
		} else {
			without = append(without, cp)
		}
	}
	all := append(withMethod, without...)
	for i, p := range all {
		p.Number = uint8(i + 1)
	}
	return &protocol.SaPayload{PayloadHeader: &protocol.PayloadHeader{}, Proposals: all}
}

// buildResponderSa wraps the single proposal the selector chose, with
// the SPI set to the responder SPI on rekey.
func buildResponderSa(selected *protocol.SaProposal, spiR protocol.Spi, rekey bool) *protocol.SaPayload {
	cp := cloneProposal(selected)
	cp.Number = 1
	if rekey {
		cp.Spi = append([]byte{}, spiR[:]...)
	}
	return &protocol.SaPayload{PayloadHeader: &protocol.PayloadHeader{}, Proposals: []*protocol.SaProposal{cp}}
}

func cloneProposal(p *protocol.SaProposal) *protocol.SaProposal {
	cp := &protocol.SaProposal{Number: p.Number, ProtocolId: p.ProtocolId, Spi: append([]byte{}, p.Spi...)}
	for _, tr := range p.Transforms {
		trCopy := *tr
		cp.Transforms = append(cp.Transforms, &trCopy)
	}
	return cp
}

// promoteKeMethod reports whether prop offers method among its
// TRANSFORM_TYPE_DH (or TRANSFORM_TYPE_ADDITIONAL_KE*) transforms, and
// if so reorders that type's transforms so method comes first.
func promoteKeMethod(prop *protocol.SaProposal, method protocol.KeMethod) bool {
	found := false
	for _, t := range protocol.AdditionalKeyExchangeTypes {
		if reorderTransformType(prop, t, method) {
			found = true
		}
	}
	if reorderTransformType(prop, protocol.TRANSFORM_TYPE_DH, method) {
		found = true
	}
	return found
}

func reorderTransformType(prop *protocol.SaProposal, tt protocol.TransformType, method protocol.KeMethod) bool {
	idx := -1
	for i, tr := range prop.Transforms {
		if tr.Type == tt && protocol.KeMethod(tr.TransformId) == method {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return idx == 0
	}
	chosen := prop.Transforms[idx]
	rest := append(append([]*protocol.Transform{}, prop.Transforms[:idx]...), prop.Transforms[idx+1:]...)
	reordered := append([]*protocol.Transform{chosen}, rest...)
	prop.Transforms = reordered
	return true
}
