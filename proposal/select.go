// Package proposal selects a single acceptable SA proposal from a
// remote offer and a local configuration, the way Config.CheckProposals
// does in the teacher but generalised from "is any proposal acceptable"
// to "build and return the one chosen", since the IKE_INIT task needs
// the selected proposal itself, not just a yes/no answer.
package proposal

import (
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/protocol"
)

// SelectFlags tune how the intersection is performed.
type SelectFlags struct {
	// SkipPrivate rejects transform IDs in the IANA private-use range
	// unless both sides are known to use them out of band.
	SkipPrivate bool
	// PreferSupplied tries the remote's proposal order before the
	// local configuration's; otherwise local order wins.
	PreferSupplied bool
}

// privateUseThreshold is where the IKEv2 transform ID private-use
// range begins for the ID spaces this task cares about.
const privateUseThreshold = 1024

var ErrNoProposalChosen = errors.New("no acceptable proposal")

// Select intersects remote against local under flags and returns the
// first compatible result, trying proposals in the order flags
// prefers. The returned proposal's transforms are drawn from local
// (our own configured transform IDs), its Number and Spi echo the
// matched remote proposal.
func Select(remote, local []*protocol.SaProposal, flags SelectFlags) (*protocol.SaProposal, error) {
	var outerFirst, outerSecond []*protocol.SaProposal
	if flags.PreferSupplied {
		outerFirst, outerSecond = remote, local
	} else {
		outerFirst, outerSecond = local, remote
	}
	for _, a := range outerFirst {
		for _, b := range outerSecond {
			var sel *protocol.SaProposal
			if flags.PreferSupplied {
				sel = intersect(b, a, flags) // (local, remote)
			} else {
				sel = intersect(a, b, flags)
			}
			if sel != nil {
				return sel, nil
			}
		}
	}
	return nil, ErrNoProposalChosen
}

// intersect matches local against remote: every transform type present
// in local must have a same-ID counterpart in remote (the local
// configuration defines what is required; the remote proposal defines
// what is on offer). The returned proposal carries local's transform
// choices with remote's proposal Number and Spi.
func intersect(local, remote *protocol.SaProposal, flags SelectFlags) *protocol.SaProposal {
	if local.ProtocolId != remote.ProtocolId {
		return nil
	}
	sel := &protocol.SaProposal{
		Number:     remote.Number,
		ProtocolId: local.ProtocolId,
		Spi:        append([]byte{}, remote.Spi...),
	}
	seen := map[protocol.TransformType]bool{}
	for _, want := range local.Transforms {
		if seen[want.Type] {
			continue
		}
		seen[want.Type] = true
		match := matchTransform(want.Type, local, remote, flags)
		if match == nil {
			return nil
		}
		sel.Transforms = append(sel.Transforms, match)
	}
	return sel
}

func matchTransform(t protocol.TransformType, local, remote *protocol.SaProposal, flags SelectFlags) *protocol.Transform {
	for _, lt := range local.Transforms {
		if lt.Type != t {
			continue
		}
		for _, rt := range remote.Transforms {
			if rt.Type != t || rt.TransformId != lt.TransformId {
				continue
			}
			if flags.SkipPrivate && (lt.TransformId >= privateUseThreshold || rt.TransformId >= privateUseThreshold) {
				continue
			}
			if lt.KeyLength != 0 && rt.KeyLength != 0 && lt.KeyLength != rt.KeyLength {
				continue
			}
			out := *lt
			return &out
		}
	}
	return nil
}
