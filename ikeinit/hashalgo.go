package ikeinit

import (
	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

// ikev2ValidHashAlgorithms lists the RFC 7427 hash algorithm
// identifiers this task considers valid to negotiate for
// EXT_SIGNATURE_AUTH. The credential layer that actually builds
// signatures is out of scope; this task only plumbs the negotiated set
// through to the keymat.
var ikev2ValidHashAlgorithms = []uint16{
	1, // SHA1
	2, // SHA2-256
	3, // SHA2-384
	4, // SHA2-512
}

// buildHashAlgoNotify emits the SIGNATURE_HASH_ALGORITHMS notify
// described in §4.4: the peer's configured hash set, or every
// IKEv2-valid hash this implementation supports if none is configured.
func (t *Task) buildHashAlgoNotify(msg *protocol.Message) {
	var algos []uint16
	if peer := t.ikeSa.GetPeerCfg(); peer != nil {
		algos = peer.SignatureHashAlgorithms()
	}
	if len(algos) == 0 {
		if cfg := t.ikeSa.GetIkeCfg(); cfg != nil && len(cfg.SignatureHashAlgorithms) > 0 {
			algos = cfg.SignatureHashAlgorithms
		} else {
			algos = ikev2ValidHashAlgorithms
		}
	}
	data := make([]byte, 0, len(algos)*2)
	for _, a := range algos {
		data = append(data, protocol.WriteUint16(a)...)
	}
	msg.AddNotify(false, protocol.SIGNATURE_HASH_ALGORITHMS, data)
}

// processHashAlgoNotify parses the 16-bit hash IDs out of data, adding
// each recognised one to the keymat's hash set and enabling
// EXT_SIGNATURE_AUTH if at least one was added.
func (t *Task) processHashAlgoNotify(data []byte) {
	added := false
	for off := 0; off+2 <= len(data); off += 2 {
		id, err := protocol.ReadUint16(data, off)
		if err != nil {
			continue
		}
		if !isValidHashAlgorithm(id) {
			continue
		}
		t.keymat.AddHashAlgorithm(id)
		added = true
	}
	if added {
		t.ikeSa.AddExtension(ikesa.ExtSignatureHashAlgorithms)
	}
}

func isValidHashAlgorithm(id uint16) bool {
	for _, v := range ikev2ValidHashAlgorithms {
		if v == id {
			return true
		}
	}
	return false
}
