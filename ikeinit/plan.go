package ikeinit

import "github.com/nullcipher/ikeinit/protocol"

// computePlan builds the key-exchange plan from a selected proposal per
// §4.6: slot 0 is the KEY_EXCHANGE_METHOD (TRANSFORM_TYPE_DH) transform;
// slots 1..7 are the present ADDITIONAL_KEY_EXCHANGE_1..7 transforms, in
// numerical order, compacted to the front with no gaps.
func computePlan(prop *protocol.SaProposal) ([MaxKeyExchanges]keSlot, int) {
	var plan [MaxKeyExchanges]keSlot
	n := 0
	if dh := prop.TransformOfType(protocol.TRANSFORM_TYPE_DH); dh != nil {
		plan[n] = keSlot{transformType: protocol.TRANSFORM_TYPE_DH, method: protocol.KeMethod(dh.TransformId)}
		n++
	}
	for _, tt := range protocol.AdditionalKeyExchangeTypes {
		if tr := prop.TransformOfType(tt); tr != nil {
			plan[n] = keSlot{transformType: tt, method: protocol.KeMethod(tr.TransformId)}
			n++
		}
	}
	return plan, n
}

// hasPendingExchange reports whether any planned slot still needs a
// key-exchange round performed.
func (t *Task) hasPendingExchange() bool {
	for i := 0; i < t.numSlots; i++ {
		if !t.keyExchanges[i].done {
			return true
		}
	}
	return false
}

// currentSlot returns the plan entry the next build/process round
// should act on, or nil once the plan is exhausted.
func (t *Task) currentSlot() *keSlot {
	if t.keIndex < 0 || t.keIndex >= t.numSlots {
		return nil
	}
	return &t.keyExchanges[t.keIndex]
}
