package ikeinit

import (
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/crypto"
	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

// enterMultiKe swaps the task's dispatch vector to the multi-exchange
// Build/Process variants, per §4.6. Called once, the first time
// keyExchangeDone finds a pending slot after a round completes.
func (t *Task) enterMultiKe() {
	t.multiKe = true
	if t.isInitiator {
		t.buildFn = t.buildIMultiKe
		t.processFn = t.processIMultiKe
	} else {
		t.buildFn = t.buildRMultiKe
		t.processFn = t.processRMultiKe
	}
}

func (t *Task) multiKeExchangeType() protocol.IkeExchangeType {
	if t.oldSa != nil {
		return protocol.IKE_FOLLOWUP_KE
	}
	return protocol.IKE_INTERMEDIATE
}

// buildIMultiKe starts a new round: a fresh key-exchange object for the
// plan's current slot, with exactly one outbound KE payload.
func (t *Task) buildIMultiKe(msg *protocol.Message) Status {
	msg.SetExchangeType(t.multiKeExchangeType())

	slot := t.currentSlot()
	if slot == nil {
		return StatusFailed
	}
	t.keMethod = slot.method
	ke, err := t.keymat.CreateKe(slot.method)
	if err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: errors.Wrap(ErrUnsupportedKeMethod, err.Error())})
		return StatusFailed
	}
	t.ke = ke
	pub, err := ke.GenerateKeyPair()
	if err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: errors.Wrap(ErrKeApplyFailed, err.Error())})
		return StatusFailed
	}
	msg.AddPayload(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Method: slot.method, KeyData: pub})
	return StatusNeedMore
}

// processIMultiKe applies the responder's reply KE payload and defers
// derivation to PostProcess, so the authentication computed over this
// intermediate message uses the pre-derivation keys (§4.6).
func (t *Task) processIMultiKe(msg *protocol.Message) Status {
	ke, ok := msg.GetPayload(protocol.PayloadTypeKE).(*protocol.KePayload)
	if !ok {
		return StatusFailed
	}
	if err := t.processKePayload(ke.Method, ke.KeyData); err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: err})
		return StatusFailed
	}
	t.postProcess = func(*protocol.Message) Status { return t.keyExchangeDone() }
	return StatusNeedMore
}

// processRMultiKe applies the initiator's round KE payload, computing
// this side's own share via processKePayload; any failure is latched
// for buildRMultiKe to report as NO_PROPOSAL_CHOSEN.
func (t *Task) processRMultiKe(msg *protocol.Message) Status {
	ke, ok := msg.GetPayload(protocol.PayloadTypeKE).(*protocol.KePayload)
	if !ok {
		t.errNoProposal = true
		return StatusNeedMore
	}
	t.keMethod = ke.Method
	if err := t.processKePayload(ke.Method, ke.KeyData); err != nil {
		t.errNoProposal = true
	}
	return StatusNeedMore
}

// buildRMultiKe replies with the already-computed outbound KE payload.
// On a rekey follow-up round the current SK_d is independent of this
// message so derivation runs inline; otherwise (an initial-establishment
// intermediate round) it is deferred to PostBuild until after the
// response has been signed with the still-current keys.
func (t *Task) buildRMultiKe(msg *protocol.Message) Status {
	if t.errNoProposal {
		msg.SetExchangeType(t.multiKeExchangeType())
		msg.AddNotify(true, protocol.NO_PROPOSAL_CHOSEN, nil)
		t.errNoProposal = false
		return StatusFailed
	}

	rekey := t.oldSa != nil
	msg.SetExchangeType(t.multiKeExchangeType())
	msg.AddPayload(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Method: t.keMethod, KeyData: t.outboundKeData})

	if rekey {
		return t.keyExchangeDone()
	}
	t.postBuild = func(*protocol.Message) Status { return t.keyExchangeDone() }
	return StatusNeedMore
}

// processKePayload applies one round's peer KE payload to this side's
// key-exchange object, per §4.6's rules. The responder path creates its
// own key-exchange object here (DH: generates a fresh key pair and
// derives the secret against the peer's value in one step; KEM: the
// Encapsulator role produces ciphertext and secret together). The
// initiator path only needs to finish the round against its
// already-generated object.
func (t *Task) processKePayload(wireMethod protocol.KeMethod, peerPublic []byte) error {
	planned := t.keMethod
	if slot := t.currentSlot(); slot != nil {
		planned = slot.method
	}
	if wireMethod != planned {
		t.keFailed = true
		return errors.Wrapf(ErrWrongKeGroup, "wire method %s, planned %s", wireMethod, planned)
	}

	if !t.isInitiator {
		ke, err := t.keymat.CreateKe(wireMethod)
		if err != nil {
			t.keFailed = true
			return errors.Wrap(ErrUnsupportedKeMethod, err.Error())
		}
		t.ke = ke
		if encap, ok := ke.(crypto.Encapsulator); ok {
			ciphertext, secret, err := encap.Encapsulate(peerPublic)
			if err != nil {
				t.keFailed = true
				return errors.Wrap(ErrKeApplyFailed, err.Error())
			}
			t.outboundKeData, t.outboundSecret = ciphertext, secret
			return nil
		}
		pub, err := ke.GenerateKeyPair()
		if err != nil {
			t.keFailed = true
			return errors.Wrap(ErrKeApplyFailed, err.Error())
		}
		secret, err := ke.ComputeSecret(peerPublic)
		if err != nil {
			t.keFailed = true
			return errors.Wrap(ErrKeApplyFailed, err.Error())
		}
		t.outboundKeData, t.outboundSecret = pub, secret
		return nil
	}

	if t.ke == nil || t.ke.Method() != wireMethod {
		t.keFailed = true
		return errors.Wrapf(ErrWrongKeGroup, "no matching local key exchange for %s", wireMethod)
	}
	secret, err := t.ke.ComputeSecret(peerPublic)
	if err != nil {
		t.keFailed = true
		return errors.Wrap(ErrKeApplyFailed, err.Error())
	}
	t.outboundSecret = secret
	return nil
}

// keyExchangeDone is the shared completion routine §4.6 calls
// "key_exchange_done": mark the current slot done, advance ke_index,
// and either enter (or stay in) the multi-exchange phase if a slot
// remains pending, or derive keys. Every round's secret — the primary
// exchange's included — is accumulated into keSecrets in plan order;
// derivation runs exactly once, after the last slot completes, over
// the full accumulated list, chained from the real predecessor SA's
// SK_d on a rekey, or from nothing (a fresh SKEYSEED) on initial
// establishment.
func (t *Task) keyExchangeDone() Status {
	secret := t.outboundSecret
	t.outboundSecret = nil
	t.outboundKeData = nil

	if slot := t.currentSlot(); slot != nil {
		slot.done = true
	}
	t.keIndex++

	t.keSecrets = append(t.keSecrets, secret)
	t.ke = nil

	if t.hasPendingExchange() {
		if !t.multiKe {
			level.Debug(t.log).Log("msg", "additional key exchange pending, entering multi-KE phase", "ke_index", t.keIndex)
			t.enterMultiKe()
		}
		return StatusNeedMore
	}

	rekey := t.oldSa != nil
	var skDPrev []byte
	if rekey {
		skDPrev = t.oldSa.Keymat().GetSkD()
	}
	secrets := t.keSecrets

	if err := t.keymat.DeriveIkeKeys(t.initiatorNonce(), t.responderNonce(), secrets, t.ikeSa.GetID().SpiI, t.ikeSa.GetID().SpiR, skDPrev); err != nil {
		level.Warn(t.log).Log("msg", "ike key derivation failed", "err", err)
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: err})
		return StatusFailed
	}
	level.Info(t.log).Log("msg", "derived ike_sa keymat", "exchanges", len(secrets), "rekey", rekey)
	t.ikeSa.GetBus().PublishKeys(&ikesa.KeysEvent{Keymat: t.keymat, IsFinal: true})
	return StatusSuccess
}

func (t *Task) initiatorNonce() []byte {
	if t.isInitiator {
		return t.myNonce
	}
	return t.otherNonce
}

func (t *Task) responderNonce() []byte {
	if t.isInitiator {
		return t.otherNonce
	}
	return t.myNonce
}
