package ikeinit

import (
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

// processR consumes the initiator's IKE_SA_INIT request. A responder
// Process call never itself emits a reply, so every fatal condition is
// latched as a flag here and turned into the single appropriate error
// notify by the following buildR call — modelling the state diagram's
// unconditional process_r -> build_r edge.
func (t *Task) processR(msg *protocol.Message) Status {
	if t.cookieThrottled(msg) {
		t.errRequireCookie = true
		return StatusNeedMore
	}

	if err := t.processPayloads(msg); err != nil {
		t.classifyResponderError(err)
		return StatusNeedMore
	}
	if t.proposal == nil {
		t.errNoProposal = true
		return StatusNeedMore
	}
	if t.keFailed {
		t.errNoProposal = true
	}
	return StatusNeedMore
}

// cookieThrottled reports whether an inbound request must be rejected
// with a COOKIE challenge under ThrottleInitRequests: throttling is
// configured and the request's COOKIE notify does not echo the
// stateless value this responder would have issued for it. On a miss
// it stores the expected value in t.requiredCookie for buildR to send.
func (t *Task) cookieThrottled(msg *protocol.Message) bool {
	cfg := t.ikeSa.GetIkeCfg()
	if cfg == nil || !cfg.ThrottleInitRequests || len(cfg.CookieSecret) == 0 || t.oldSa != nil {
		return false
	}
	var nonceData []byte
	if n, ok := msg.GetPayload(protocol.PayloadTypeNonce).(*protocol.NoncePayload); ok {
		nonceData = n.NonceData
	}
	expected := computeCookie(cfg.CookieSecret, t.ikeSa.GetID().SpiI, nonceData, msg.GetSource())
	if cookieNotify := msg.GetNotify(protocol.COOKIE); cookieNotify != nil && bytesEqual(cookieNotify.Data, expected) {
		return false
	}
	t.requiredCookie = expected
	return true
}

func (t *Task) classifyResponderError(err error) {
	switch errors.Cause(err) {
	case ErrWrongKeGroup:
		t.errWrongKeGroup = true
		if slot := t.currentSlot(); slot != nil {
			t.correctKeMethod = slot.method
		} else {
			t.correctKeMethod = t.keMethod
		}
	default:
		t.errNoProposal = true
	}
}

// buildR replies to the initiator: either the single fatal notify a
// flag from processR latched, or the full SA/KE/NONCE response,
// deriving keys inline since the initial IKE_SA_INIT response is not
// yet integrity protected (see DESIGN.md's Open Question notes).
func (t *Task) buildR(msg *protocol.Message) Status {
	if t.errRequireCookie {
		level.Debug(t.log).Log("msg", "challenging initiator with cookie")
		msg.SetExchangeType(protocol.IKE_SA_INIT)
		msg.AddNotify(false, protocol.COOKIE, t.requiredCookie)
		t.errRequireCookie = false
		t.requiredCookie = nil
		return StatusFailed
	}
	if t.errWrongKeGroup {
		level.Info(t.log).Log("msg", "rejecting key exchange group", "want", t.correctKeMethod)
		msg.SetExchangeType(protocol.IKE_SA_INIT)
		msg.AddNotify(true, protocol.INVALID_KE_PAYLOAD, protocol.WriteUint16(uint16(t.correctKeMethod)))
		t.errWrongKeGroup = false
		return StatusFailed
	}
	if t.errNoProposal {
		level.Warn(t.log).Log("msg", "no acceptable proposal, rejecting ike_sa_init")
		msg.SetExchangeType(protocol.IKE_SA_INIT)
		msg.AddNotify(true, protocol.NO_PROPOSAL_CHOSEN, nil)
		t.errNoProposal = false
		return StatusFailed
	}

	rekey := t.oldSa != nil
	exch := protocol.IKE_SA_INIT
	if rekey {
		exch = protocol.CREATE_CHILD_SA
	}
	msg.SetExchangeType(exch)
	if t.ikeSa.GetID().SpiR.IsZero() {
		t.ikeSa.SetSpiR(ikesa.MakeSpi())
	}
	msg.AddPayload(buildResponderSa(t.proposal, t.ikeSa.GetID().SpiR, rekey))
	msg.AddPayload(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Method: t.keMethod, KeyData: t.outboundKeData})
	if err := t.ensureMyNonce(); err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: err})
		return StatusFailed
	}
	msg.AddPayload(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, NonceData: t.myNonce})
	if !rekey {
		t.addStandardNotifies(msg)
	}

	return t.keyExchangeDone()
}
