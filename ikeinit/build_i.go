package ikeinit

import (
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

// buildI builds the initiator's IKE_SA_INIT request (or, on rekey, the
// equivalent primary CREATE_CHILD_SA request): SA, KE, NONCE, then the
// §4.2 notifies, per §4.2's ordering contract.
func (t *Task) buildI(msg *protocol.Message) Status {
	if t.retry >= MaxRetries {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrRetryLimitReached})
		return StatusFailed
	}
	if err := t.ensureMyNonce(); err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: err})
		return StatusFailed
	}

	cfg := t.ikeSa.GetIkeCfg()
	if t.keMethod == protocol.KE_NONE {
		t.keMethod = t.chooseInitialKeMethod(cfg)
	}
	if t.ke == nil || t.ke.Method() != t.keMethod {
		ke, err := t.keymat.CreateKe(t.keMethod)
		if err != nil {
			t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: errors.Wrap(ErrUnsupportedKeMethod, err.Error())})
			return StatusFailed
		}
		t.ke = ke
	}
	pub, err := t.ke.GenerateKeyPair()
	if err != nil {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: errors.Wrap(ErrKeApplyFailed, err.Error())})
		return StatusFailed
	}

	rekey := t.oldSa != nil
	exch := protocol.IKE_SA_INIT
	if rekey {
		exch = protocol.CREATE_CHILD_SA
	}
	msg.SetExchangeType(exch)

	if t.cookie != nil {
		msg.AddNotify(false, protocol.COOKIE, t.cookie)
	}
	msg.AddPayload(buildOutboundSa(cfg.Proposals, t.keMethod, t.ikeSa.GetID().SpiI, rekey))
	msg.AddPayload(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Method: t.keMethod, KeyData: pub})
	msg.AddPayload(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, NonceData: t.myNonce})
	if !rekey {
		t.addStandardNotifies(msg)
	}
	return StatusNeedMore
}

// chooseInitialKeMethod picks the method the primary exchange's KE
// payload will use: the predecessor's group on a rekey when
// prefer_previous_dh_group is set, otherwise this side's
// highest-configured proposal's group.
func (t *Task) chooseInitialKeMethod(cfg *ikesa.IkeConfig) protocol.KeMethod {
	if t.settings.PreferPreviousDhGroup && t.oldSa != nil {
		if m := t.oldSa.KeMethod(); m != protocol.KE_NONE {
			return m
		}
	}
	if cfg != nil {
		for _, p := range cfg.Proposals {
			if tr := p.TransformOfType(protocol.TRANSFORM_TYPE_DH); tr != nil {
				return protocol.KeMethod(tr.TransformId)
			}
		}
	}
	return protocol.KE_NONE
}
