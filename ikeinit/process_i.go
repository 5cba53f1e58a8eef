package ikeinit

import (
	"github.com/go-kit/kit/log/level"

	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
	"github.com/nullcipher/ikeinit/proposal"
)

// preProcessI validates an inbound response before process_i runs,
// without mutating task state: the duplicate-cookie guard and the
// REDIRECT echoed-nonce check, per §4.5.
func (t *Task) preProcessI(msg *protocol.Message) Status {
	if n := msg.GetNotify(protocol.COOKIE); n != nil {
		if t.cookie != nil && bytesEqual(n.Data, t.cookie) {
			t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrDuplicateCookie})
			return StatusFailed
		}
	}
	if t.oldSa == nil {
		if n := msg.GetNotify(protocol.REDIRECT); n != nil {
			_, echoedNonce, err := decodeRedirect(n.Data)
			if err != nil || !bytesEqual(echoedNonce, t.myNonce) {
				t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrInvalidRedirect})
				return StatusFailed
			}
		}
	}
	return StatusNeedMore
}

// processI consumes the responder's IKE_SA_INIT reply: the in-band
// retry notifies (§4.5) are handled first, since they short-circuit
// regular payload processing; otherwise the payloads are applied and,
// on success, the primary round's completion is run inline (the
// initial exchange never defers its own derivation — only a later
// intermediate round does, via processIMultiKe).
func (t *Task) processI(msg *protocol.Message) Status {
	if n := msg.GetNotify(protocol.COOKIE); n != nil {
		level.Info(t.log).Log("msg", "responder requested cookie", "retry", t.retry+1)
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrCookieChallenge})
		t.cookie = append([]byte{}, n.Data...)
		t.retry++
		t.resetVolatile()
		t.ikeSa.Reset()
		return StatusNeedMore
	}
	if n := msg.GetNotify(protocol.INVALID_KE_PAYLOAD); n != nil {
		group, err := protocol.ReadUint16(n.Data, 0)
		if err != nil {
			return StatusFailed
		}
		level.Info(t.log).Log("msg", "responder requested different key exchange group", "group", protocol.KeMethod(group), "retry", t.retry+1)
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrInvalidKeRetry})
		t.resetVolatile()
		t.keMethod = protocol.KeMethod(group)
		t.retry++
		if t.oldSa == nil {
			t.ikeSa.Reset()
		}
		return StatusNeedMore
	}
	if t.oldSa == nil {
		if n := msg.GetNotify(protocol.REDIRECT); n != nil {
			gateway, _, err := decodeRedirect(n.Data)
			if err != nil {
				t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrInvalidRedirect})
				return StatusFailed
			}
			if t.settings.FollowRedirects && t.ikeSa.HandleRedirect(gateway) {
				return StatusNeedMore
			}
			t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrRedirectRequested})
			return StatusFailed
		}
	}

	if err := t.processPayloads(msg); err != nil {
		return StatusFailed
	}
	if t.keFailed {
		t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: ErrKeApplyFailed})
		return StatusFailed
	}
	return t.keyExchangeDone()
}

// processPayloads applies every payload of known type in msg, shared
// by process_i and process_r for both the primary exchange and the
// multi-exchange KE-only rounds' SA-bearing first message, per §4.3.
func (t *Task) processPayloads(msg *protocol.Message) error {
	var pendingKe *protocol.KePayload

	if sa, ok := msg.GetPayload(protocol.PayloadTypeSA).(*protocol.SaPayload); ok {
		sel, err := t.selectProposal(sa.Proposals)
		if err != nil {
			return err
		}
		t.proposal = sel
	}
	if ke, ok := msg.GetPayload(protocol.PayloadTypeKE).(*protocol.KePayload); ok {
		t.keMethod = ke.Method
		pendingKe = ke
	}
	if nonce, ok := msg.GetPayload(protocol.PayloadTypeNonce).(*protocol.NoncePayload); ok {
		t.otherNonce = nonce.NonceData
	}
	if err := t.applyInboundNotifies(msg); err != nil {
		return err
	}

	if t.proposal == nil {
		return nil
	}
	t.ikeSa.SetProposal(t.proposal)
	t.ikeSa.SetKeMethod(t.keMethod)

	rekey := t.oldSa != nil
	if rekey {
		var spi protocol.Spi
		copy(spi[:], t.proposal.Spi)
		if t.isInitiator {
			t.ikeSa.SetSpiR(spi)
		} else {
			t.ikeSa.SetSpiI(spi)
		}
	} else if msg.IkeHeader != nil {
		if t.isInitiator {
			t.ikeSa.SetSpiR(msg.IkeHeader.SpiR)
		} else {
			t.ikeSa.SetSpiI(msg.IkeHeader.SpiI)
		}
	}

	t.keyExchanges, t.numSlots = computePlan(t.proposal)
	if pendingKe != nil {
		if err := t.processKePayload(pendingKe.Method, pendingKe.KeyData); err != nil {
			return err
		}
	}
	return nil
}

// selectProposal runs the proposal selector against the local
// configuration, falling back to any alternate config bound to the SA
// (a responder-only, non-rekey retry), per §4.3.
func (t *Task) selectProposal(remote []*protocol.SaProposal) (*protocol.SaProposal, error) {
	cfg := t.ikeSa.GetIkeCfg()
	flags := proposal.SelectFlags{
		SkipPrivate:    !t.settings.AcceptPrivateAlgs && !t.ikeSa.HasExtension(ikesa.ExtStrongswanVendor),
		PreferSupplied: !t.settings.PreferConfiguredProposals,
	}
	if cfg != nil {
		if sel, err := proposal.Select(remote, cfg.Proposals, flags); err == nil {
			return sel, nil
		}
	}
	if !t.isInitiator && t.oldSa == nil {
		for _, alt := range t.ikeSa.AltConfigs() {
			sel, err := proposal.Select(remote, alt.Proposals, flags)
			if err == nil {
				t.ikeSa.SetIkeCfg(alt)
				return sel, nil
			}
		}
	}
	t.alertProposalMismatch(remote)
	return nil, ErrProposalMismatch
}
