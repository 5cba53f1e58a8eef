package ikeinit

import (
	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

// addStandardNotifies adds the notify payloads §4.2 specifies for the
// first, non-rekey exchange only.
func (t *Task) addStandardNotifies(msg *protocol.Message) {
	sa := t.ikeSa
	cfg := sa.GetIkeCfg()

	if cfg != nil && cfg.AllowsFragmentation() && (sa.IsInitiator() || sa.HasExtension(ikesa.ExtFragmentation)) {
		msg.AddNotify(false, protocol.FRAGMENTATION_SUPPORTED, nil)
	}

	if t.settings.SignatureAuthentication && (sa.IsInitiator() || sa.HasExtension(ikesa.ExtSignatureHashAlgorithms)) {
		t.buildHashAlgoNotify(msg)
	}

	if redirectFrom := sa.GetRedirectedFrom(); redirectFrom != "" {
		msg.AddNotify(false, protocol.REDIRECTED_FROM, []byte(redirectFrom))
		// The source falls through from REDIRECTED_FROM into enabling
		// REDIRECT_SUPPORTED after logging the redirect origin; preserved
		// here as an explicit shared side effect rather than a switch
		// fallthrough, since Go's switch does not fall through by default.
		sa.AddExtension(ikesa.ExtRedirectSupported)
	} else if sa.IsInitiator() && t.settings.FollowRedirects && cfg != nil && cfg.SupportsRedirect {
		msg.AddNotify(false, protocol.REDIRECT_SUPPORTED, nil)
	}

	if !sa.IsInitiator() && cfg != nil && cfg.ChildlessAllowed() {
		// childless SAs are a caller-level policy choice this task only
		// advertises, never implements.
		msg.AddNotify(false, protocol.CHILDLESS_IKEV2_SUPPORTED, nil)
	}

	if t.sendUsePpk() {
		msg.AddNotify(false, protocol.USE_PPK, nil)
	}
}

// sendUsePpk reports whether this side should advertise USE_PPK: a
// post-quantum preshared key is configured and available for the peer.
func (t *Task) sendUsePpk() bool {
	peer := t.ikeSa.GetPeerCfg()
	return peer != nil && peer.PpkAvailable && len(peer.GetPpkId()) > 0
}

// applyInboundNotifies dispatches every NOTIFY payload in msg, setting
// extension flags and recording state as §4.3 describes. It returns
// the first error-range notify seen that this task does not itself
// recover from (COOKIE, INVALID_KE_PAYLOAD and REDIRECT are handled
// separately, by preProcessI/processI in process_i.go, before this runs
// for the initiator).
func (t *Task) applyInboundNotifies(msg *protocol.Message) error {
	sa := t.ikeSa
	for _, p := range msg.Payloads.GetAll(protocol.PayloadTypeN) {
		n, ok := p.(*protocol.NotifyPayload)
		if !ok {
			continue
		}
		switch n.NotificationType {
		case protocol.FRAGMENTATION_SUPPORTED:
			sa.AddExtension(ikesa.ExtFragmentation)
		case protocol.SIGNATURE_HASH_ALGORITHMS:
			if t.settings.SignatureAuthentication {
				t.processHashAlgoNotify(n.Data)
			}
		case protocol.USE_PPK:
			sa.AddExtension(ikesa.ExtPpk)
		case protocol.REDIRECTED_FROM:
			sa.AddExtension(ikesa.ExtRedirectSupported)
		case protocol.REDIRECT_SUPPORTED:
			sa.AddExtension(ikesa.ExtRedirectSupported)
		case protocol.CHILDLESS_IKEV2_SUPPORTED:
			sa.AddExtension(ikesa.ExtChildlessIkev2)
		case protocol.COOKIE, protocol.INVALID_KE_PAYLOAD, protocol.REDIRECT:
			// handled in process_i.go before regular processing runs
		case protocol.NO_PROPOSAL_CHOSEN:
			t.alertProposalMismatch(sa.GetIkeCfg().Proposals)
			return ErrProposalMismatch
		default:
			if protocol.IsErrorNotify(n.NotificationType) {
				return t.handleUnknownError(n.NotificationType)
			}
		}
	}
	return nil
}

func (t *Task) handleUnknownError(nt protocol.NotificationType) error {
	code, _ := protocol.GetIkeErrorCode(nt)
	t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: code})
	return ErrUnknownNotifyError
}
