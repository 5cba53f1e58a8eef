package ikesa

// Settings are the task-behaviour switches the IKE_INIT task's caller
// supplies at construction time, the same way the teacher's Session
// reads its IsInitiator/ThrottleInitRequests flags out of Config rather
// than hardcoding them into the state machine.
type Settings struct {
	// SignatureAuthentication controls whether SIGNATURE_HASH_ALGORITHMS
	// is advertised/processed at all; false sticks to the legacy PSK or
	// RSA PKCS#1 auth methods the notify doesn't apply to.
	SignatureAuthentication bool

	// FollowRedirects controls whether an inbound REDIRECT is acted on
	// as an initiator at all, independent of IkeConfig.SupportsRedirect
	// which also governs whether this side advertises the capability.
	FollowRedirects bool

	// AcceptPrivateAlgs disables proposal.SelectFlags.SkipPrivate.
	AcceptPrivateAlgs bool

	// PreferConfiguredProposals tries local proposal order before the
	// remote offer's, the inverse of proposal.SelectFlags.PreferSupplied.
	PreferConfiguredProposals bool

	// PreferPreviousDhGroup makes a rekey initiator re-offer the
	// predecessor SA's negotiated KE method first rather than its
	// highest-configured one, avoiding a needless INVALID_KE_PAYLOAD
	// round trip when the peer's policy hasn't changed.
	PreferPreviousDhGroup bool
}

func DefaultSettings() Settings {
	return Settings{
		SignatureAuthentication:   true,
		FollowRedirects:           true,
		PreferConfiguredProposals: true,
		PreferPreviousDhGroup:     true,
	}
}
