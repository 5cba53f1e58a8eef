package ikesa

import "github.com/nullcipher/ikeinit/protocol"

// FragmentationPolicy mirrors strongSwan's fragmentation setting: off,
// advertised opportunistically, or required.
type FragmentationPolicy uint8

const (
	FragmentationNo FragmentationPolicy = iota
	FragmentationYes
	FragmentationForce
)

// IkeConfig is the local policy the IKE_INIT task negotiates against:
// which proposals it offers or accepts, and the cookie/redirect knobs
// that shape the retry paths. Built the way Config/DefaultConfig are in the teacher's
// config.go: a plain value type the caller constructs, with no file
// parser of its own.
type IkeConfig struct {
	Proposals []*protocol.SaProposal

	// AdditionalKeMethods lists RFC 9370 additional key exchange methods.
	// The IKE_INIT task does not read it: the additional exchanges it
	// performs are the ADDITIONAL_KEY_EXCHANGE_* transforms of the
	// selected proposal, whatever this list holds.
	AdditionalKeMethods []protocol.KeMethod

	SignatureHashAlgorithms []uint16

	Fragmentation FragmentationPolicy
	Childless     bool

	// ThrottleInitRequests makes the responder require a COOKIE before
	// committing any per-SA state, per RFC 7296 2.6. CookieSecret is the
	// stateless HMAC key the challenge is computed from; the feature is
	// inert until both are set.
	ThrottleInitRequests bool
	CookieSecret         []byte

	// SupportsRedirect advertises REDIRECT_SUPPORTED as an initiator and,
	// unless an IkeSa redirect predicate is installed, decides whether a
	// received REDIRECT is accepted. RedirectGateways is not read by the
	// IKE_INIT task; as a responder it never issues a REDIRECT.
	SupportsRedirect bool
	RedirectGateways []string

	MaxRetries int
}

func DefaultIkeConfig() *IkeConfig {
	return &IkeConfig{
		Proposals: []*protocol.SaProposal{
			{
				Number:     1,
				ProtocolId: protocol.IKE,
				Transforms: []*protocol.Transform{
					{Type: protocol.TRANSFORM_TYPE_ENCR, TransformId: uint16(protocol.ENCR_AES_CBC), KeyLength: 256},
					{Type: protocol.TRANSFORM_TYPE_PRF, TransformId: uint16(protocol.PRF_HMAC_SHA2_256)},
					{Type: protocol.TRANSFORM_TYPE_INTEG, TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)},
					{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)},
				},
			},
		},
		SignatureHashAlgorithms: []uint16{2}, // SHA2-256 per RFC 7427 registry
		Fragmentation:           FragmentationYes,
		MaxRetries:              5,
	}
}

// ProposalOfType returns the configured local proposal for a protocol,
// mirroring the lookup ProposalFromTransform exists to feed in the
// teacher's config.go.
func (c *IkeConfig) ProposalOfType(pid protocol.ProtocolId) *protocol.SaProposal {
	for _, p := range c.Proposals {
		if p.ProtocolId == pid {
			return p
		}
	}
	return nil
}

// AllowsFragmentation reports whether this config permits advertising
// or accepting IKE fragmentation, per §4.2's FRAGMENTATION_SUPPORTED rule.
func (c *IkeConfig) AllowsFragmentation() bool { return c.Fragmentation != FragmentationNo }

// ChildlessAllowed reports whether this config permits childless IKE_SAs.
func (c *IkeConfig) ChildlessAllowed() bool { return c.Childless }

// AuthCfg is one authentication-configuration rule entry for a peer;
// only the signature-scheme rule this task inspects (RFC 7427's
// AUTH_RULE_IKE_SIGNATURE_SCHEME) is modelled, the rest of a real
// peer_cfg's auth rules (identities, certificates, EAP) being out of
// this task's scope.
type AuthCfg struct {
	SignatureSchemes []uint16
}

// PeerConfig holds what is known about the remote peer for this
// exchange: address, PPK material, and the authentication rules the
// hash-algorithm notify is built from.
type PeerConfig struct {
	RemoteAddr string
	Cookie     []byte

	AuthCfgs []AuthCfg

	PpkId        []byte
	PpkAvailable bool
}

// CreateAuthCfgEnumerator returns the configured authentication rules;
// named after the enumerator-returning collaborator method of spec.md
// §6, Go callers just range over the returned slice.
func (p *PeerConfig) CreateAuthCfgEnumerator() []AuthCfg { return p.AuthCfgs }

// SignatureHashAlgorithms collects the unique hash algorithm IDs across
// every AUTH_RULE_IKE_SIGNATURE_SCHEME-equivalent entry, per §4.4.
func (p *PeerConfig) SignatureHashAlgorithms() []uint16 {
	var out []uint16
	seen := map[uint16]bool{}
	for _, cfg := range p.AuthCfgs {
		for _, s := range cfg.SignatureSchemes {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func (p *PeerConfig) GetPpkId() []byte { return p.PpkId }
