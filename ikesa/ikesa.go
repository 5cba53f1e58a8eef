// Package ikesa holds the IKE_SA container the IKE_INIT task operates
// on: identifiers, negotiated extensions, and the configuration and
// event-bus collaborators the task is handed rather than constructing
// itself, the same separation session.go keeps between Session state
// and the Config/Tkm it holds.
package ikesa

import (
	"fmt"

	"github.com/nullcipher/ikeinit/crypto"
	"github.com/nullcipher/ikeinit/protocol"
)

// State is the IKE_SA's coarse lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateInitSent
	StateInitEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitSent:
		return "INIT_SENT"
	case StateInitEstablished:
		return "INIT_ESTABLISHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Extension is a bitset of optional behaviours negotiated for this SA.
type Extension uint32

const (
	ExtNatDetection Extension = 1 << iota
	ExtSignatureHashAlgorithms
	ExtRedirectSupported
	ExtFragmentation
	ExtPpk
	ExtChildlessIkev2
	ExtMultipleKeyExchange
	ExtStrongswanVendor
)

// IkeId identifies an IKE_SA by its SPI pair.
type IkeId struct {
	SpiI, SpiR protocol.Spi
}

func (id IkeId) String() string {
	return fmt.Sprintf("%x<=>%x", id.SpiI, id.SpiR)
}

// IkeSa is the external container the IKE_INIT task reads identifiers
// from and writes derived keys and negotiated extensions back into. It
// owns no network or scheduling behaviour; that lives outside this
// task's scope.
type IkeSa struct {
	id          IkeId
	isInitiator bool
	state       State
	extensions  Extension

	ikeCfg   *IkeConfig
	peerCfg  *PeerConfig
	keymat   *crypto.Keymat
	bus      *Bus
	retries  int
	// redirect holds the REDIRECTED_FROM gateway this SA restarted from,
	// if any; set via SetRedirectedFrom by whatever constructs the
	// reinitiated SA after a REDIRECT is accepted, never by the SA being
	// torn down itself.
	redirect string

	otherHost string
	connectId []byte

	altConfigs []*IkeConfig
	altIndex   int

	proposal *protocol.SaProposal
	keMethod protocol.KeMethod

	// redirectAccept, when set, is consulted by HandleRedirect to decide
	// whether a REDIRECT notify from the peer should be honoured. A nil
	// func defers to ikeCfg.SupportsRedirect alone.
	redirectAccept func(gateway string) bool
}

func NewIkeSa(isInitiator bool, ikeCfg *IkeConfig, peerCfg *PeerConfig, bus *Bus) *IkeSa {
	sa := &IkeSa{
		isInitiator: isInitiator,
		ikeCfg:      ikeCfg,
		peerCfg:     peerCfg,
		bus:         bus,
		state:       StateIdle,
	}
	if isInitiator {
		sa.id.SpiI = MakeSpi()
	}
	return sa
}

func (sa *IkeSa) GetID() IkeId             { return sa.id }
func (sa *IkeSa) SetSpiI(spi protocol.Spi) { sa.id.SpiI = spi }
func (sa *IkeSa) SetSpiR(spi protocol.Spi) { sa.id.SpiR = spi }
func (sa *IkeSa) IsInitiator() bool        { return sa.isInitiator }

func (sa *IkeSa) GetIkeCfg() *IkeConfig     { return sa.ikeCfg }
func (sa *IkeSa) SetIkeCfg(cfg *IkeConfig)  { sa.ikeCfg = cfg }
func (sa *IkeSa) GetPeerCfg() *PeerConfig   { return sa.peerCfg }
func (sa *IkeSa) GetBus() *Bus              { return sa.bus }

func (sa *IkeSa) Keymat() *crypto.Keymat     { return sa.keymat }
func (sa *IkeSa) SetKeymat(k *crypto.Keymat) { sa.keymat = k }

func (sa *IkeSa) State() State      { return sa.state }
func (sa *IkeSa) SetState(s State)  { sa.state = s }
func (sa *IkeSa) Retries() int      { return sa.retries }
func (sa *IkeSa) IncrementRetries() { sa.retries++ }

func (sa *IkeSa) GetRedirectedFrom() string      { return sa.redirect }
func (sa *IkeSa) SetRedirectedFrom(gw string)    { sa.redirect = gw }

func (sa *IkeSa) AddExtension(e Extension)      { sa.extensions |= e }
func (sa *IkeSa) HasExtension(e Extension) bool { return sa.extensions&e != 0 }
func (sa *IkeSa) Extensions() Extension         { return sa.extensions }

func (sa *IkeSa) GetOtherHost() string   { return sa.otherHost }
func (sa *IkeSa) SetOtherHost(h string)  { sa.otherHost = h }

func (sa *IkeSa) GetConnectId() []byte  { return sa.connectId }
func (sa *IkeSa) SetConnectId(id []byte) { sa.connectId = id }

// AltConfigs returns the alternate configs queued behind the current
// one, consulted after NO_PROPOSAL_CHOSEN the way a peer_cfg's next
// alternative would be tried in the teacher's config selection loop.
func (sa *IkeSa) AltConfigs() []*IkeConfig        { return sa.altConfigs }
func (sa *IkeSa) SetAltConfigs(cfgs []*IkeConfig) { sa.altConfigs = cfgs }

// GetProposal/SetProposal hold the proposal chosen for this SA once
// negotiation completes, independent of ikeCfg's full candidate list.
func (sa *IkeSa) GetProposal() *protocol.SaProposal      { return sa.proposal }
func (sa *IkeSa) SetProposal(p *protocol.SaProposal)     { sa.proposal = p }

// KeMethod/SetKeMethod hold the primary key exchange method negotiated
// for this SA, used by a later rekey to honour prefer_previous_dh_group.
func (sa *IkeSa) KeMethod() protocol.KeMethod          { return sa.keMethod }
func (sa *IkeSa) SetKeMethod(m protocol.KeMethod)      { sa.keMethod = m }

// SetRedirectAccept installs the predicate HandleRedirect consults;
// passing nil restores the ikeCfg.SupportsRedirect-only default.
func (sa *IkeSa) SetRedirectAccept(f func(gateway string) bool) { sa.redirectAccept = f }

// HandleRedirect decides whether a REDIRECT notify naming gateway
// should be honoured. It never mutates this SA: on accept, the caller
// tears this attempt down and builds a fresh IkeSa pointed at gateway,
// calling SetRedirectedFrom on that new SA (not this one) so its own
// IKE_SA_INIT request can carry REDIRECTED_FROM. Mirrors the
// accept-or-ignore branch a responder's redirect handler takes in the
// teacher's notify dispatch.
func (sa *IkeSa) HandleRedirect(gateway string) bool {
	accept := sa.ikeCfg != nil && sa.ikeCfg.SupportsRedirect
	if sa.redirectAccept != nil {
		accept = sa.redirectAccept(gateway)
	}
	return accept
}

// GetRef returns the receiver itself; present so callers that hold an
// interface wrapping *IkeSa (as Session.ActiveSa does in the teacher)
// can recover the concrete struct without a type assertion.
func (sa *IkeSa) GetRef() *IkeSa { return sa }

// Reset clears per-attempt state (proposal, key method, retry count)
// while keeping identity and configuration, for reuse across a fresh
// IKE_INIT attempt after a cookie or invalid-KE retry replaces the SA.
func (sa *IkeSa) Reset() {
	sa.proposal = nil
	sa.keMethod = protocol.KE_NONE
	sa.retries = 0
	sa.state = StateIdle
	sa.extensions = 0
}
