// Package ikeinit implements the IKE_SA_INIT task: the state machine
// that negotiates a proposal, performs the primary and any RFC 9370
// additional key exchanges, and derives the initial IKE_SA keymat, as
// both initiator and responder. It holds no transport, retransmission,
// or authentication logic; those belong to its caller.
package ikeinit

import (
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/nullcipher/ikeinit/crypto"
	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

const (
	MaxRetries      = 5
	MaxKeyExchanges = 8 // 1 primary + up to 7 RFC 9370 additional
)

// Status is the outcome of one build/process call.
type Status int

const (
	StatusNeedMore Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNeedMore:
		return "NeedMore"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type TaskType int

const IkeInit TaskType = 1

// keSlot is one entry in the negotiated key-exchange plan.
type keSlot struct {
	transformType protocol.TransformType
	method        protocol.KeMethod
	done          bool
}

// Task is the IKE_SA_INIT task instance, created once per negotiation
// attempt by the caller's scheduler and driven through Build*/Process*
// until it returns StatusSuccess or StatusFailed.
type Task struct {
	ikeSa       *ikesa.IkeSa
	oldSa       *ikesa.IkeSa // non-nil only when this task is a rekey
	isInitiator bool

	keyExchanges [MaxKeyExchanges]keSlot
	numSlots     int
	keIndex      int

	keMethod protocol.KeMethod
	ke       crypto.KeyExchange

	// keSecrets accumulates each completed exchange round's shared
	// secret, in negotiation order, for the single DeriveIkeKeys call
	// made once no slot remains pending, on both the initial and the
	// rekey path.
	keSecrets [][]byte
	keFailed  bool

	// outboundKeData and outboundSecret hold one completed round's
	// result between whichever process call computed it
	// (processR/processRMultiKe create the responder's own share here;
	// processI/processIMultiKe only fill outboundSecret) and the
	// following keyExchangeDone call that consumes it.
	outboundKeData []byte
	outboundSecret []byte

	myNonce, otherNonce []byte
	nonceg              *crypto.NonceGen

	proposal *protocol.SaProposal

	cookie []byte
	retry  int

	// responder-only fatal-condition flags, set during processR/processRMultiKe
	// and consumed by the following buildR/buildRMultiKe call, since
	// Process never itself emits a reply message.
	errNoProposal    bool
	errWrongKeGroup  bool
	correctKeMethod  protocol.KeMethod
	errRequireCookie bool
	requiredCookie   []byte

	keymat *crypto.Keymat

	settings ikesa.Settings

	// multiKe is true once the task has swapped its dispatch to the
	// multi-exchange Build/Process variants (see multi_ke.go). buildFn
	// and processFn are that swapped dispatch vector; nil means "use the
	// initial-exchange buildI/buildR or processI/processR".
	multiKe   bool
	buildFn   func(msg *protocol.Message) Status
	processFn func(msg *protocol.Message) Status

	postBuild   func(msg *protocol.Message) Status
	postProcess func(msg *protocol.Message) Status

	log log.Logger
}

// NewTask constructs the task for a fresh negotiation. oldSa is nil
// unless this is a rekey, in which case SK_d inheritance and the
// IKE_FOLLOWUP_KE exchange type are used instead of IKE_INTERMEDIATE.
func NewTask(sa, oldSa *ikesa.IkeSa, isInitiator bool, settings ikesa.Settings, logger log.Logger) *Task {
	return &Task{
		ikeSa:       sa,
		oldSa:       oldSa,
		isInitiator: isInitiator,
		keymat:      sa.Keymat(),
		settings:    settings,
		log:         logger,
	}
}

func (t *Task) GetType() TaskType { return IkeInit }

// GetLowerNonce returns whichever of the two nonces is
// byte-lexicographically smaller over their common prefix length, used
// by peer tasks (e.g. Child SA creation) that need a tie-breaker both
// sides agree on without further communication.
func (t *Task) GetLowerNonce() []byte {
	a, b := t.myNonce, t.otherNonce
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return a
			}
			return b
		}
	}
	if len(a) <= len(b) {
		return a
	}
	return b
}

// Migrate rebinds the task to a new enclosing SA, clearing the
// negotiation-specific state while keeping the nonce and any stored
// cookie so a retry can continue within the same attempt.
func (t *Task) Migrate(sa *ikesa.IkeSa) {
	t.ikeSa = sa
	t.keymat = sa.Keymat()
	t.resetVolatile()
}

// resetVolatile clears the negotiation-specific state a cookie or
// invalid-KE-group retry (or a Migrate) must start over with, while
// preserving my_nonce, cookie and (for a cookie retry) the live ke
// object so its already-generated public value can be resent as-is.
func (t *Task) resetVolatile() {
	t.proposal = nil
	t.otherNonce = nil
	t.keFailed = false
	t.keyExchanges = [MaxKeyExchanges]keSlot{}
	t.numSlots = 0
	t.keIndex = 0
	t.keSecrets = nil
	t.outboundKeData = nil
	t.outboundSecret = nil
	t.errNoProposal = false
	t.errWrongKeGroup = false
	t.correctKeMethod = protocol.KE_NONE
	t.errRequireCookie = false
	t.requiredCookie = nil
	t.multiKe = false
	t.buildFn = nil
	t.processFn = nil
	t.postBuild = nil
	t.postProcess = nil
}

// Destroy releases every resource the task owns.
func (t *Task) Destroy() {
	t.ke = nil
	t.keSecrets = nil
	t.proposal = nil
	t.myNonce = nil
	t.otherNonce = nil
	t.cookie = nil
	t.nonceg = nil
	t.outboundKeData = nil
	t.outboundSecret = nil
}

func (t *Task) ensureNonceGen() *crypto.NonceGen {
	if t.nonceg != nil {
		return t.nonceg
	}
	prfKeyLen := 32 // SHA2-256 output length, the baseline until a suite is known
	if suite := t.currentSuite(); suite != nil {
		prfKeyLen = suite.Prf.KeyLen
	}
	t.nonceg = crypto.NewNonceGen(prfKeyLen)
	return t.nonceg
}

// currentSuite builds a CipherSuite from whichever proposal is known:
// the negotiated one if selection already ran, otherwise our own
// primary configured proposal.
func (t *Task) currentSuite() *crypto.CipherSuite {
	prop := t.proposal
	if prop == nil {
		cfg := t.ikeSa.GetIkeCfg()
		if cfg == nil || len(cfg.Proposals) == 0 {
			return nil
		}
		prop = cfg.Proposals[0]
	}
	suite, err := crypto.NewCipherSuite(prop)
	if err != nil {
		return nil
	}
	return suite
}

// ensureMyNonce generates my_nonce exactly once per task instance; it
// is never regenerated across cookie or invalid-group retries.
func (t *Task) ensureMyNonce() error {
	if t.myNonce != nil {
		return nil
	}
	n, err := t.ensureNonceGen().Generate()
	if err != nil {
		return errors.Wrap(ErrNonceAllocationFailed, err.Error())
	}
	t.myNonce = n
	return nil
}

func (t *Task) alertProposalMismatch(proposals []*protocol.SaProposal) {
	t.ikeSa.GetBus().PublishAlert(&ikesa.AlertEvent{Err: errors.Wrap(ErrProposalMismatch, proposalSummary(proposals))})
}

func proposalSummary(proposals []*protocol.SaProposal) string {
	s := ""
	for i, p := range proposals {
		if i > 0 {
			s += ","
		}
		s += p.ProtocolId.String()
	}
	return s
}
