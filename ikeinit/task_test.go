package ikeinit

import (
	"bytes"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/nullcipher/ikeinit/crypto"
	"github.com/nullcipher/ikeinit/ikesa"
	"github.com/nullcipher/ikeinit/protocol"
)

func testLogger() log.Logger { return log.NewNopLogger() }

func testIkeConfig(method protocol.KeMethod) *ikesa.IkeConfig {
	cfg := ikesa.DefaultIkeConfig()
	cfg.Proposals[0].Transforms[len(cfg.Proposals[0].Transforms)-1] = &protocol.Transform{
		Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(method),
	}
	return cfg
}

func newTestSa(isInitiator bool, cfg *ikesa.IkeConfig) *ikesa.IkeSa {
	sa := ikesa.NewIkeSa(isInitiator, cfg, nil, ikesa.NewBus())
	suite, err := crypto.NewCipherSuite(cfg.Proposals[0])
	if err != nil {
		panic(err)
	}
	sa.SetKeymat(crypto.NewKeymat(suite, testLogger()))
	return sa
}

func drainAlerts(t *testing.T, bus *ikesa.Bus) {
	t.Helper()
	for {
		select {
		case e := <-bus.Alerts():
			t.Logf("alert: %v", e.Err)
		default:
			return
		}
	}
}

// TestHappyPathRoundTrip drives a single-KE IKE_SA_INIT exchange to
// completion on both sides and checks the derived keymat matches.
func TestHappyPathRoundTrip(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	rCfg := testIkeConfig(protocol.MODP_2048)
	iSa := newTestSa(true, iCfg)
	rSa := newTestSa(false, rCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())
	rTask := NewTask(rSa, nil, false, ikesa.DefaultSettings(), testLogger())

	req := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req); st != StatusNeedMore {
		t.Fatalf("iTask.Build = %v", st)
	}

	if st := rTask.Process(req); st != StatusNeedMore {
		t.Fatalf("rTask.Process = %v", st)
	}
	resp := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	st := rTask.Build(resp)
	if st != StatusSuccess {
		drainAlerts(t, rSa.GetBus())
		t.Fatalf("rTask.Build = %v", st)
	}
	resp.IkeHeader.SpiR = rSa.GetID().SpiR

	if st := iTask.PreProcess(resp); st != StatusNeedMore {
		t.Fatalf("iTask.PreProcess = %v", st)
	}
	st = iTask.Process(resp)
	if st != StatusSuccess {
		drainAlerts(t, iSa.GetBus())
		t.Fatalf("iTask.Process = %v", st)
	}

	if iSa.GetID().SpiR.IsZero() {
		t.Fatalf("initiator never learned responder SPI")
	}
	if !bytes.Equal(iSa.Keymat().GetSkD(), rSa.Keymat().GetSkD()) {
		t.Fatalf("SK_d mismatch between initiator and responder")
	}
	if !bytes.Equal(iSa.Keymat().SkEi(), rSa.Keymat().SkEi()) {
		t.Fatalf("SK_ei mismatch between initiator and responder")
	}
	if !bytes.Equal(iTask.myNonce, rTask.otherNonce) || !bytes.Equal(rTask.myNonce, iTask.otherNonce) {
		t.Fatalf("nonces not cross-delivered correctly")
	}
}

// TestCookieRetry exercises the stateless cookie challenge: the
// responder rejects the first request, the initiator retries with the
// same KE public value and nonce, and the second attempt succeeds.
func TestCookieRetry(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	rCfg := testIkeConfig(protocol.MODP_2048)
	rCfg.ThrottleInitRequests = true
	rCfg.CookieSecret = []byte("test-cookie-secret")
	iSa := newTestSa(true, iCfg)
	rSa := newTestSa(false, rCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())
	rTask := NewTask(rSa, nil, false, ikesa.DefaultSettings(), testLogger())

	req1 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req1); st != StatusNeedMore {
		t.Fatalf("first Build = %v", st)
	}
	firstNonce := append([]byte{}, iTask.myNonce...)
	firstKe, _ := req1.GetPayload(protocol.PayloadTypeKE).(*protocol.KePayload)
	firstPublic := append([]byte{}, firstKe.KeyData...)

	if st := rTask.Process(req1); st != StatusNeedMore {
		t.Fatalf("responder Process(req1) = %v", st)
	}
	challenge := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	if st := rTask.Build(challenge); st != StatusFailed {
		t.Fatalf("responder Build(challenge) = %v, want Failed", st)
	}
	cookieNotify := challenge.GetNotify(protocol.COOKIE)
	if cookieNotify == nil {
		t.Fatalf("expected COOKIE notify in challenge")
	}

	if st := iTask.PreProcess(challenge); st != StatusNeedMore {
		t.Fatalf("initiator PreProcess(challenge) = %v", st)
	}
	if st := iTask.Process(challenge); st != StatusNeedMore {
		t.Fatalf("initiator Process(challenge) = %v", st)
	}
	if iTask.retry != 1 {
		t.Fatalf("retry = %d, want 1", iTask.retry)
	}

	req2 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req2); st != StatusNeedMore {
		t.Fatalf("second Build = %v", st)
	}
	if !bytes.Equal(iTask.myNonce, firstNonce) {
		t.Fatalf("nonce changed across cookie retry")
	}
	secondKe, _ := req2.GetPayload(protocol.PayloadTypeKE).(*protocol.KePayload)
	if !bytes.Equal(secondKe.KeyData, firstPublic) {
		t.Fatalf("KE public value changed across cookie retry")
	}
	if req2.GetNotify(protocol.COOKIE) == nil {
		t.Fatalf("retried request must echo the COOKIE notify")
	}

	if st := rTask.Process(req2); st != StatusNeedMore {
		t.Fatalf("responder Process(req2) = %v", st)
	}
	resp := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	if st := rTask.Build(resp); st != StatusSuccess {
		drainAlerts(t, rSa.GetBus())
		t.Fatalf("responder Build(resp) = %v", st)
	}
}

// TestInvalidKeGroupRetry exercises the responder rejecting the
// initiator's offered group, forcing a fresh key-exchange object while
// the nonce is preserved.
func TestInvalidKeGroupRetry(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_1024)
	iCfg.Proposals[0].Transforms = append(iCfg.Proposals[0].Transforms,
		&protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.MODP_2048)})
	rCfg := testIkeConfig(protocol.MODP_2048)
	iSa := newTestSa(true, iCfg)
	rSa := newTestSa(false, rCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())
	rTask := NewTask(rSa, nil, false, ikesa.DefaultSettings(), testLogger())

	req1 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	iTask.Build(req1)
	firstNonce := append([]byte{}, iTask.myNonce...)

	if st := rTask.Process(req1); st != StatusNeedMore {
		t.Fatalf("responder Process(req1) = %v", st)
	}
	if !rTask.errWrongKeGroup {
		t.Fatalf("expected errWrongKeGroup latched")
	}
	reject := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	if st := rTask.Build(reject); st != StatusFailed {
		t.Fatalf("responder Build(reject) = %v, want Failed", st)
	}
	n := reject.GetNotify(protocol.INVALID_KE_PAYLOAD)
	if n == nil {
		t.Fatalf("expected INVALID_KE_PAYLOAD notify")
	}
	group, _ := protocol.ReadUint16(n.Data, 0)
	if protocol.KeMethod(group) != protocol.MODP_2048 {
		t.Fatalf("suggested group = %v, want MODP_2048", protocol.KeMethod(group))
	}

	oldKe := iTask.ke
	if st := iTask.Process(reject); st != StatusNeedMore {
		t.Fatalf("initiator Process(reject) = %v", st)
	}
	if iTask.keMethod != protocol.MODP_2048 {
		t.Fatalf("initiator keMethod = %v, want MODP_2048", iTask.keMethod)
	}
	if !bytes.Equal(iTask.myNonce, firstNonce) {
		t.Fatalf("nonce changed across invalid-KE retry")
	}

	req2 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req2); st != StatusNeedMore {
		t.Fatalf("second Build = %v", st)
	}
	if iTask.ke == oldKe {
		t.Fatalf("key exchange object was not recreated for the new group")
	}
	if iTask.ke.Method() != protocol.MODP_2048 {
		t.Fatalf("recreated key exchange uses wrong method: %v", iTask.ke.Method())
	}
}

// TestMultiKeHybridRoundTrip exercises an RFC 9370 additional key
// exchange chained onto the primary round, with deferred derivation via
// PostBuild/PostProcess on the non-rekey path.
func TestMultiKeHybridRoundTrip(t *testing.T) {
	iCfg := testIkeConfig(protocol.ECP_256)
	iCfg.Proposals[0].Transforms = append(iCfg.Proposals[0].Transforms,
		&protocol.Transform{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE1, TransformId: uint16(protocol.ML_KEM_768)})
	rCfg := testIkeConfig(protocol.ECP_256)
	rCfg.Proposals[0].Transforms = append(rCfg.Proposals[0].Transforms,
		&protocol.Transform{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE1, TransformId: uint16(protocol.ML_KEM_768)})

	iSa := newTestSa(true, iCfg)
	rSa := newTestSa(false, rCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())
	rTask := NewTask(rSa, nil, false, ikesa.DefaultSettings(), testLogger())

	req := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req); st != StatusNeedMore {
		t.Fatalf("primary Build = %v", st)
	}
	if st := rTask.Process(req); st != StatusNeedMore {
		t.Fatalf("primary responder Process = %v", st)
	}
	resp := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	st := rTask.Build(resp)
	if st != StatusNeedMore {
		drainAlerts(t, rSa.GetBus())
		t.Fatalf("primary responder Build = %v, want NeedMore (pending additional KE)", st)
	}
	resp.IkeHeader.SpiR = rSa.GetID().SpiR
	if !rTask.multiKe {
		t.Fatalf("responder did not enter multi-KE mode")
	}

	if st := iTask.PreProcess(resp); st != StatusNeedMore {
		t.Fatalf("primary PreProcess = %v", st)
	}
	st = iTask.Process(resp)
	if st != StatusNeedMore {
		drainAlerts(t, iSa.GetBus())
		t.Fatalf("primary initiator Process = %v, want NeedMore", st)
	}
	if !iTask.multiKe {
		t.Fatalf("initiator did not enter multi-KE mode")
	}

	intermediate := protocol.NewMessage(protocol.IKE_INTERMEDIATE, iSa.GetID().SpiI, rSa.GetID().SpiR, false)
	if st := iTask.Build(intermediate); st != StatusNeedMore {
		t.Fatalf("intermediate initiator Build = %v", st)
	}

	if st := rTask.Process(intermediate); st != StatusNeedMore {
		t.Fatalf("intermediate responder Process = %v", st)
	}
	intermediateResp := protocol.NewMessage(protocol.IKE_INTERMEDIATE, iSa.GetID().SpiI, rSa.GetID().SpiR, true)
	st = rTask.Build(intermediateResp)
	if st != StatusNeedMore {
		drainAlerts(t, rSa.GetBus())
		t.Fatalf("intermediate responder Build = %v, want NeedMore (derivation deferred)", st)
	}
	if st := rTask.PostBuild(intermediateResp); st != StatusSuccess {
		drainAlerts(t, rSa.GetBus())
		t.Fatalf("responder PostBuild = %v", st)
	}

	st = iTask.Process(intermediateResp)
	if st != StatusNeedMore {
		drainAlerts(t, iSa.GetBus())
		t.Fatalf("intermediate initiator Process = %v, want NeedMore (derivation deferred)", st)
	}
	if st := iTask.PostProcess(intermediateResp); st != StatusSuccess {
		drainAlerts(t, iSa.GetBus())
		t.Fatalf("initiator PostProcess = %v", st)
	}

	if !bytes.Equal(iSa.Keymat().GetSkD(), rSa.Keymat().GetSkD()) {
		t.Fatalf("SK_d mismatch after hybrid multi-KE round trip")
	}

	// The final keymat must depend on both the primary ECP-256 secret
	// and the additional ML-KEM-768 secret, in plan order, not just the
	// last round's secret. Re-derive using only the last secret, with
	// the same nonces and SPIs, and confirm it disagrees with the real
	// SK_d: if it agreed, the primary exchange's secret would have to
	// have been dropped from the real derivation.
	if len(iTask.keSecrets) != 2 {
		t.Fatalf("expected 2 accumulated key-exchange secrets, got %d", len(iTask.keSecrets))
	}
	suite, err := crypto.NewCipherSuite(iSa.GetProposal())
	if err != nil {
		t.Fatalf("NewCipherSuite: %v", err)
	}
	lastOnly := crypto.NewKeymat(suite, testLogger())
	if err := lastOnly.DeriveIkeKeys(
		iTask.initiatorNonce(), iTask.responderNonce(),
		[][]byte{iTask.keSecrets[1]},
		iSa.GetID().SpiI, iSa.GetID().SpiR, nil,
	); err != nil {
		t.Fatalf("reference DeriveIkeKeys: %v", err)
	}
	if bytes.Equal(iSa.Keymat().GetSkD(), lastOnly.GetSkD()) {
		t.Fatalf("multi-KE keymat matches a derivation from only the last round's secret; primary ECP-256 secret was dropped")
	}
}

// TestRekeyPreferPreviousDhGroup exercises a rekey's primary round
// carrying the predecessor's DH group and chaining SK_d from the
// predecessor keymat rather than re-deriving SKEYSEED from scratch.
func TestRekeyPreferPreviousDhGroup(t *testing.T) {
	cfg := testIkeConfig(protocol.MODP_2048)
	oldISa := newTestSa(true, cfg)
	oldRSa := newTestSa(false, cfg)
	oldISa.SetKeMethod(protocol.MODP_2048)
	oldRSa.SetKeMethod(protocol.MODP_2048)
	if err := oldISa.Keymat().DeriveIkeKeys([]byte("ni"), []byte("nr"), [][]byte{[]byte("classical-secret")},
		oldISa.GetID().SpiI, oldISa.GetID().SpiR, nil); err != nil {
		t.Fatalf("seed derive: %v", err)
	}
	*oldRSa.Keymat() = *oldISa.Keymat()

	settings := ikesa.DefaultSettings()
	settings.PreferPreviousDhGroup = true

	newISa := newTestSa(true, cfg)
	newRSa := newTestSa(false, cfg)
	iTask := NewTask(newISa, oldISa, true, settings, testLogger())
	rTask := NewTask(newRSa, oldRSa, false, settings, testLogger())

	req := protocol.NewMessage(protocol.CREATE_CHILD_SA, newISa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req); st != StatusNeedMore {
		t.Fatalf("rekey Build = %v", st)
	}
	if iTask.keMethod != protocol.MODP_2048 {
		t.Fatalf("rekey did not honour prefer_previous_dh_group: %v", iTask.keMethod)
	}

	if st := rTask.Process(req); st != StatusNeedMore {
		t.Fatalf("rekey responder Process = %v", st)
	}
	resp := protocol.NewMessage(protocol.CREATE_CHILD_SA, newISa.GetID().SpiI, protocol.Spi{}, true)
	st := rTask.Build(resp)
	if st != StatusSuccess {
		drainAlerts(t, newRSa.GetBus())
		t.Fatalf("rekey responder Build = %v", st)
	}

	if st := iTask.Process(resp); st != StatusSuccess {
		drainAlerts(t, newISa.GetBus())
		t.Fatalf("rekey initiator Process = %v", st)
	}
	if bytes.Equal(newISa.Keymat().GetSkD(), oldISa.Keymat().GetSkD()) {
		t.Fatalf("rekeyed SK_d must differ from the predecessor's")
	}
	if !bytes.Equal(newISa.Keymat().GetSkD(), newRSa.Keymat().GetSkD()) {
		t.Fatalf("rekeyed SK_d mismatch between initiator and responder")
	}
}

// TestRedirectAccept exercises the initiator honouring a REDIRECT
// notify that correctly echoes its nonce.
func TestRedirectAccept(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	iCfg.SupportsRedirect = true
	iSa := newTestSa(true, iCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())

	req := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	iTask.Build(req)

	redirectData := append([]byte{3, byte(len("gw.example.com"))}, []byte("gw.example.com")...)
	redirectData = append(redirectData, iTask.myNonce...)
	resp := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	resp.AddNotify(false, protocol.REDIRECT, redirectData)

	if st := iTask.PreProcess(resp); st != StatusNeedMore {
		t.Fatalf("PreProcess(valid redirect) = %v, want NeedMore", st)
	}
	if st := iTask.Process(resp); st != StatusNeedMore {
		t.Fatalf("Process(valid redirect) = %v, want NeedMore (accepted)", st)
	}
	if iSa.GetRedirectedFrom() != "" {
		t.Fatalf("GetRedirectedFrom should be set on the restarted SA, not this one")
	}

	// The reinitiated attempt is a brand new SA pointed at the gateway;
	// whatever constructs it calls SetRedirectedFrom so its own
	// IKE_SA_INIT request carries REDIRECTED_FROM, per §4.2.
	newSa := newTestSa(true, iCfg)
	newSa.SetRedirectedFrom("gw.example.com")
	newTask := NewTask(newSa, nil, true, ikesa.DefaultSettings(), testLogger())
	newReq := protocol.NewMessage(protocol.IKE_SA_INIT, newSa.GetID().SpiI, protocol.Spi{}, false)
	if st := newTask.Build(newReq); st != StatusNeedMore {
		t.Fatalf("restarted attempt Build = %v", st)
	}
	n := newReq.GetNotify(protocol.REDIRECTED_FROM)
	if n == nil || string(n.Data) != "gw.example.com" {
		t.Fatalf("restarted attempt did not emit REDIRECTED_FROM: %+v", n)
	}
}

// TestRedirectInvalidNonce exercises a REDIRECT carrying the wrong
// echoed nonce being rejected as a fatal condition.
func TestRedirectInvalidNonce(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	iCfg.SupportsRedirect = true
	iSa := newTestSa(true, iCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())

	req := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	iTask.Build(req)

	redirectData := append([]byte{3, byte(len("gw.example.com"))}, []byte("gw.example.com")...)
	redirectData = append(redirectData, []byte("not-the-right-nonce")...)
	resp := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, true)
	resp.AddNotify(false, protocol.REDIRECT, redirectData)

	if st := iTask.PreProcess(resp); st != StatusFailed {
		t.Fatalf("PreProcess(bad-nonce redirect) = %v, want Failed", st)
	}
}

func TestRetryNeverExceedsMaxRetries(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	iSa := newTestSa(true, iCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())
	iTask.retry = MaxRetries

	req := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	if st := iTask.Build(req); st != StatusFailed {
		t.Fatalf("Build at retry limit = %v, want Failed", st)
	}
}

func TestNonceGeneratedAtMostOnce(t *testing.T) {
	iCfg := testIkeConfig(protocol.MODP_2048)
	iSa := newTestSa(true, iCfg)
	iTask := NewTask(iSa, nil, true, ikesa.DefaultSettings(), testLogger())

	req1 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	iTask.Build(req1)
	n1 := append([]byte{}, iTask.myNonce...)

	iTask.resetVolatile()
	req2 := protocol.NewMessage(protocol.IKE_SA_INIT, iSa.GetID().SpiI, protocol.Spi{}, false)
	iTask.Build(req2)
	if !bytes.Equal(iTask.myNonce, n1) {
		t.Fatalf("myNonce regenerated after resetVolatile")
	}
}

func TestGetLowerNonceAgreesBothSides(t *testing.T) {
	a := &Task{myNonce: []byte{1, 2, 3}, otherNonce: []byte{1, 2, 9}}
	b := &Task{myNonce: []byte{1, 2, 9}, otherNonce: []byte{1, 2, 3}}
	if !bytes.Equal(a.GetLowerNonce(), b.GetLowerNonce()) {
		t.Fatalf("GetLowerNonce disagreement: %x vs %x", a.GetLowerNonce(), b.GetLowerNonce())
	}
}

func TestPlanSlotOrderingMatchesProposal(t *testing.T) {
	prop := &protocol.SaProposal{
		ProtocolId: protocol.IKE,
		Transforms: []*protocol.Transform{
			{Type: protocol.TRANSFORM_TYPE_DH, TransformId: uint16(protocol.ECP_256)},
			{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE1, TransformId: uint16(protocol.ML_KEM_768)},
			{Type: protocol.TRANSFORM_TYPE_ADDITIONAL_KE2, TransformId: uint16(protocol.MODP_3072)},
		},
	}
	plan, n := computePlan(prop)
	if n != 3 {
		t.Fatalf("numSlots = %d, want 3", n)
	}
	if plan[0].method != protocol.ECP_256 || plan[1].method != protocol.ML_KEM_768 || plan[2].method != protocol.MODP_3072 {
		t.Fatalf("plan order wrong: %+v", plan[:3])
	}
}
