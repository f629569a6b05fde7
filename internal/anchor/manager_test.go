package anchor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/zhouchenh/go-descriptor"
	"github.com/zhouchenh/trustDNS/internal/dnssec"
)

type stubResolver struct {
	response  *dns.Msg
	err       error
	calls     int
	lastQuery *dns.Msg
}

func (s *stubResolver) Type() descriptor.Type { return descriptor.TypeOfNew(new(*stubResolver)) }
func (s *stubResolver) TypeName() string      { return "stub" }
func (s *stubResolver) Resolve(query *dns.Msg, depth int) (*dns.Msg, error) {
	s.calls++
	s.lastQuery = query.Copy()
	if s.err != nil {
		return nil, s.err
	}
	return s.response.Copy(), nil
}

func keyResponse(keys ...dns.RR) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeDNSKEY)
	msg.Response = true
	msg.Answer = keys
	return msg
}

func newTestManager(clock *fakeClock, upstream *stubResolver, options Options) (*Manager, *dnssec.Store) {
	options.Now = clock.now
	if upstream == nil {
		upstream = &stubResolver{response: keyResponse()}
	}
	trust := dnssec.NewStore()
	return NewManager(upstream, dnssec.Keys{}, trust, options), trust
}

func TestUpdateInitialPublishesValid(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()

	if !m.Update([]dns.RR{signingKey(keyOnePublic)}, true) {
		t.Fatalf("expected the initial key to be published")
	}
	anchors := m.Anchors()
	if len(anchors) != 1 || anchors[0].State != StateValid {
		t.Fatalf("expected one Valid anchor, got %+v", anchors)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("expected 1 installed trust anchor, got %d", len(got))
	}
}

func TestUpdateNilObservation(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)

	if m.Update(nil, false) {
		t.Fatalf("a nil observation must not publish")
	}
	if anchors := m.Anchors(); len(anchors) != 1 || anchors[0].State != StateValid {
		t.Fatalf("a nil observation must not touch the key set, got %+v", anchors)
	}
}

func TestUpdateSkipsEmptyPayloads(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{})
	defer m.Close()

	hollowKey := signingKey("")
	hollowDigest := signingKey(keyOnePublic).ToDS(dns.SHA256)
	hollowDigest.Digest = ""
	if m.Update([]dns.RR{hollowKey, hollowDigest}, true) {
		t.Fatalf("records without key material must not be tracked")
	}
	if got := m.Anchors(); len(got) != 0 {
		t.Fatalf("expected empty key set, got %+v", got)
	}
}

func TestUpdateMissingRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)

	// The old key disappears while a successor shows up.
	if !m.Update([]dns.RR{signingKey(keyTwoPublic)}, false) {
		t.Fatalf("a Missing key still anchors validation")
	}
	byState := anchorStates(m)
	if byState[StateMissing] != 1 || byState[StateAddPend] != 1 {
		t.Fatalf("expected one Missing and one AddPend anchor, got %v", byState)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("only the Missing key is installable, got %d anchors", len(got))
	}

	// The old key comes back before its hold-down runs out.
	m.Update([]dns.RR{signingKey(keyOnePublic), signingKey(keyTwoPublic)}, false)
	byState = anchorStates(m)
	if byState[StateValid] != 1 || byState[StateMissing] != 0 {
		t.Fatalf("a reappearing key must return to Valid, got %v", byState)
	}
}

func TestUpdateRevokedKeyLifecycle(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)

	if m.Update([]dns.RR{revokedKey(keyOnePublic)}, false) {
		t.Fatalf("revoking the only key must drain the published set")
	}
	if got := anchorStates(m); got[StateRevoked] != 1 {
		t.Fatalf("expected one Revoked anchor, got %v", got)
	}
	if got := trust.Anchors(); len(got) != 0 {
		t.Fatalf("a revoked key must not be installed, got %d anchors", len(got))
	}

	clock.advance(DefaultHoldDown)
	m.Update([]dns.RR{revokedKey(keyOnePublic)}, false)
	if got := anchorStates(m); got[StateRemoved] != 1 {
		t.Fatalf("expected one Removed anchor after the remove hold-down, got %v", got)
	}
}

func TestUpdateKeepRemovedBudget(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{KeepRemoved: 1})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)
	m.Update([]dns.RR{revokedKey(keyOnePublic)}, false)
	clock.advance(DefaultHoldDown)
	m.Update([]dns.RR{revokedKey(keyOnePublic)}, false)

	// The removed key vanishes from responses but stays on the books.
	m.Update([]dns.RR{signingKey(keyTwoPublic)}, false)
	if got := anchorStates(m); got[StateRemoved] != 1 {
		t.Fatalf("one Removed anchor must be retained for audit, got %v", got)
	}
}

func TestUpdateRemovedDroppedWithoutBudget(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)
	m.Update([]dns.RR{revokedKey(keyOnePublic)}, false)
	clock.advance(DefaultHoldDown)
	m.Update([]dns.RR{revokedKey(keyOnePublic)}, false)

	m.Update([]dns.RR{signingKey(keyTwoPublic)}, false)
	if got := anchorStates(m); got[StateRemoved] != 0 {
		t.Fatalf("with keepRemoved 0 a Removed anchor is dropped, got %v", got)
	}
}

func TestConfigureRequiresPath(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{})
	defer m.Close()

	if err := m.Configure("", false); !errors.Is(err, ErrNoKeyFile) {
		t.Fatalf("expected ErrNoKeyFile, got %v", err)
	}
}

func TestConfigureLoadsExistingFile(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()

	key := signingKey(keyOnePublic)
	ks := NewKeySet()
	ks.add(&Anchor{RR: key, KeyTag: key.KeyTag(), State: StateValid})
	path := filepath.Join(t.TempDir(), "root.keys")
	if err := WriteFile(ks, path); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := m.Configure(path, false); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if got := m.ManagedFile(); got != path {
		t.Fatalf("expected managed file %q, got %q", path, got)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("expected the loaded anchor to be published, got %d", len(got))
	}

	// Re-pointing at the already active file is a no-op.
	if err := m.Configure(path, false); err != nil {
		t.Fatalf("reconfigure failed: %v", err)
	}
}

func TestConfigureUnmanaged(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()

	key := signingKey(keyOnePublic)
	ks := NewKeySet()
	ks.add(&Anchor{RR: key, KeyTag: key.KeyTag(), State: StateValid})
	path := filepath.Join(t.TempDir(), "root.keys")
	if err := WriteFile(ks, path); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := m.Configure(path, true); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if got := m.ManagedFile(); got != "" {
		t.Fatalf("unmanaged mode must not track a managed file, got %q", got)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("expected the loaded anchor to be published, got %d", len(got))
	}

	// Fully unmanaged, no file at all.
	if err := m.Configure("", true); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
}

func TestConfigureBootstrapFailureRemediation(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{
		Bootstrap: Bootstrapper{URL: "https://127.0.0.1:1/root-anchors.xml", Timeout: time.Second},
	})
	defer m.Close()

	path := filepath.Join(t.TempDir(), "root.keys")
	err := m.Configure(path, false)
	if err == nil {
		t.Fatalf("expected bootstrap failure")
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("remediation must name the keyset file, got %q", err)
	}
	if !strings.Contains(err.Error(), "iana.org/dnssec/files") {
		t.Fatalf("remediation must point at the out-of-band signature, got %q", err)
	}
}

func TestUpdatePersistsManagedFile(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(clock, nil, Options{})
	defer m.Close()

	key := signingKey(keyOnePublic)
	ks := NewKeySet()
	ks.add(&Anchor{RR: key, KeyTag: key.KeyTag(), State: StateValid})
	path := filepath.Join(t.TempDir(), "root.keys")
	if err := WriteFile(ks, path); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := m.Configure(path, false); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	m.Update([]dns.RR{signingKey(keyOnePublic), signingKey(keyTwoPublic)}, false)

	loaded, err := ReadFile(dnssec.Keys{}, path)
	if err != nil {
		t.Fatalf("readback failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 persisted anchors, got %d", loaded.Len())
	}
}

func TestAddStaticAnchor(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()

	err := m.Add(". 172800 IN DS 20326 8 2 E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	anchors := m.Anchors()
	if len(anchors) != 1 || anchors[0].State != StateValid {
		t.Fatalf("a static anchor is Valid immediately, got %+v", anchors)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("expected the static anchor to be published, got %d", len(got))
	}

	if err := m.Add("www.example. 300 IN A 192.0.2.1"); !errors.Is(err, ErrNotAnchorRecord) {
		t.Fatalf("expected ErrNotAnchorRecord, got %v", err)
	}
	if err := m.Add("not a record"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSetInsecure(t *testing.T) {
	clock := newFakeClock()
	m, trust := newTestManager(clock, nil, Options{})
	defer m.Close()

	m.SetInsecure([]string{"Example.COM", ""})
	if !trust.IsInsecure("www.example.com.") {
		t.Fatalf("expected www.example.com. to fall under the negative anchor")
	}
	if trust.IsInsecure("example.net.") {
		t.Fatalf("example.net. is not covered by any negative anchor")
	}

	m.SetInsecure(nil)
	if trust.IsInsecure("www.example.com.") {
		t.Fatalf("clearing the negative anchors must lift the exemption")
	}
}

func TestRefreshInstallsObservedKeys(t *testing.T) {
	clock := newFakeClock()
	upstream := &stubResolver{response: keyResponse(signingKey(keyOnePublic))}
	m, trust := newTestManager(clock, upstream, Options{})
	defer m.Close()

	m.Refresh(false, true)

	if upstream.calls != 1 {
		t.Fatalf("expected one upstream query, got %d", upstream.calls)
	}
	if got := trust.Anchors(); len(got) != 1 {
		t.Fatalf("expected 1 published anchor, got %d", len(got))
	}

	query := upstream.lastQuery
	if len(query.Question) != 1 || query.Question[0].Name != "." || query.Question[0].Qtype != dns.TypeDNSKEY {
		t.Fatalf("unexpected refresh question: %+v", query.Question)
	}
	opt := query.IsEdns0()
	if opt == nil || !opt.Do() {
		t.Fatalf("refresh queries must request DNSSEC records")
	}
	bypass := false
	for _, option := range opt.Option {
		if local, ok := option.(*dns.EDNS0_LOCAL); ok && local.Code == cacheBypassOptionCode {
			bypass = true
		}
	}
	if !bypass {
		t.Fatalf("refresh queries must bypass resolver caches")
	}
}

func TestRefreshFailureKeepsKeySet(t *testing.T) {
	clock := newFakeClock()
	upstream := &stubResolver{err: errors.New("upstream unreachable")}
	m, _ := newTestManager(clock, upstream, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)

	m.Refresh(false, false)

	if anchors := m.Anchors(); len(anchors) != 1 || anchors[0].State != StateValid {
		t.Fatalf("a failed refresh must not touch the key set, got %+v", anchors)
	}
}

func TestRefreshFailureRcode(t *testing.T) {
	clock := newFakeClock()
	response := keyResponse()
	response.Rcode = dns.RcodeServerFailure
	upstream := &stubResolver{response: response}
	m, _ := newTestManager(clock, upstream, Options{})
	defer m.Close()
	m.Update([]dns.RR{signingKey(keyOnePublic)}, true)

	m.Refresh(false, false)

	if anchors := m.Anchors(); len(anchors) != 1 || anchors[0].State != StateValid {
		t.Fatalf("a SERVFAIL refresh must not touch the key set, got %+v", anchors)
	}
}

func TestRefreshPrimesRootServers(t *testing.T) {
	clock := newFakeClock()
	upstream := &stubResolver{response: keyResponse(signingKey(keyOnePublic))}
	m, _ := newTestManager(clock, upstream, Options{})
	defer m.Close()

	m.Refresh(true, true)

	if upstream.calls != 2 {
		t.Fatalf("a priming refresh issues the key query plus the NS priming query, got %d", upstream.calls)
	}
	if got := upstream.lastQuery.Question[0].Qtype; got != dns.TypeNS {
		t.Fatalf("the priming query asks for the root NS set, got %s", dns.TypeToString[got])
	}
}

func anchorStates(m *Manager) map[State]int {
	states := make(map[State]int)
	for _, ta := range m.Anchors() {
		states[ta.State]++
	}
	return states
}
