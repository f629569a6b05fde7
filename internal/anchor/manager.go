package anchor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/zhouchenh/trustDNS/internal/common"
	"github.com/zhouchenh/trustDNS/internal/logger"
	"github.com/zhouchenh/trustDNS/pkg/upstream/resolver"
	"golang.org/x/sync/singleflight"
)

// DefaultHoldDown is the RFC 5011 add/remove hold-down time.
const DefaultHoldDown = 30 * 24 * time.Hour

const (
	initialRefreshDelay = 10 * time.Second
	defaultQueryDepth   = 64
	ednsBufferSize      = 1232

	// cacheBypassOptionCode tells a caching resolver in the chain to skip
	// its cache for this query. Hold-down arithmetic needs the zone's
	// current keys, not a cached snapshot.
	cacheBypassOptionCode = 0xFDE9
)

// Options is the external configuration surface of the Manager.
type Options struct {
	HoldDown        time.Duration // add/remove hold-down, DefaultHoldDown when zero
	KeepRemoved     int           // Removed entries to retain for audit
	RefreshOverride time.Duration // fixed refresh interval, adaptive when zero
	QueryDepth      int
	Bootstrap       Bootstrapper
	Now             func() time.Time
}

// Manager owns the current trust anchor key set: it applies refresh results
// through the state machine, persists the set when a managed keyset file is
// configured, and publishes the live subset to the validation engine.
type Manager struct {
	mutex           sync.Mutex
	machine         Machine
	keying          Keying
	trust           TrustStores
	upstream        resolver.Resolver
	set             *KeySet
	insecure        []string
	keepRemoved     int
	refreshOverride time.Duration
	filePath        string
	bootstrap       Bootstrapper
	scheduler       *Scheduler
	depth           int
	refreshGroup    singleflight.Group
}

func NewManager(upstream resolver.Resolver, keying Keying, trust TrustStores, options Options) *Manager {
	holdDown := options.HoldDown
	if holdDown <= 0 {
		holdDown = DefaultHoldDown
	}
	depth := options.QueryDepth
	if depth <= 0 {
		depth = defaultQueryDepth
	}
	return &Manager{
		machine:         Machine{Keying: keying, HoldDown: holdDown, Now: options.Now},
		keying:          keying,
		trust:           trust,
		upstream:        upstream,
		set:             NewKeySet(),
		keepRemoved:     options.KeepRemoved,
		refreshOverride: options.RefreshOverride,
		bootstrap:       options.Bootstrap,
		scheduler:       NewScheduler(),
		depth:           depth,
	}
}

// Update runs one evaluation cycle over an observed key set: tracked
// anchors absent from newKeys go through the missing transitions, every
// DNSKEY or DS candidate with a non-empty payload goes through the present
// transitions, the result is persisted when a managed file is configured,
// and the live subset is re-published. It reports whether at least one
// anchor ended up published.
func (m *Manager) Update(newKeys []dns.RR, isInitial bool) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.updateLocked(newKeys, isInitial)
}

func (m *Manager) updateLocked(newKeys []dns.RR, isInitial bool) bool {
	if newKeys == nil {
		return false
	}
	keepBudget := m.keepRemoved
	for i := m.set.Len() - 1; i >= 0; i-- {
		ta := m.set.anchors[i]
		if contains(m.keying, newKeys, ta) {
			continue
		}
		if ta.State == StateRemoved {
			if keepBudget > 0 {
				keepBudget--
				continue
			}
			m.set.removeAt(i)
			continue
		}
		if !m.machine.Missing(ta) {
			m.set.removeAt(i)
		}
	}
	for _, rr := range newKeys {
		switch record := rr.(type) {
		case *dns.DNSKEY:
			if record.PublicKey == "" {
				continue
			}
		case *dns.DS:
			if record.Digest == "" {
				continue
			}
		default:
			continue
		}
		m.machine.Present(m.set, rr, isInitial)
	}
	if m.filePath != "" {
		if err := WriteFile(m.set, m.filePath); err != nil {
			logger.Error().Err(err).Str("file", m.filePath).Msg("failed to persist trust anchors")
		}
	}
	return m.publishLocked()
}

// publishLocked replaces the validation engine's positive trust store with
// the anchors currently eligible for use (Valid or Missing, RFC 5011 §4.2).
func (m *Manager) publishLocked() bool {
	m.trust.ClearPositive()
	published := 0
	for _, ta := range m.set.Anchors() {
		if !ta.Live() {
			continue
		}
		if err := m.trust.AddPositive(ta.RR); err != nil {
			logger.Error().Err(err).Uint16("keytag", ta.KeyTag).Msg("failed to install trust anchor")
			continue
		}
		published++
	}
	if published == 0 {
		logger.Warning().Msg("no usable root trust anchors left; validation outcome now depends on the validator's own policy")
		return false
	}
	logger.Debug().Int("anchors", published).Msg("root trust anchors published")
	return true
}

// Configure points the manager at a managed keyset file, or detaches it in
// unmanaged mode. Any pending refresh is cancelled first so two refresh
// cycles can never overlap. When the managed file does not exist yet the
// initial anchors are bootstrapped and an immediate refresh is planned;
// when it exists and differs from the active file it is loaded, published
// and a short initial refresh delay is armed.
func (m *Manager) Configure(path string, unmanaged bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.scheduler.Cancel()

	if unmanaged {
		m.filePath = ""
		if path == "" {
			return nil
		}
		return m.loadLocked(path)
	}

	if path == "" {
		return ErrNoKeyFile
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return m.bootstrapLocked(path)
	}
	if path == m.filePath {
		return nil
	}
	if err := m.loadLocked(path); err != nil {
		return err
	}
	m.filePath = path
	m.armLocked(initialRefreshDelay, false, false)
	return nil
}

func (m *Manager) loadLocked(path string) error {
	ks, err := ReadFile(m.keying, path)
	if err != nil {
		return err
	}
	m.set = ks
	m.publishLocked()
	return nil
}

func (m *Manager) bootstrapLocked(path string) error {
	anchors, err := m.bootstrap.Fetch()
	if err != nil {
		url := m.bootstrap.URL
		if url == "" {
			url = DefaultBootstrapURL
		}
		return fmt.Errorf("anchor: Failed to bootstrap root trust anchors (%w); fetch %s manually, verify it against the detached signature published at https://www.iana.org/dnssec/files, and install the keys as %s", err, url, path)
	}
	m.filePath = path
	m.updateLocked(anchors, true)
	// The bootstrapped DS anchors are placeholders; query the live root
	// zone for the keys themselves right away, with priming.
	m.armLocked(0, true, true)
	return nil
}

// Add appends one statically trusted anchor, bypassing rollover state
// tracking entirely.
func (m *Manager) Add(keyText string) error {
	rr, err := dns.NewRR(keyText)
	if err != nil {
		return err
	}
	switch rr.(type) {
	case *dns.DNSKEY, *dns.DS:
	default:
		return ErrNotAnchorRecord
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.set.add(&Anchor{RR: rr, KeyTag: m.keying.KeyTag(rr), State: StateValid})
	m.publishLocked()
	return nil
}

// SetInsecure atomically replaces the negative trust anchor list.
func (m *Manager) SetInsecure(domains []string) {
	canonical := make([]string, 0, len(domains))
	for _, domain := range domains {
		if c := common.CanonicalName(domain); c != "" {
			canonical = append(canonical, c)
		}
	}
	m.mutex.Lock()
	m.insecure = canonical
	m.mutex.Unlock()
	m.trust.SetNegative(canonical)
}

// Refresh performs one root key re-query cycle and plans the next one.
// Concurrent callers (the armed timer, an operator) are coalesced into a
// single cycle.
func (m *Manager) Refresh(isPriming, isInitial bool) {
	_, _, _ = m.refreshGroup.Do("root-dnskey", func() (interface{}, error) {
		m.refreshCycle(isPriming, isInitial)
		return nil, nil
	})
}

func (m *Manager) refreshCycle(isPriming, isInitial bool) {
	query := new(dns.Msg)
	query.SetQuestion(".", dns.TypeDNSKEY)
	query.SetEdns0(ednsBufferSize, true)
	setCacheBypass(query)

	response, err := m.upstream.Resolve(query, m.depth)
	failed := false
	var observed []dns.RR
	switch {
	case err != nil:
		failed = true
		logger.Warning().Err(err).Msg("root key refresh failed")
	case response.Rcode != dns.RcodeSuccess:
		failed = true
		logger.Warning().Str("rcode", dns.RcodeToString[response.Rcode]).Msg("root key refresh failed")
	default:
		observed = common.FilterResourceRecords(response.Answer, func(rr dns.RR) bool {
			_, ok := rr.(*dns.DNSKEY)
			return ok
		})
	}

	m.mutex.Lock()
	if !failed {
		m.updateLocked(observed, isInitial)
	}
	interval := m.refreshOverride
	if interval <= 0 {
		interval = nextInterval(m.set.MinTTL(), failed)
	}
	m.armLocked(interval, false, false)
	m.mutex.Unlock()
	logger.Debug().Dur("interval", interval).Msg("next root key refresh planned")

	if isPriming {
		m.primeRoot()
	}
}

func (m *Manager) armLocked(delay time.Duration, isPriming, isInitial bool) {
	m.scheduler.Arm(delay, func() {
		m.Refresh(isPriming, isInitial)
	})
}

func (m *Manager) primeRoot() {
	query := new(dns.Msg)
	query.SetQuestion(".", dns.TypeNS)
	query.SetEdns0(ednsBufferSize, true)
	if _, err := m.upstream.Resolve(query, m.depth); err != nil {
		logger.Debug().Err(err).Msg("root priming query failed")
	}
}

func setCacheBypass(query *dns.Msg) {
	opt := query.IsEdns0()
	opt.Option = append(opt.Option, &dns.EDNS0_LOCAL{
		Code: cacheBypassOptionCode,
		Data: []byte("nocache"),
	})
}

// Anchors returns a snapshot of the tracked key set.
func (m *Manager) Anchors() []Anchor {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]Anchor, 0, m.set.Len())
	for _, ta := range m.set.Anchors() {
		out = append(out, *ta)
	}
	return out
}

// ManagedFile returns the path of the managed keyset file, empty in
// unmanaged mode.
func (m *Manager) ManagedFile() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.filePath
}

// Close cancels any pending refresh.
func (m *Manager) Close() {
	m.scheduler.Cancel()
}
