package anchor

import (
	"time"

	"github.com/miekg/dns"
)

// State is the RFC 5011 lifecycle state of a tracked trust anchor.
type State int

const (
	StateStart State = iota
	StateAddPend
	StateValid
	StateMissing
	StateRevoked
	StateRemoved
)

var stateNames = [...]string{
	StateStart:   "Start",
	StateAddPend: "AddPend",
	StateValid:   "Valid",
	StateMissing: "Missing",
	StateRevoked: "Revoked",
	StateRemoved: "Removed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// ParseState maps a persisted state name back onto a State.
func ParseState(name string) (State, bool) {
	for state, str := range stateNames {
		if str == name {
			return State(state), true
		}
	}
	return StateStart, false
}

// HasTimer reports whether the state carries a hold-down timer. This is the
// data model invariant: a timer is present iff the state is one of AddPend,
// Revoked or Missing.
func (s State) HasTimer() bool {
	return s == StateAddPend || s == StateRevoked || s == StateMissing
}

// Keying abstracts the DNSSEC key primitives consumed by the matcher and the
// state machine, so any conformant cryptographic backend can be substituted.
type Keying interface {
	KeyEqual(a, b *dns.DNSKEY) bool
	KeyTag(rr dns.RR) uint16
	IsKeySigningKey(k *dns.DNSKEY) bool
	IsRevoked(k *dns.DNSKEY) bool
}

// TrustStores is the validation engine surface the manager publishes to:
// a positive store of live anchors and a negative store of provably
// insecure domains.
type TrustStores interface {
	AddPositive(rr dns.RR) error
	ClearPositive()
	SetNegative(domains []string)
}

// Anchor is one tracked trust anchor: the key or digest record itself plus
// its rollover state and hold-down timer.
type Anchor struct {
	RR     dns.RR // *dns.DNSKEY or *dns.DS
	KeyTag uint16
	State  State
	Timer  *time.Time
}

func (a *Anchor) Name() string {
	return a.RR.Header().Name
}

func (a *Anchor) Rrtype() uint16 {
	return a.RR.Header().Rrtype
}

func (a *Anchor) TTL() uint32 {
	return a.RR.Header().Ttl
}

func (a *Anchor) setTimer(t time.Time) {
	a.Timer = &t
}

func (a *Anchor) clearTimer() {
	a.Timer = nil
}

func (a *Anchor) timerElapsed(now time.Time) bool {
	return a.Timer != nil && !now.Before(*a.Timer)
}

// Live reports whether the anchor may be used as a trust anchor right now.
// Per RFC 5011 §4.2 only Valid and Missing keys are eligible.
func (a *Anchor) Live() bool {
	return a.State == StateValid || a.State == StateMissing
}

// KeySet is an ordered collection of anchors, unique under the matcher
// identity rule.
type KeySet struct {
	anchors []*Anchor
}

func NewKeySet() *KeySet {
	return &KeySet{}
}

func (ks *KeySet) Len() int {
	return len(ks.anchors)
}

// Anchors exposes the underlying slice; callers must not reorder it.
func (ks *KeySet) Anchors() []*Anchor {
	return ks.anchors
}

func (ks *KeySet) add(a *Anchor) {
	ks.anchors = append(ks.anchors, a)
}

func (ks *KeySet) removeAt(i int) {
	ks.anchors = append(ks.anchors[:i], ks.anchors[i+1:]...)
}

// MinTTL returns the smallest TTL across tracked anchors, or zero for an
// empty set.
func (ks *KeySet) MinTTL() time.Duration {
	var min uint32
	for i, a := range ks.anchors {
		if ttl := a.TTL(); i == 0 || ttl < min {
			min = ttl
		}
	}
	return time.Duration(min) * time.Second
}
