package dnssec

import (
	"strings"
	"sync"

	"github.com/miekg/dns"
	"github.com/zhouchenh/trustDNS/internal/common"
)

// Store is the validation engine's trust anchor storage: a positive store of
// keys accepted as chain-of-trust starting points and a negative store of
// domains provably operated without DNSSEC.
type Store struct {
	mutex    sync.RWMutex
	positive []dns.RR
	negative []string
}

func NewStore() *Store {
	return &Store{}
}

// AddPositive installs one trust anchor. Only DNSKEY and DS records can
// anchor a chain of trust.
func (s *Store) AddPositive(rr dns.RR) error {
	switch rr.(type) {
	case *dns.DNSKEY, *dns.DS:
	default:
		return UnsupportedAnchorError(dns.TypeToString[rr.Header().Rrtype])
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.positive = append(s.positive, dns.Copy(rr))
	return nil
}

// ClearPositive drops every installed trust anchor.
func (s *Store) ClearPositive() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.positive = nil
}

// SetNegative atomically replaces the negative trust anchor list.
func (s *Store) SetNegative(domains []string) {
	canonical := make([]string, 0, len(domains))
	for _, d := range domains {
		if c := common.CanonicalName(d); c != "" {
			canonical = append(canonical, c)
		}
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.negative = canonical
}

// Anchors returns a snapshot of the installed positive anchors.
func (s *Store) Anchors() []dns.RR {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]dns.RR, 0, len(s.positive))
	for _, rr := range s.positive {
		out = append(out, dns.Copy(rr))
	}
	return out
}

// IsInsecure reports whether name falls under a negative trust anchor, in
// which case validation must treat it as provably insecure.
func (s *Store) IsInsecure(name string) bool {
	canonical := common.CanonicalName(name)
	if canonical == "" {
		return false
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, domain := range s.negative {
		if canonical == domain || strings.HasSuffix(canonical, "."+domain) || domain == "." {
			return true
		}
	}
	return false
}
