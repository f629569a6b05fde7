package anchor

import (
	"strings"

	"github.com/miekg/dns"
)

// Find correlates an observed record with a tracked anchor. Matching
// requires the same owner name; within an owner the rules are, in order:
// DNSKEY against DNSKEY by key material, DS against DS by exact payload,
// an observed DNSKEY against a tracked DS by key tag, and an observed DS
// against a tracked DNSKEY by key tag.
//
// A DNSKEY that matches a tracked DS replaces it in the set and inherits
// the DS's state, timer and key tag: once the key itself has been seen the
// digest placeholder is no longer needed.
func (ks *KeySet) Find(keying Keying, rr dns.RR) (*Anchor, bool) {
	owner := dns.CanonicalName(rr.Header().Name)
	for i, ta := range ks.anchors {
		if dns.CanonicalName(ta.Name()) != owner {
			continue
		}
		switch candidate := rr.(type) {
		case *dns.DNSKEY:
			switch tracked := ta.RR.(type) {
			case *dns.DNSKEY:
				if keying.KeyEqual(candidate, tracked) {
					return ta, true
				}
			case *dns.DS:
				if keying.KeyTag(candidate) == tracked.KeyTag {
					superseded := &Anchor{
						RR:     candidate,
						KeyTag: ta.KeyTag,
						State:  ta.State,
						Timer:  ta.Timer,
					}
					ks.anchors[i] = superseded
					return superseded, true
				}
			}
		case *dns.DS:
			switch tracked := ta.RR.(type) {
			case *dns.DS:
				if dsPayloadEqual(candidate, tracked) {
					return ta, true
				}
			case *dns.DNSKEY:
				if candidate.KeyTag == keying.KeyTag(tracked) {
					return ta, true
				}
			}
		}
	}
	return nil, false
}

// contains reports whether any record in the observed set corresponds to
// the tracked anchor. This is the read-only converse of Find, used to
// decide which tracked anchors went missing from a refresh response.
func contains(keying Keying, observed []dns.RR, ta *Anchor) bool {
	owner := dns.CanonicalName(ta.Name())
	for _, rr := range observed {
		if dns.CanonicalName(rr.Header().Name) != owner {
			continue
		}
		switch candidate := rr.(type) {
		case *dns.DNSKEY:
			switch tracked := ta.RR.(type) {
			case *dns.DNSKEY:
				if keying.KeyEqual(candidate, tracked) {
					return true
				}
			case *dns.DS:
				if keying.KeyTag(candidate) == tracked.KeyTag {
					return true
				}
			}
		case *dns.DS:
			switch tracked := ta.RR.(type) {
			case *dns.DS:
				if dsPayloadEqual(candidate, tracked) {
					return true
				}
			case *dns.DNSKEY:
				if candidate.KeyTag == keying.KeyTag(tracked) {
					return true
				}
			}
		}
	}
	return false
}

func dsPayloadEqual(a, b *dns.DS) bool {
	return a.KeyTag == b.KeyTag &&
		a.Algorithm == b.Algorithm &&
		a.DigestType == b.DigestType &&
		strings.EqualFold(a.Digest, b.Digest)
}
