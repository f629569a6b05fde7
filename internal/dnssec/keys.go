package dnssec

import (
	"github.com/miekg/dns"
)

// Keys implements the key primitives the trust anchor state machine relies
// on, backed by miekg/dns. Equality deliberately ignores the flags field:
// per RFC 5011 a key that reappears with the REVOKE bit set must still be
// recognized as the same tracked key.
type Keys struct{}

func (Keys) KeyEqual(a, b *dns.DNSKEY) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Algorithm == b.Algorithm &&
		a.Protocol == b.Protocol &&
		a.PublicKey == b.PublicKey
}

// KeyTag derives the key tag of a DNSKEY, or echoes the referenced tag of
// a DS. Other record types yield 0.
func (Keys) KeyTag(rr dns.RR) uint16 {
	switch rec := rr.(type) {
	case *dns.DNSKEY:
		return rec.KeyTag()
	case *dns.DS:
		return rec.KeyTag
	default:
		return 0
	}
}

func (Keys) IsKeySigningKey(k *dns.DNSKEY) bool {
	return k != nil && k.Flags&dns.SEP != 0
}

func (Keys) IsRevoked(k *dns.DNSKEY) bool {
	return k != nil && k.Flags&dns.REVOKE != 0
}
