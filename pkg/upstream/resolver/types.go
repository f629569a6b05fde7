package resolver

import (
	"github.com/miekg/dns"
	"github.com/zhouchenh/go-descriptor"
)

// Resolver is the resolution collaborator: it takes a query message and
// returns the parsed response. Implementations may answer from anywhere
// (network, cache, static data); depth guards against resolution loops.
type Resolver interface {
	Type() descriptor.Type
	TypeName() string
	Resolve(query *dns.Msg, depth int) (*dns.Msg, error)
}

var typeOfResolver = descriptor.TypeOfNew(new(Resolver))

func Type() descriptor.Type {
	return typeOfResolver
}
