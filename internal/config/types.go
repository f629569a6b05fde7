package config

import (
	"strings"
	"time"

	"github.com/zhouchenh/go-descriptor"
	"github.com/zhouchenh/trustDNS/internal/anchor"
	"github.com/zhouchenh/trustDNS/pkg/upstream/resolver"
)

// Config is the loaded configuration surface: logging, the resolution
// collaborator used for root key refreshes, and the trust anchor settings.
type Config struct {
	LogLevel     string
	LogTimestamp bool
	Upstream     resolver.Resolver
	Anchors      *TrustAnchors
}

// TrustAnchors configures the trust anchor manager.
type TrustAnchors struct {
	ManagedFile     string
	Unmanaged       bool
	HoldDownTime    time.Duration
	KeepRemoved     int
	RefreshOverride time.Duration
	BootstrapURL    string
	BootstrapCA     string
	Socks5Proxy     string
	Socks5Username  string
	Socks5Password  string
	StaticAnchors   []string
	InsecureDomains []string
}

var (
	typeOfConfig       = descriptor.TypeOfNew(new(*Config))
	typeOfTrustAnchors = descriptor.TypeOfNew(new(*TrustAnchors))
)

func Type() descriptor.Type {
	return typeOfConfig
}

var convertibleKindDuration = descriptor.AssignableKinds{
	descriptor.ConvertibleKind{
		Kind: descriptor.KindFloat64,
		ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
			v := time.Duration(original.(float64)) * time.Millisecond
			if v <= 0 {
				return nil, false
			}
			return v, true
		},
	},
	descriptor.ConvertibleKind{
		Kind: descriptor.KindString,
		ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
			v, err := time.ParseDuration(strings.TrimSpace(original.(string)))
			if err != nil || v <= 0 {
				return nil, false
			}
			return v, true
		},
	},
}

var convertibleKindStringSlice = descriptor.ConvertibleKind{
	Kind: descriptor.KindSlice,
	ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
		rawList, ok := original.([]interface{})
		if !ok {
			return
		}
		var values []string
		for _, item := range rawList {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				values = append(values, s)
			}
		}
		return values, true
	},
}

func defaultTrustAnchors() *TrustAnchors {
	return &TrustAnchors{
		HoldDownTime: anchor.DefaultHoldDown,
		BootstrapURL: anchor.DefaultBootstrapURL,
		BootstrapCA:  anchor.DefaultBootstrapCA,
	}
}

func trustAnchorsDescriptor() descriptor.Describable {
	return &descriptor.Descriptor{
		Type: typeOfTrustAnchors,
		Filler: descriptor.Fillers{
			descriptor.ObjectFiller{
				ValueSource: descriptor.DefaultValue{Value: defaultTrustAnchors()},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"ManagedFile"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"managedFile"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Unmanaged"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"unmanaged"},
					AssignableKind: descriptor.KindBool,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"HoldDownTime"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"holdDownTime"},
					AssignableKind: convertibleKindDuration,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"KeepRemoved"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"keepRemoved"},
					AssignableKind: descriptor.ConvertibleKind{
						Kind: descriptor.KindFloat64,
						ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
							num, ok := original.(float64)
							if !ok {
								return
							}
							i := int(num)
							if i < 0 {
								return nil, false
							}
							return i, true
						},
					},
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"RefreshOverride"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"refreshTimeOverride"},
					AssignableKind: convertibleKindDuration,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"BootstrapURL"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"bootstrapURL"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"BootstrapCA"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"bootstrapCA"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Socks5Proxy"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"socks5Proxy"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Socks5Username"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"socks5Username"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Socks5Password"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"socks5Password"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"StaticAnchors"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"staticAnchors"},
					AssignableKind: convertibleKindStringSlice,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"InsecureDomains"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"insecureDomains"},
					AssignableKind: convertibleKindStringSlice,
				},
			},
		},
	}
}

// Descriptor describes the top level configuration document.
func Descriptor() descriptor.Describable {
	return &descriptor.Descriptor{
		Type: typeOfConfig,
		Filler: descriptor.Fillers{
			descriptor.ObjectFiller{
				ValueSource: descriptor.DefaultValue{Value: &Config{
					LogLevel:     "info",
					LogTimestamp: true,
				}},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"LogLevel"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"logLevel"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"LogTimestamp"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"logTimestamp"},
					AssignableKind: descriptor.KindBool,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Upstream"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"resolver"},
					AssignableKind: descriptor.AssignmentFunction(func(original interface{}) (object interface{}, ok bool) {
						m, ok := original.(map[string]interface{})
						if !ok {
							return nil, false
						}
						typeName, _ := m["type"].(string)
						if typeName == "" {
							typeName = "rootNameServer"
						}
						describable, ok := resolver.GetResolverDescriptorByTypeName(typeName)
						if !ok {
							return nil, false
						}
						raw, s, f := describable.Describe(original)
						if s < 1 || f > 0 {
							return nil, false
						}
						r, ok := raw.(resolver.Resolver)
						return r, ok
					}),
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Anchors"},
				ValueSource: descriptor.ValueSources{
					descriptor.ObjectAtPath{
						ObjectPath: descriptor.Path{"trustAnchors"},
						AssignableKind: descriptor.AssignmentFunction(func(original interface{}) (object interface{}, ok bool) {
							raw, s, f := trustAnchorsDescriptor().Describe(original)
							if s < 1 || f > 0 {
								return nil, false
							}
							anchors, ok := raw.(*TrustAnchors)
							return anchors, ok
						}),
					},
					descriptor.DefaultValue{Value: defaultTrustAnchors()},
				},
			},
		},
	}
}
