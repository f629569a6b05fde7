package forwarder

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/txthinking/socks5"
	"github.com/zhouchenh/go-descriptor"
	"github.com/zhouchenh/trustDNS/pkg/upstream/resolver"
)

// Forwarder sends queries to one fixed recursive resolver. Use it when the
// root keys should be fetched through an existing validating resolver on
// the host instead of straight from the root servers.
type Forwarder struct {
	Address        net.IP
	Port           uint16
	Protocol       string
	QueryTimeout   time.Duration
	TlsServerName  string
	SendThrough    net.IP
	Socks5Proxy    string
	Socks5Username string
	Socks5Password string

	queryClient       *client
	tcpFallbackClient *client
	initOnce          sync.Once
	tcpFallbackOnce   sync.Once
}

type client struct {
	dialFunc     func(network, address string) (conn net.Conn, err error)
	dialTLSFunc  func(network, address string) (conn net.Conn, err error)
	socks5Client *socks5.Client
	*dns.Client
}

var typeOfForwarder = descriptor.TypeOfNew(new(*Forwarder))

func (f *Forwarder) Type() descriptor.Type {
	return typeOfForwarder
}

func (f *Forwarder) TypeName() string {
	return "nameServer"
}

func (f *Forwarder) Resolve(query *dns.Msg, depth int) (*dns.Msg, error) {
	if err := resolver.QueryCheck(query); err != nil {
		return nil, err
	}
	if depth < 0 {
		return nil, resolver.ErrLoopDetected
	}
	if f.Address == nil {
		return nil, ErrNoServerAddress
	}
	f.initOnce.Do(f.initClient)

	address := net.JoinHostPort(f.Address.String(), strconv.Itoa(int(f.Port)))
	msg, err := f.queryWithProtocol(query, address, f.Protocol)
	if err != nil {
		return nil, err
	}
	if msg.Truncated && f.Protocol == "udp" {
		tcpMsg, tcpErr := f.queryWithProtocol(query, address, "tcp")
		if tcpErr != nil {
			// The truncated UDP answer is still an answer.
			return msg, nil
		}
		return tcpMsg, nil
	}
	return msg, nil
}

func (f *Forwarder) queryWithProtocol(query *dns.Msg, address string, protocol string) (*dns.Msg, error) {
	var queryClient *client
	switch {
	case protocol == f.Protocol:
		queryClient = f.queryClient
	case protocol == "tcp" && f.Protocol == "udp":
		f.tcpFallbackOnce.Do(func() {
			f.tcpFallbackClient = f.createClientForProtocol("tcp")
		})
		queryClient = f.tcpFallbackClient
	default:
		queryClient = f.createClientForProtocol(protocol)
	}

	connection, err := queryClient.Dial(address)
	if err != nil {
		return nil, err
	}
	defer connection.Close()
	_ = connection.SetDeadline(time.Now().Add(f.QueryTimeout))
	if err := connection.WriteMsg(query); err != nil {
		return nil, err
	}
	return connection.ReadMsg()
}

func (f *Forwarder) initClient() {
	f.queryClient = f.createClientForProtocol(f.Protocol)
}

func (f *Forwarder) createClientForProtocol(protocol string) *client {
	var localAddr net.Addr
	switch strings.TrimSuffix(protocol, "-tls") {
	case "tcp":
		localAddr = &net.TCPAddr{IP: f.SendThrough}
	case "udp":
		localAddr = &net.UDPAddr{IP: f.SendThrough}
	}
	queryClient := &client{
		Client: &dns.Client{
			Net:     protocol,
			UDPSize: ednsBufferSize,
			TLSConfig: &tls.Config{
				ServerName: f.TlsServerName,
			},
			Dialer: &net.Dialer{
				LocalAddr: localAddr,
				Timeout:   f.QueryTimeout,
			},
		},
	}
	if f.Socks5Proxy != "" {
		queryClient.socks5Client = &socks5.Client{
			Server:     f.Socks5Proxy,
			UserName:   f.Socks5Username,
			Password:   f.Socks5Password,
			TCPTimeout: socks5Timeout(f.QueryTimeout),
			UDPTimeout: socks5Timeout(f.QueryTimeout),
		}
		queryClient.dialFunc = func(network, address string) (net.Conn, error) {
			return queryClient.socks5Client.DialWithLocalAddr(network, queryClient.Dialer.LocalAddr.String(), address, nil)
		}
		queryClient.dialTLSFunc = func(network, address string) (conn net.Conn, err error) {
			conn, err = queryClient.dialFunc(network, address)
			if err != nil {
				return
			}
			conn = tls.Client(conn, queryClient.TLSConfig)
			return
		}
	} else {
		queryClient.dialFunc = queryClient.Dialer.Dial
		queryClient.dialTLSFunc = func(network, address string) (net.Conn, error) {
			return tls.DialWithDialer(queryClient.Dialer, network, address, queryClient.TLSConfig)
		}
	}
	return queryClient
}

func socks5Timeout(timeout time.Duration) int {
	d := timeout / time.Second
	if d*time.Second < timeout {
		return int(d) + 1
	}
	return int(d)
}

func (c *client) Dial(address string) (conn *dns.Conn, err error) {
	network := c.Net
	if network == "" {
		network = "udp"
	}
	useTLS := strings.HasPrefix(network, "tcp") && strings.HasSuffix(network, "-tls")
	conn = new(dns.Conn)
	if useTLS {
		network = strings.TrimSuffix(network, "-tls")
		conn.Conn, err = c.dialTLSFunc(network, address)
	} else {
		conn.Conn, err = c.dialFunc(network, address)
	}
	if err != nil {
		return nil, err
	}
	conn.UDPSize = c.UDPSize
	return conn, nil
}

const ednsBufferSize = 1232

func init() {
	convertibleKindIP := descriptor.ConvertibleKind{
		Kind: descriptor.KindString,
		ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
			str, ok := original.(string)
			if !ok {
				return
			}
			converted = net.ParseIP(strings.TrimSpace(str))
			ok = converted != nil
			return
		},
	}
	convertibleKindDuration := descriptor.AssignableKinds{
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
	if err := resolver.RegisterResolver(&descriptor.Descriptor{
		Type: typeOfForwarder,
		Filler: descriptor.Fillers{
			descriptor.ObjectFiller{
				ValueSource: descriptor.DefaultValue{Value: &Forwarder{
					Port:         53,
					Protocol:     "udp",
					QueryTimeout: 3 * time.Second,
				}},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Address"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"address"},
					AssignableKind: convertibleKindIP,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Port"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"port"},
					AssignableKind: descriptor.ConvertibleKind{
						Kind: descriptor.KindFloat64,
						ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
							num, ok := original.(float64)
							if !ok {
								return
							}
							i := int(num)
							if i < 1 || i > 65535 {
								return nil, false
							}
							return uint16(i), true
						},
					},
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Protocol"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"protocol"},
					AssignableKind: descriptor.ConvertibleKind{
						Kind: descriptor.KindString,
						ConvertFunction: func(original interface{}) (converted interface{}, ok bool) {
							str, ok := original.(string)
							if !ok {
								return
							}
							switch str {
							case "udp", "tcp", "tcp-tls":
								return str, true
							}
							return nil, false
						},
					},
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"QueryTimeout"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"queryTimeout"},
					AssignableKind: convertibleKindDuration,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"TlsServerName"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"tlsServerName"},
					AssignableKind: descriptor.KindString,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"SendThrough"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"sendThrough"},
					AssignableKind: convertibleKindIP,
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
		},
	}); err != nil {
		panic(err)
	}
}
