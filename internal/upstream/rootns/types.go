package rootns

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/txthinking/socks5"
	"github.com/zhouchenh/go-descriptor"
	"github.com/zhouchenh/trustDNS/pkg/upstream/resolver"
)

// Client queries the root name servers directly. Queries go out over UDP
// with a TCP retry on truncation; a whole-response failure rotates to the
// next server in the hint set.
type Client struct {
	Servers        []Server
	Port           uint16
	QueryTimeout   time.Duration
	Retries        int
	PreferIPv6     bool
	SendThrough    net.IP
	Socks5Proxy    string
	Socks5Username string
	Socks5Password string

	udpClient *client
	tcpClient *client
	initOnce  sync.Once
	rotation  uint32
}

type client struct {
	dialFunc     func(network, address string) (conn net.Conn, err error)
	socks5Client *socks5.Client
	*dns.Client
}

var typeOfClient = descriptor.TypeOfNew(new(*Client))

var defaultClientConfig = &Client{
	Servers:      DefaultServers(),
	Port:         53,
	QueryTimeout: 3 * time.Second,
	Retries:      2,
	PreferIPv6:   false,
}

func (c *Client) Type() descriptor.Type {
	return typeOfClient
}

func (c *Client) TypeName() string {
	return "rootNameServer"
}

func (c *Client) Resolve(query *dns.Msg, depth int) (*dns.Msg, error) {
	if err := resolver.QueryCheck(query); err != nil {
		return nil, err
	}
	if depth < 0 {
		return nil, resolver.ErrLoopDetected
	}
	c.initOnce.Do(c.initClients)

	addresses := c.addressRotation()
	if len(addresses) == 0 {
		return nil, ErrNoRootServers
	}
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		for _, ip := range addresses {
			target := net.JoinHostPort(ip.String(), strconv.Itoa(int(c.Port)))
			msg, err := c.exchange(query, target, c.udpClient)
			if err != nil {
				lastErr = err
				continue
			}
			if msg.Truncated {
				tcpMsg, tcpErr := c.exchange(query, target, c.tcpClient)
				if tcpErr != nil {
					// The truncated UDP answer is still an answer.
					return msg, nil
				}
				return tcpMsg, nil
			}
			return msg, nil
		}
	}
	if lastErr == nil {
		lastErr = ErrAllServersFailed
	}
	return nil, lastErr
}

func (c *Client) exchange(query *dns.Msg, address string, queryClient *client) (*dns.Msg, error) {
	connection, err := queryClient.Dial(address)
	if err != nil {
		return nil, err
	}
	defer connection.Close()
	_ = connection.SetDeadline(time.Now().Add(c.QueryTimeout))
	if err := connection.WriteMsg(query); err != nil {
		return nil, err
	}
	return connection.ReadMsg()
}

// addressRotation flattens the hint set into one address list, rotating
// the starting server on every call so a single slow root does not absorb
// every refresh.
func (c *Client) addressRotation() []net.IP {
	total := len(c.Servers)
	if total == 0 {
		return nil
	}
	start := int(atomic.AddUint32(&c.rotation, 1)) % total
	var out []net.IP
	for i := 0; i < total; i++ {
		server := c.Servers[(start+i)%total]
		out = append(out, orderAddresses(server.Addresses, c.PreferIPv6)...)
	}
	return out
}

func orderAddresses(addresses []net.IP, preferIPv6 bool) []net.IP {
	var v4, v6 []net.IP
	for _, ip := range addresses {
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			v4 = append(v4, ip)
		} else {
			v6 = append(v6, ip)
		}
	}
	if preferIPv6 {
		return append(v6, v4...)
	}
	return append(v4, v6...)
}

func (c *Client) initClients() {
	c.udpClient = c.createClientForProtocol("udp")
	c.tcpClient = c.createClientForProtocol("tcp")
}

func (c *Client) createClientForProtocol(protocol string) *client {
	var localAddr net.Addr
	switch protocol {
	case "tcp":
		localAddr = &net.TCPAddr{IP: c.SendThrough}
	case "udp":
		localAddr = &net.UDPAddr{IP: c.SendThrough}
	}
	queryClient := &client{
		Client: &dns.Client{
			Net:     protocol,
			UDPSize: ednsBufferSize,
			Dialer: &net.Dialer{
				LocalAddr: localAddr,
				Timeout:   c.QueryTimeout,
			},
		},
	}
	if c.Socks5Proxy != "" {
		queryClient.socks5Client = &socks5.Client{
			Server:     c.Socks5Proxy,
			UserName:   c.Socks5Username,
			Password:   c.Socks5Password,
			TCPTimeout: socks5Timeout(c.QueryTimeout),
			UDPTimeout: socks5Timeout(c.QueryTimeout),
		}
		queryClient.dialFunc = func(network, address string) (net.Conn, error) {
			return queryClient.socks5Client.DialWithLocalAddr(network, queryClient.Dialer.LocalAddr.String(), address, nil)
		}
	} else {
		queryClient.dialFunc = queryClient.Dialer.Dial
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
	conn = new(dns.Conn)
	conn.Conn, err = c.dialFunc(network, address)
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
		Type: typeOfClient,
		Filler: descriptor.Fillers{
			descriptor.ObjectFiller{
				ValueSource: descriptor.DefaultValue{Value: defaultClientConfig},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Servers"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"rootServers"},
					AssignableKind: descriptor.AssignmentFunction(func(original interface{}) (object interface{}, ok bool) {
						rawList, ok := original.([]interface{})
						if !ok {
							return nil, false
						}
						var servers []Server
						for _, item := range rawList {
							m, ok := item.(map[string]interface{})
							if !ok {
								continue
							}
							host, _ := m["host"].(string)
							addressesRaw, _ := m["addresses"].([]interface{})
							var addresses []net.IP
							for _, a := range addressesRaw {
								if s, ok := a.(string); ok {
									if ip := net.ParseIP(strings.TrimSpace(s)); ip != nil {
										addresses = append(addresses, ip)
									}
								}
							}
							if host == "" && len(addresses) == 0 {
								continue
							}
							servers = append(servers, Server{Host: host, Addresses: addresses})
						}
						if len(servers) == 0 {
							return nil, false
						}
						return servers, true
					}),
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
				ObjectPath: descriptor.Path{"QueryTimeout"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"queryTimeout"},
					AssignableKind: convertibleKindDuration,
				},
			},
			descriptor.ObjectFiller{
				ObjectPath: descriptor.Path{"Retries"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath: descriptor.Path{"retries"},
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
				ObjectPath: descriptor.Path{"PreferIPv6"},
				ValueSource: descriptor.ObjectAtPath{
					ObjectPath:     descriptor.Path{"preferIPv6"},
					AssignableKind: descriptor.KindBool,
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
