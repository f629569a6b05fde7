package anchor

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/txthinking/socks5"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

// DefaultBootstrapURL is the standard root anchors distribution point.
const DefaultBootstrapURL = "https://data.iana.org/root-anchors/root-anchors.xml"

// DefaultBootstrapCA is the pinned certificate file the distribution point
// is verified against, resolved relative to the config directory.
const DefaultBootstrapCA = "icann-ca.pem"

const defaultBootstrapTimeout = 30 * time.Second

var (
	ErrNoKeyDigests     = errors.New("anchor: No key digests found in root anchors document")
	ErrBootstrapBadBody = errors.New("anchor: Root anchors document is not parseable XML")
)

// Bootstrapper performs the one-shot pinned-certificate fetch of the root
// anchors document used when no trust anchor exists yet. The document's own
// detached signature is intentionally not verified here; the pinned
// certificate is the only protection, which is why the fetched anchors
// should be checked against an out-of-band source.
type Bootstrapper struct {
	URL            string
	CAPath         string
	Timeout        time.Duration
	Socks5Proxy    string
	Socks5Username string
	Socks5Password string
}

// Fetch downloads and extracts the root anchors, synthesizing one DS-form
// trust anchor per KeyDigest element. It fails when the transfer fails or
// when the document carries no usable digest at all.
func (b *Bootstrapper) Fetch() ([]dns.RR, error) {
	url := b.URL
	if url == "" {
		url = DefaultBootstrapURL
	}
	client, err := b.httpClient()
	if err != nil {
		return nil, err
	}
	response, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("anchor: Fetching %s: %w", url, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anchor: Fetching %s: unexpected status %s", url, response.Status)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("anchor: Reading %s: %w", url, err)
	}
	anchors, err := ParseRootAnchors(body)
	if err != nil {
		return nil, err
	}
	logger.Warning().Str("url", url).
		Msg("root trust anchors bootstrapped over https with a pinned certificate; verify them against the out-of-band signature, see https://www.iana.org/dnssec/files")
	return anchors, nil
}

func (b *Bootstrapper) httpClient() (*http.Client, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultBootstrapTimeout
	}
	tlsConfig := &tls.Config{}
	if b.CAPath != "" {
		pem, err := os.ReadFile(b.CAPath)
		if err != nil {
			return nil, fmt.Errorf("anchor: Reading pinned certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("anchor: No certificate found in %s", b.CAPath)
		}
		tlsConfig.RootCAs = pool
	}
	transport := &http.Transport{TLSClientConfig: tlsConfig}
	if b.Socks5Proxy != "" {
		socksClient := &socks5.Client{
			Server:     b.Socks5Proxy,
			UserName:   b.Socks5Username,
			Password:   b.Socks5Password,
			TCPTimeout: int(timeout / time.Second),
			UDPTimeout: int(timeout / time.Second),
		}
		transport.Dial = func(network, address string) (net.Conn, error) {
			return socksClient.Dial(network, address)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

type keyDigest struct {
	KeyTag     uint16 `xml:"KeyTag"`
	Algorithm  uint8  `xml:"Algorithm"`
	DigestType uint8  `xml:"DigestType"`
	Digest     string `xml:"Digest"`
}

// ParseRootAnchors extracts every KeyDigest element from the root anchors
// XML document and synthesizes a DS record per element. Extraction is
// structural, not schema validating: unrelated elements and unparseable
// digests are skipped.
func ParseRootAnchors(document []byte) ([]dns.RR, error) {
	decoder := xml.NewDecoder(bytes.NewReader(document))
	var anchors []dns.RR
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(anchors) > 0 {
				break
			}
			return nil, ErrBootstrapBadBody
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "KeyDigest" {
			continue
		}
		var digest keyDigest
		if err := decoder.DecodeElement(&digest, &start); err != nil {
			continue
		}
		if digest.Digest == "" {
			continue
		}
		anchors = append(anchors, &dns.DS{
			Hdr: dns.RR_Header{
				Name:   ".",
				Rrtype: dns.TypeDS,
				Class:  dns.ClassINET,
			},
			KeyTag:     digest.KeyTag,
			Algorithm:  digest.Algorithm,
			DigestType: digest.DigestType,
			Digest:     strings.ToLower(strings.TrimSpace(digest.Digest)),
		})
	}
	if len(anchors) == 0 {
		return nil, ErrNoKeyDigests
	}
	return anchors, nil
}
