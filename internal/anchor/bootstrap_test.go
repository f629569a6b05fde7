package anchor

import (
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
)

const rootAnchorsDocument = `<?xml version="1.0" encoding="UTF-8"?>
<TrustAnchor id="380DC50D-484E-40D0-A3AE-68F2B18F61C7" source="http://data.iana.org/root-anchors/root-anchors.xml">
<Zone>.</Zone>
<KeyDigest id="Kjqmt7v" validFrom="2010-07-15T00:00:00+00:00" validUntil="2019-01-11T00:00:00+00:00">
<KeyTag>19036</KeyTag>
<Algorithm>8</Algorithm>
<DigestType>2</DigestType>
<Digest>49AAC11D7B6F6446702E54A1607371607A1A41855200FD2CE1CDDE32F24E8FB5</Digest>
</KeyDigest>
<KeyDigest id="Klajeyz" validFrom="2017-02-02T00:00:00+00:00">
<KeyTag>20326</KeyTag>
<Algorithm>8</Algorithm>
<DigestType>2</DigestType>
<Digest>E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D</Digest>
</KeyDigest>
</TrustAnchor>
`

func TestParseRootAnchors(t *testing.T) {
	anchors, err := ParseRootAnchors([]byte(rootAnchorsDocument))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(anchors) != 2 {
		t.Fatalf("expected 2 anchors, got %d", len(anchors))
	}
	ds, ok := anchors[1].(*dns.DS)
	if !ok {
		t.Fatalf("expected a DS record, got %T", anchors[1])
	}
	if ds.Hdr.Name != "." {
		t.Fatalf("anchors must be rooted at the root zone, got %q", ds.Hdr.Name)
	}
	if ds.KeyTag != 20326 || ds.Algorithm != 8 || ds.DigestType != 2 {
		t.Fatalf("unexpected DS fields: %v", ds)
	}
	if ds.Digest != "e06d44b80b8f1d39a95c0b0d7c65d08458e880409bbc683457104237c7f8ec8d" {
		t.Fatalf("digest must be normalized to lower case, got %q", ds.Digest)
	}
}

func TestParseRootAnchorsNoDigests(t *testing.T) {
	document := `<?xml version="1.0"?><TrustAnchor><Zone>.</Zone></TrustAnchor>`
	if _, err := ParseRootAnchors([]byte(document)); !errors.Is(err, ErrNoKeyDigests) {
		t.Fatalf("expected ErrNoKeyDigests, got %v", err)
	}
}

func TestParseRootAnchorsBadBody(t *testing.T) {
	if _, err := ParseRootAnchors([]byte("<TrustAnchor>")); !errors.Is(err, ErrBootstrapBadBody) {
		t.Fatalf("expected ErrBootstrapBadBody, got %v", err)
	}
}

func TestBootstrapFetchWithPinnedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rootAnchorsDocument))
	}))
	defer server.Close()

	b := &Bootstrapper{URL: server.URL, CAPath: writeServerCertificate(t, server)}
	anchors, err := b.Fetch()
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(anchors) != 2 {
		t.Fatalf("expected 2 anchors, got %d", len(anchors))
	}
}

func TestBootstrapFetchRejectsUnpinnedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rootAnchorsDocument))
	}))
	defer server.Close()

	b := &Bootstrapper{URL: server.URL}
	if _, err := b.Fetch(); err == nil {
		t.Fatalf("a certificate outside the pinned set must be rejected")
	}
}

func TestBootstrapFetchBadStatus(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	b := &Bootstrapper{URL: server.URL, CAPath: writeServerCertificate(t, server)}
	if _, err := b.Fetch(); err == nil {
		t.Fatalf("a non-200 response must fail the bootstrap")
	}
}

func TestBootstrapFetchEmptyDocument(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><TrustAnchor><Zone>.</Zone></TrustAnchor>`))
	}))
	defer server.Close()

	b := &Bootstrapper{URL: server.URL, CAPath: writeServerCertificate(t, server)}
	if _, err := b.Fetch(); !errors.Is(err, ErrNoKeyDigests) {
		t.Fatalf("expected ErrNoKeyDigests, got %v", err)
	}
}

func TestBootstrapFetchMissingPinnedCertificate(t *testing.T) {
	b := &Bootstrapper{CAPath: filepath.Join(t.TempDir(), "absent.pem")}
	if _, err := b.Fetch(); err == nil {
		t.Fatalf("an unreadable pinned certificate must fail the bootstrap")
	}
}

func writeServerCertificate(t *testing.T, server *httptest.Server) string {
	t.Helper()
	block := &pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw}
	path := filepath.Join(t.TempDir(), "pinned.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o644); err != nil {
		t.Fatalf("failed to write pinned certificate: %v", err)
	}
	return path
}
