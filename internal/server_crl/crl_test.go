package server_crl

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

func newTestCA(t *testing.T, name string) *testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return &testCA{cert: cert, key: key}
}

func (ca *testCA) writeCRL(t *testing.T, path string, number int64, revoked ...int64) {
	t.Helper()
	template := &x509.RevocationList{
		Number:     big.NewInt(number),
		ThisUpdate: time.Now().Add(-time.Minute),
		NextUpdate: time.Now().Add(time.Hour),
	}
	for _, serial := range revoked {
		template.RevokedCertificateEntries = append(template.RevokedCertificateEntries, x509.RevocationListEntry{
			SerialNumber:   big.NewInt(serial),
			RevocationTime: time.Now().Add(-time.Minute),
		})
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, ca.cert, ca.key)
	if err != nil {
		t.Fatal(err)
	}
	raw := pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der})
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCRLCacheRevocation(t *testing.T) {
	ca := newTestCA(t, "co2 test ca")
	path := filepath.Join(t.TempDir(), "ca.crl")
	ca.writeCRL(t, path, 1, 42)

	cache, err := NewCRLCache(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCRLCache: %v", err)
	}

	if !cache.IsRevoked(&x509.Certificate{SerialNumber: big.NewInt(42)}) {
		t.Fatal("serial 42 should be revoked")
	}
	if cache.IsRevoked(&x509.Certificate{SerialNumber: big.NewInt(7)}) {
		t.Fatal("serial 7 should not be revoked")
	}
}

func TestCRLCacheIssuer(t *testing.T) {
	ca := newTestCA(t, "co2 test ca")
	other := newTestCA(t, "other ca")
	path := filepath.Join(t.TempDir(), "ca.crl")
	ca.writeCRL(t, path, 1)

	cache, err := NewCRLCache(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCRLCache: %v", err)
	}

	issuer, err := cache.Issuer([]*x509.Certificate{other.cert, ca.cert})
	if err != nil {
		t.Fatalf("Issuer: %v", err)
	}
	if issuer != ca.cert {
		t.Fatalf("issuer = %s, want %s", issuer.Subject, ca.cert.Subject)
	}

	if _, err := cache.Issuer([]*x509.Certificate{other.cert}); err == nil {
		t.Fatal("expected an error for an untrusted CRL")
	}
}

func TestCRLCacheMissingFile(t *testing.T) {
	if _, err := NewCRLCache(filepath.Join(t.TempDir(), "missing.crl"), nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestCRLCacheWatchReloads(t *testing.T) {
	ca := newTestCA(t, "co2 test ca")
	path := filepath.Join(t.TempDir(), "ca.crl")
	ca.writeCRL(t, path, 1)

	cache, err := NewCRLCache(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCRLCache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Let the watcher take its baseline before the file changes.
	time.Sleep(50 * time.Millisecond)
	ca.writeCRL(t, path, 2, 42, 43)

	revoked := &x509.Certificate{SerialNumber: big.NewInt(43)}
	deadline := time.Now().Add(2 * time.Second)
	for !cache.IsRevoked(revoked) {
		if time.Now().After(deadline) {
			t.Fatal("CRL was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
