package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeCert writes a self-signed pair for commonName and returns the paths.
func writeCert(t *testing.T, dir, commonName string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestInitTLS(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeCert(t, dir, "room.local")

	tests := []struct {
		name      string
		cert, key string
		enabled   bool
		wantErr   string
	}{
		{name: "neither set"},
		{name: "only cert", cert: cert, wantErr: "must be set together"},
		{name: "only key", key: key, wantErr: "must be set together"},
		{name: "missing files", cert: "/nonexistent/cert.pem", key: "/nonexistent/key.pem", wantErr: "tls certificate"},
		{name: "key does not match", cert: cert, key: cert, wantErr: "tls key pair"},
		{name: "both set", cert: cert, key: key, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitTLS(tt.cert, tt.key)
			defer InitTLS("", "")

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("InitTLS error = %v, want %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("InitTLS: %v", err)
			}
			if IsTLSEnabled() != tt.enabled {
				t.Errorf("IsTLSEnabled = %v, want %v", IsTLSEnabled(), tt.enabled)
			}
			if (LoadTLSConfig() != nil) != tt.enabled {
				t.Errorf("LoadTLSConfig presence does not match enabled=%v", tt.enabled)
			}
		})
	}
}

func TestTLSCertificateReload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first.local")
	if err := InitTLS(certFile, keyFile); err != nil {
		t.Fatalf("InitTLS: %v", err)
	}
	defer InitTLS("", "")
	cfg := LoadTLSConfig()

	commonName := func() string {
		t.Helper()
		c, err := cfg.GetCertificate(nil)
		if err != nil {
			t.Fatalf("GetCertificate: %v", err)
		}
		leaf, err := x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			t.Fatalf("parse leaf: %v", err)
		}
		return leaf.Subject.CommonName
	}
	if got := commonName(); got != "first.local" {
		t.Fatalf("initial cert %q", got)
	}

	writeCert(t, dir, "second.local")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(certFile, later, later); err != nil {
		t.Fatal(err)
	}
	if got := commonName(); got != "second.local" {
		t.Errorf("rotated cert not picked up, got %q", got)
	}

	// A broken rotation keeps the last good pair.
	if err := os.WriteFile(keyFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	again := later.Add(time.Minute)
	if err := os.Chtimes(certFile, again, again); err != nil {
		t.Fatal(err)
	}
	if got := commonName(); got != "second.local" {
		t.Errorf("expected last good cert, got %q", got)
	}
}
