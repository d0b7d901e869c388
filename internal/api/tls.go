package api

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// certReloader serves the certificate pair from disk and reloads it when
// the certificate file changes, so a rotated cert needs no restart.
type certReloader struct {
	certFile, keyFile string

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func (r *certReloader) load() error {
	info, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("tls certificate: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cert != nil && info.ModTime().Equal(r.modTime) {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tls key pair: %w", err)
	}
	r.cert, r.modTime = &cert, info.ModTime()
	return nil
}

// getCertificate keeps serving the last good pair when a reload fails
// mid-rotation.
func (r *certReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	_ = r.load()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cert, nil
}

var tlsState struct {
	mu       sync.RWMutex
	reloader *certReloader
}

// InitTLS enables TLS from SENTIENT_TLS_CERT and SENTIENT_TLS_KEY. Both
// empty leaves the API on plain HTTP; setting only one is an error, as is
// a pair that does not load.
func InitTLS(certFile, keyFile string) error {
	tlsState.mu.Lock()
	defer tlsState.mu.Unlock()
	tlsState.reloader = nil
	switch {
	case certFile == "" && keyFile == "":
		return nil
	case certFile == "" || keyFile == "":
		return errors.New("tls: SENTIENT_TLS_CERT and SENTIENT_TLS_KEY must be set together")
	}
	r := &certReloader{certFile: certFile, keyFile: keyFile}
	if err := r.load(); err != nil {
		return err
	}
	tlsState.reloader = r
	return nil
}

// IsTLSEnabled returns true if TLS is configured.
func IsTLSEnabled() bool {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	return tlsState.reloader != nil
}

// LoadTLSConfig returns the server TLS config, or nil when TLS is off.
func LoadTLSConfig() *tls.Config {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	if tlsState.reloader == nil {
		return nil
	}
	return &tls.Config{
		GetCertificate: tlsState.reloader.getCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
