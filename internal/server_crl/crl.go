package server_crl

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"co2exporter/v0/internal/utils"
	"co2exporter/v0/utils/filewatcher"
	"go.uber.org/zap"
)

// CRLCache holds the CA's parsed Certificate Revocation List and reloads it
// when the file changes.
type CRLCache struct {
	mutex    sync.RWMutex
	filepath string
	crl      *x509.RevocationList
	revoked  map[string]bool
	logger   *zap.Logger
}

// NewCRLCache loads and caches the CRL at filepath.
func NewCRLCache(filepath string, logger *zap.Logger) (*CRLCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CRLCache{
		filepath: filepath,
		logger:   logger,
	}
	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("failed to initiate crl: %v", err)
	}
	return c, nil
}

// Load re-reads the CRL file. On failure the previously cached list stays in
// effect.
func (c *CRLCache) Load() error {
	rawCrl, err := os.ReadFile(c.filepath)
	if err != nil {
		return fmt.Errorf("failed to read CA's CRL file from %s: %v", c.filepath, err)
	}

	crl, err := utils.ParseRevocationList(rawCrl)
	if err != nil {
		return err
	}

	revoked := make(map[string]bool, len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		revoked[entry.SerialNumber.String()] = true
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.crl = crl
	c.revoked = revoked
	return nil
}

// Watch reloads the CRL whenever its file changes, until ctx is done.
func (c *CRLCache) Watch(ctx context.Context, interval time.Duration) {
	fw := filewatcher.NewFileWatcher(ctx, c.filepath, interval, c.logger)

	for range fw.ChangeTriggerChan {
		if err := c.Load(); err != nil {
			c.logger.Error("failed to reload CA CRL", zap.Error(err))
			continue
		}
		c.logger.Info("CA's CRL file successfully updated")
	}
}

// Issuer returns the trusted certificate which signed the cached CRL.
func (c *CRLCache) Issuer(trustedCerts []*x509.Certificate) (*x509.Certificate, error) {
	c.mutex.RLock()
	crl := c.crl
	c.mutex.RUnlock()

	var crlCheckErr error = fmt.Errorf("no trusted certificates")
	for _, trustedCert := range trustedCerts {
		if err := crl.CheckSignatureFrom(trustedCert); err != nil {
			crlCheckErr = err
			continue
		}
		return trustedCert, nil
	}
	return nil, fmt.Errorf("failed to match a certificate from the cert pool with the CRL: %v", crlCheckErr)
}

// IsRevoked reports whether cert's serial number is listed in the cached CRL.
func (c *CRLCache) IsRevoked(cert *x509.Certificate) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.revoked[cert.SerialNumber.String()]
}
