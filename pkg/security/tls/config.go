package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"mercator-hq/spendcap/pkg/config"
)

// NewServerConfig builds the server TLS configuration. The certificate is
// served by certs so it can rotate without a restart. Setting
// cfg.ClientCAFile enables client certificate verification.
func NewServerConfig(cfg config.TLSConfig, certs *Reloader) (*tls.Config, error) {
	if certs == nil {
		return nil, errors.New("certificate reloader is required")
	}

	// #nosec G402 - MinVersion is validated to TLS 1.2 or 1.3
	tlsConfig := &tls.Config{
		MinVersion:     parseVersion(cfg.MinVersion),
		GetCertificate: certs.GetCertificate,
	}

	if cfg.ClientCAFile != "" {
		pool, err := loadCAPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = parseClientAuth(cfg.ClientAuth)
	}

	return tlsConfig, nil
}

// parseVersion maps "1.2" to TLS 1.2. Anything else selects TLS 1.3.
func parseVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

func parseClientAuth(mode string) tls.ClientAuthType {
	if mode == "verify_if_given" {
		return tls.VerifyClientCertIfGiven
	}
	return tls.RequireAndVerifyClientCert
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in client CA file %s", path)
	}
	return pool, nil
}
