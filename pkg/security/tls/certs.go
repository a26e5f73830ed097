package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ExpiryWarning is how close to expiry a certificate is logged as a warning.
const ExpiryWarning = 30 * 24 * time.Hour

// ErrNoCertificate is returned for an empty certificate chain.
var ErrNoCertificate = errors.New("certificate chain is empty")

// Leaf parses the leaf certificate of a key pair and checks that it is
// valid at now.
func Leaf(cert *tls.Certificate, now time.Time) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, ErrNoCertificate
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	if err := ValidateValidity(leaf, now); err != nil {
		return nil, err
	}
	return leaf, nil
}

// ValidateValidity checks the NotBefore/NotAfter period of cert.
func ValidateValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// ExpiresSoon reports whether cert expires within ExpiryWarning of now.
func ExpiresSoon(cert *x509.Certificate, now time.Time) bool {
	return cert.NotAfter.Sub(now) < ExpiryWarning
}
