package tls

import (
	"crypto/x509"
	"net/http"
)

// Identity extracts the caller identity from cert according to source:
// "subject.CN" (default), "subject.OU", "subject.O" or "SAN" (first DNS
// name). It returns "" when the field is absent.
func Identity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case "subject.CN", "":
		return cert.Subject.CommonName
	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}

// ClientIdentity returns the identity of the verified client certificate on
// r, or "" for plain HTTP and connections without a client certificate.
func ClientIdentity(r *http.Request, source string) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return Identity(r.TLS.PeerCertificates[0], source)
}
