// Package tls serves the spendcap HTTP API over TLS.
//
// It builds a crypto/tls configuration from config.TLSConfig, with optional
// mutual TLS, and rotates the server certificate when its files change on
// disk. A rotation that fails to load or validate keeps the previous
// certificate in service.
//
//	certs, err := tls.NewReloader(cfg.CertFile, cfg.KeyFile, logger)
//	if err != nil {
//	    return err
//	}
//	go certs.Watch(ctx)
//
//	tlsConfig, err := tls.NewServerConfig(cfg, certs)
//
// ClientIdentity extracts the caller identity from a verified client
// certificate for request logs.
package tls
