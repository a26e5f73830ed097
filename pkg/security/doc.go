/*
Package security groups the transport and credential handling of the
spendcap server.

# TLS

Package tls serves the API over HTTPS, optionally requiring client
certificates, and rotates the server certificate when its files change:

	certs, err := tls.NewReloader(cfg.TLS.CertFile, cfg.TLS.KeyFile, logger)
	if err != nil {
		return err
	}
	go certs.Watch(ctx)
	tlsConfig, err := tls.NewServerConfig(cfg.TLS, certs)

# Internal authentication

Package auth checks the shared secret header on the limits routes and
accepts a secondary secret during rotation:

	guard := auth.NewSharedSecret(cfg.InternalAuthHeader,
		cfg.InternalAuthSecret, cfg.InternalAuthSecondarySecret)

# Secret references

Package secrets replaces ${secret:name} references in configuration with
values from the environment or a mounted secrets directory:

	m := secrets.NewManager(secrets.NewEnvProvider("SPENDCAP_SECRET_"), dirProvider)
	err := m.ResolveAll(ctx, &cfg.Server.InternalAuthSecret, &cfg.Storage.Redis.Password)
*/
package security
