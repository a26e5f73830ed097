// Package auth guards internal routes with a shared secret carried in a
// request header.
//
// Two secrets may be active at once so callers can roll over to a new
// secret without downtime: configure the new value as the primary, keep
// the old one as secondary until every caller has switched, then remove it.
//
//	guard := auth.NewSharedSecret("X-Internal-Auth", primary, secondary)
//	handler = guard.Middleware(onDenied)(handler)
//
// Comparison is constant-time against every configured secret.
package auth
