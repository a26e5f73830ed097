// Package server exposes the limits engine over an internal REST API.
//
// The API is meant for trusted callers on a private network: the payment
// path checks a resource before paying and records the spend once the
// payment commits. Internal routes require a shared secret in the
// X-Internal-Auth header (configurable), compared in constant time.
//
// # Routes
//
//	GET    /limits/check?api_key_id=&amount_sats=   admission decision
//	GET    /limits/remaining?api_key_id=            caps and spend per window
//	POST   /spending/record                         append a ledger entry
//	PUT    /limits/{window}                         set one cap
//	DELETE /limits/{window}?api_key_id=             clear one cap
//	DELETE /limits?api_key_id=                      clear every cap
//
// The probes (/health, /ready, /version) and the metrics endpoint are not
// authenticated.
//
// # Errors
//
// Errors are JSON objects of the form {"error": {"code": ..., "message": ...}}.
// Invalid input answers 400, a missing or wrong secret 401, and storage
// failures 500. When fenced recording is enabled, spend that would exceed
// a cap answers 409 with the decision.
package server
