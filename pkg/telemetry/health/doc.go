// Package health provides liveness and readiness probes for spendcap.
//
// # Endpoints
//
//   - /health: liveness, 200 while the process is serving
//   - /ready: readiness, 200 only when every registered check passes
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("storage", health.PingCheck(backend))
//
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
//	mux.HandleFunc("GET /version", health.VersionHandler(version, commit, buildTime))
//
// # Liveness vs Readiness
//
// Liveness never touches dependencies; a slow database must not get the
// process restarted. Readiness runs every registered check concurrently,
// each bounded by the checker's timeout, and answers 503 when any fails.
// Check failures are reported by name so operators can see which
// dependency is down.
package health
