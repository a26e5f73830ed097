// Package logging provides structured logging with secret redaction.
//
// # Overview
//
// The logging package configures Go's standard log/slog package to provide:
//   - Structured logging with JSON or text output
//   - Redaction of credentials (auth secrets, DSN passwords, bearer tokens)
//   - Context-aware logging with request IDs, resource IDs and trace IDs
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "spend recorded", "amount_sats", 2500)
//	// {"level":"INFO","msg":"spend recorded","amount_sats":2500,"request_id":"req-123"}
//
// # Redaction
//
// When RedactSecrets is enabled, attributes whose key names a credential
// are masked and string values are scrubbed of credential patterns:
//
//   - internal_auth_secret: s3cr3t-value → s3cr***
//   - postgres://app:hunter2@db/spend → postgres://app:***@db/spend
//   - Bearer abc.def → Bearer ***
package logging
