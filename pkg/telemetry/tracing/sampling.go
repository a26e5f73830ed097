package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newSampler returns a parent-based sampler for the given root ratio.
//
// A ratio of 1 samples every root span and 0 samples none; anything in
// between samples by trace ID hash so every service in a trace makes the
// same decision.
func newSampler(ratio float64) (sdktrace.Sampler, error) {
	if err := ValidateSampleRatio(ratio); err != nil {
		return nil, err
	}

	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(root), nil
}

// ValidateSampleRatio checks that ratio is within [0, 1].
func ValidateSampleRatio(ratio float64) error {
	if ratio < 0.0 || ratio > 1.0 {
		return fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}
	return nil
}
