package budget

import (
	"errors"
	"time"

	"mercator-hq/spendcap/pkg/limits/window"
)

// ErrInvalidDuration is returned for zero or negative window durations.
var ErrInvalidDuration = errors.New("window duration must be positive")

// Spend is the aggregated ledger activity over a trailing interval.
type Spend struct {
	// Since is the inclusive lower bound the spend was computed from.
	Since time.Time

	// SpentSats is the total spent in satoshis.
	SpentSats int64

	// Count is the number of ledger entries in the interval.
	Count int64
}

// WindowSpend is Spend tagged with the canonical window it covers.
type WindowSpend struct {
	Window window.Window
	Spend
}
