// Package window defines the four canonical rolling spend windows.
//
// Windows are trailing intervals ending at "now" and recomputed on every
// call. They are never aligned to calendar boundaries: Monthly is the last
// 30 days, not the current calendar month.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Window identifies one of the supported rolling spend windows.
type Window int

const (
	// Daily is the trailing 24 hours.
	Daily Window = iota + 1

	// Weekly is the trailing 7 days.
	Weekly

	// Monthly is the trailing 30 days.
	Monthly

	// Annual is the trailing 365 days.
	Annual
)

// Day is the length of one window day. Windows are defined in fixed 24h
// units so that DST transitions never stretch or shrink a window.
const Day = 24 * time.Hour

// ErrUnknown is returned when a window name or value is not recognised.
var ErrUnknown = errors.New("unknown spend window")

var all = []Window{Daily, Weekly, Monthly, Annual}

// All returns every window ordered from shortest to longest.
// The returned slice is a copy and may be modified by the caller.
func All() []Window {
	out := make([]Window, len(all))
	copy(out, all)
	return out
}

// Longest returns the window with the greatest duration.
func Longest() Window {
	return Annual
}

// Valid reports whether w is one of the defined windows.
func (w Window) Valid() bool {
	return w >= Daily && w <= Annual
}

// Duration returns the trailing interval covered by the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Daily:
		return Day
	case Weekly:
		return 7 * Day
	case Monthly:
		return 30 * Day
	case Annual:
		return 365 * Day
	default:
		return 0
	}
}

// String returns the configuration name of the window ("daily", "weekly", ...).
func (w Window) String() string {
	switch w {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Annual:
		return "annual"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Span returns the short span label used in reports ("24h", "7d", "30d", "365d").
func (w Window) Span() string {
	switch w {
	case Daily:
		return "24h"
	case Weekly:
		return "7d"
	case Monthly:
		return "30d"
	case Annual:
		return "365d"
	default:
		return ""
	}
}

// Parse converts a window name or span label into a Window.
// Matching is case-insensitive; "day", "24h", "week", "7d", "month", "30d",
// "year", "yearly" and "365d" are accepted aliases.
func Parse(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "24h":
		return Daily, nil
	case "weekly", "week", "7d":
		return Weekly, nil
	case "monthly", "month", "30d":
		return Monthly, nil
	case "annual", "annually", "yearly", "year", "365d":
		return Annual, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (w Window) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Window) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
