package limits

import (
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/limits/window"
)

// Window identifies a rolling spend window.
type Window = window.Window

// The supported rolling windows.
const (
	Daily   = window.Daily
	Weekly  = window.Weekly
	Monthly = window.Monthly
	Annual  = window.Annual
)

// Windows returns every window ordered from shortest to longest.
func Windows() []Window {
	return window.All()
}

// Limit is an optional cap value; the zero value means unlimited.
type Limit = storage.Limit

// SpendCap is the per-resource cap record.
type SpendCap = storage.SpendCap

// WindowStatus reports one window's cap and spend at decision time.
type WindowStatus struct {
	// Window is the rolling window.
	Window Window

	// Cap is the configured cap. Unset when the window is unlimited.
	Cap Limit

	// SpentSats is the spend in the window before the checked amount.
	SpentSats int64

	// Count is the number of ledger entries in the window.
	Count int64

	// RemainingSats is Cap minus SpentSats. Meaningful only when Cap is set,
	// and negative when the window is already overspent.
	RemainingSats int64
}

// Decision is the result of an admission check.
type Decision struct {
	// Allowed reports whether the amount fits every configured cap.
	Allowed bool

	// ResourceID is the resource the decision applies to.
	ResourceID string

	// AmountSats is the amount that was checked.
	AmountSats int64

	// Reason names the shortest exceeded window when Allowed is false.
	Reason string

	// Exceeded lists every window whose cap the amount would exceed,
	// shortest first.
	Exceeded []Window

	// Windows holds the status of each configured window, shortest first.
	// Empty when the resource has no caps.
	Windows []WindowStatus
}

// Window returns the status for w and whether w is configured.
func (d *Decision) Window(w Window) (WindowStatus, bool) {
	for _, s := range d.Windows {
		if s.Window == w {
			return s, true
		}
	}
	return WindowStatus{}, false
}

// Remaining returns the remaining budget for w, or false when w is unlimited.
func (d *Decision) Remaining(w Window) (int64, bool) {
	s, ok := d.Window(w)
	if !ok {
		return 0, false
	}
	return s.RemainingSats, true
}

// WindowSummary is the reporting view of one window.
type WindowSummary struct {
	// Window is the rolling window.
	Window Window

	// Cap is the configured cap, unset when unlimited.
	Cap Limit

	// SpentSats is the spend in the window.
	SpentSats int64

	// Count is the number of ledger entries in the window.
	Count int64
}

// Remaining returns Cap minus SpentSats, or false when the window is unlimited.
func (s WindowSummary) Remaining() (int64, bool) {
	if !s.Cap.Valid {
		return 0, false
	}
	return s.Cap.Sats - s.SpentSats, true
}

// SpendingSummary reports caps and spend for all four windows.
// Spend is reported even for windows without a cap.
type SpendingSummary struct {
	// ResourceID is the summarised resource.
	ResourceID string

	// Windows holds one entry per window, shortest first.
	Windows []WindowSummary
}

// Window returns the summary for w.
func (s *SpendingSummary) Window(w Window) WindowSummary {
	for _, ws := range s.Windows {
		if ws.Window == w {
			return ws
		}
	}
	return WindowSummary{Window: w}
}
