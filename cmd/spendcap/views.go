package main

import (
	"strconv"

	"mercator-hq/spendcap/pkg/limits"
)

const unlimited = "unlimited"

// windowRow is one window of a decision or summary.
type windowRow struct {
	Window        string `json:"window"`
	LimitSats     *int64 `json:"limit_sats,omitempty"`
	SpentSats     int64  `json:"spent_sats"`
	Entries       int64  `json:"entries"`
	RemainingSats *int64 `json:"remaining_sats,omitempty"`
	Exceeded      bool   `json:"exceeded,omitempty"`
}

func (r windowRow) cells() []string {
	limit, remaining := unlimited, "-"
	if r.LimitSats != nil {
		limit = strconv.FormatInt(*r.LimitSats, 10)
	}
	if r.RemainingSats != nil {
		remaining = strconv.FormatInt(*r.RemainingSats, 10)
	}
	return []string{
		r.Window,
		limit,
		strconv.FormatInt(r.SpentSats, 10),
		strconv.FormatInt(r.Entries, 10),
		remaining,
	}
}

var windowHeaders = []string{"window", "limit_sats", "spent_sats", "entries", "remaining_sats"}

// decisionView renders a limits.Decision.
type decisionView struct {
	ResourceID string      `json:"resource_id"`
	AmountSats int64       `json:"amount_sats"`
	Allowed    bool        `json:"allowed"`
	Reason     string      `json:"reason,omitempty"`
	Windows    []windowRow `json:"windows"`
}

func newDecisionView(d *limits.Decision) decisionView {
	exceeded := make(map[limits.Window]bool, len(d.Exceeded))
	for _, w := range d.Exceeded {
		exceeded[w] = true
	}

	v := decisionView{
		ResourceID: d.ResourceID,
		AmountSats: d.AmountSats,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
		Windows:    make([]windowRow, 0, len(d.Windows)),
	}
	for _, s := range d.Windows {
		remaining := s.RemainingSats
		v.Windows = append(v.Windows, windowRow{
			Window:        s.Window.String(),
			LimitSats:     s.Cap.Ptr(),
			SpentSats:     s.SpentSats,
			Entries:       s.Count,
			RemainingSats: &remaining,
			Exceeded:      exceeded[s.Window],
		})
	}
	return v
}

// Verdict is the one-line outcome printed above the window table.
func (v decisionView) Verdict() string {
	if v.Allowed {
		return "ALLOWED"
	}
	return "DENIED: " + v.Reason
}

func (v decisionView) Headers() []string {
	return append(append([]string{}, windowHeaders...), "status")
}

func (v decisionView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Windows))
	for _, r := range v.Windows {
		status := "ok"
		if r.Exceeded {
			status = "exceeded"
		}
		rows = append(rows, append(r.cells(), status))
	}
	return rows
}

// summaryView renders a limits.SpendingSummary.
type summaryView struct {
	ResourceID string      `json:"resource_id"`
	Windows    []windowRow `json:"windows"`
}

func newSummaryView(s *limits.SpendingSummary) summaryView {
	v := summaryView{
		ResourceID: s.ResourceID,
		Windows:    make([]windowRow, 0, len(s.Windows)),
	}
	for _, ws := range s.Windows {
		row := windowRow{
			Window:    ws.Window.String(),
			LimitSats: ws.Cap.Ptr(),
			SpentSats: ws.SpentSats,
			Entries:   ws.Count,
		}
		if remaining, ok := ws.Remaining(); ok {
			row.RemainingSats = &remaining
		}
		v.Windows = append(v.Windows, row)
	}
	return v
}

func (v summaryView) Headers() []string { return windowHeaders }

func (v summaryView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Windows))
	for _, r := range v.Windows {
		rows = append(rows, r.cells())
	}
	return rows
}

// capView renders a resource's cap row.
type capView struct {
	ResourceID       string `json:"resource_id"`
	DailyLimitSats   *int64 `json:"daily_limit_sats,omitempty"`
	WeeklyLimitSats  *int64 `json:"weekly_limit_sats,omitempty"`
	MonthlyLimitSats *int64 `json:"monthly_limit_sats,omitempty"`
	AnnualLimitSats  *int64 `json:"annual_limit_sats,omitempty"`
}

func newCapView(resourceID string, c *limits.SpendCap) capView {
	v := capView{ResourceID: resourceID}
	if c == nil {
		return v
	}
	v.DailyLimitSats = c.Get(limits.Daily).Ptr()
	v.WeeklyLimitSats = c.Get(limits.Weekly).Ptr()
	v.MonthlyLimitSats = c.Get(limits.Monthly).Ptr()
	v.AnnualLimitSats = c.Get(limits.Annual).Ptr()
	return v
}

func (v capView) Headers() []string { return []string{"window", "limit_sats"} }

func (v capView) Rows() [][]string {
	fields := []struct {
		w     limits.Window
		limit *int64
	}{
		{limits.Daily, v.DailyLimitSats},
		{limits.Weekly, v.WeeklyLimitSats},
		{limits.Monthly, v.MonthlyLimitSats},
		{limits.Annual, v.AnnualLimitSats},
	}
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		limit := unlimited
		if f.limit != nil {
			limit = strconv.FormatInt(*f.limit, 10)
		}
		rows = append(rows, []string{f.w.String(), limit})
	}
	return rows
}

// applyView reports one provisioning pass.
type applyView struct {
	File    string `json:"file"`
	Applied int    `json:"applied"`
	Removed int    `json:"removed"`
}

func (v applyView) Headers() []string { return []string{"file", "applied", "removed"} }

func (v applyView) Rows() [][]string {
	return [][]string{{v.File, strconv.Itoa(v.Applied), strconv.Itoa(v.Removed)}}
}

// sweepView reports one retention sweep.
type sweepView struct {
	Cutoff  string `json:"cutoff"`
	Deleted int64  `json:"deleted"`
}

func (v sweepView) Headers() []string { return []string{"cutoff", "deleted"} }

func (v sweepView) Rows() [][]string {
	return [][]string{{v.Cutoff, strconv.FormatInt(v.Deleted, 10)}}
}
