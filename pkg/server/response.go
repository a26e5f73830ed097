package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/spendcap/pkg/limits"
)

// Error codes returned in error bodies.
const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeLimitExceeded  = "limit_exceeded"
	codeStoreFailure   = "store_unavailable"
	codeInternal       = "internal_error"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// limitsResponse is the body of the check and remaining routes. Cap and
// remaining fields are omitted for windows without a cap.
type limitsResponse struct {
	Allowed  *bool    `json:"allowed,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Exceeded []string `json:"exceeded,omitempty"`

	DailyLimitSats   *int64 `json:"daily_limit_sats,omitempty"`
	WeeklyLimitSats  *int64 `json:"weekly_limit_sats,omitempty"`
	MonthlyLimitSats *int64 `json:"monthly_limit_sats,omitempty"`
	AnnualLimitSats  *int64 `json:"annual_limit_sats,omitempty"`

	SpentLast24hSats  *int64 `json:"spent_last_24h_sats,omitempty"`
	SpentLast7dSats   *int64 `json:"spent_last_7d_sats,omitempty"`
	SpentLast30dSats  *int64 `json:"spent_last_30d_sats,omitempty"`
	SpentLast365dSats *int64 `json:"spent_last_365d_sats,omitempty"`

	RemainingDailySats   *int64 `json:"remaining_daily_sats,omitempty"`
	RemainingWeeklySats  *int64 `json:"remaining_weekly_sats,omitempty"`
	RemainingMonthlySats *int64 `json:"remaining_monthly_sats,omitempty"`
	RemainingAnnualSats  *int64 `json:"remaining_annual_sats,omitempty"`
}

// setWindow fills the fields for one window. remaining is nil when the
// window has no cap.
func (r *limitsResponse) setWindow(w limits.Window, capSats *int64, spent int64, remaining *int64) {
	switch w {
	case limits.Daily:
		r.DailyLimitSats, r.SpentLast24hSats, r.RemainingDailySats = capSats, &spent, remaining
	case limits.Weekly:
		r.WeeklyLimitSats, r.SpentLast7dSats, r.RemainingWeeklySats = capSats, &spent, remaining
	case limits.Monthly:
		r.MonthlyLimitSats, r.SpentLast30dSats, r.RemainingMonthlySats = capSats, &spent, remaining
	case limits.Annual:
		r.AnnualLimitSats, r.SpentLast365dSats, r.RemainingAnnualSats = capSats, &spent, remaining
	}
}

// decisionResponse converts an admission decision. Spend is reported only
// for capped windows since uncapped windows are never aggregated.
func decisionResponse(d *limits.Decision) limitsResponse {
	allowed := d.Allowed
	resp := limitsResponse{Allowed: &allowed, Reason: d.Reason}
	for _, w := range d.Exceeded {
		resp.Exceeded = append(resp.Exceeded, w.String())
	}
	for _, s := range d.Windows {
		remaining := s.RemainingSats
		resp.setWindow(s.Window, s.Cap.Ptr(), s.SpentSats, &remaining)
	}
	return resp
}

// summaryResponse converts a spending summary; spend is reported for all
// four windows.
func summaryResponse(s *limits.SpendingSummary) limitsResponse {
	var resp limitsResponse
	for _, ws := range s.Windows {
		var remaining *int64
		if rem, ok := ws.Remaining(); ok {
			remaining = &rem
		}
		resp.setWindow(ws.Window, ws.Cap.Ptr(), ws.SpentSats, remaining)
	}
	return resp
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorBody writes an error response.
func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps an engine error to a status code. Store failures are
// logged with their cause; clients only see a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case limits.IsValidationError(err):
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, limits.ErrStore):
		logger.ErrorContext(r.Context(), "limit store failure", "error", err)
		writeErrorBody(w, http.StatusInternalServerError, codeStoreFailure, "limit store unavailable")
	default:
		logger.ErrorContext(r.Context(), "unexpected error", "error", err)
		writeErrorBody(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
