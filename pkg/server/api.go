package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"mercator-hq/spendcap/pkg/limits"
	"mercator-hq/spendcap/pkg/limits/window"
)

// maxBodyBytes bounds request bodies on the internal routes.
const maxBodyBytes = 64 << 10

// API holds the handlers for the internal limits routes.
type API struct {
	limits *limits.Controller
	fenced bool
	logger *slog.Logger
}

// NewAPI creates the internal API. When fenced is true the record route
// checks and inserts atomically and rejects spend that would exceed a cap.
func NewAPI(ctrl *limits.Controller, fenced bool, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		limits: ctrl,
		fenced: fenced,
		logger: logger.With("component", "api"),
	}
}

type recordRequest struct {
	APIKeyID      string `json:"api_key_id"`
	AmountSats    int64  `json:"amount_sats"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type setLimitRequest struct {
	APIKeyID  string `json:"api_key_id"`
	LimitSats int64  `json:"limit_sats"`
}

// Check handles GET /limits/check.
func (a *API) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseInt(q.Get("amount_sats"), 10, 64)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, "amount_sats must be an integer")
		return
	}

	decision, err := a.limits.Check(r.Context(), q.Get("api_key_id"), amount)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse(decision))
}

// Remaining handles GET /limits/remaining.
func (a *API) Remaining(w http.ResponseWriter, r *http.Request) {
	summary, err := a.limits.Summary(r.Context(), r.URL.Query().Get("api_key_id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse(summary))
}

// Record handles POST /spending/record.
func (a *API) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	if !a.fenced {
		if err := a.limits.Record(r.Context(), req.APIKeyID, req.AmountSats, req.TransactionID); err != nil {
			writeError(w, r, a.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	decision, err := a.limits.CheckAndRecord(r.Context(), req.APIKeyID, req.AmountSats, req.TransactionID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if !decision.Allowed {
		writeJSON(w, http.StatusConflict, decisionResponse(decision))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetLimit handles PUT /limits/{window}.
func (a *API) SetLimit(w http.ResponseWriter, r *http.Request) {
	win, err := window.Parse(r.PathValue("window"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	var req setLimitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	if err := a.limits.SetLimit(r.Context(), req.APIKeyID, win, req.LimitSats); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveLimit handles DELETE /limits/{window}.
func (a *API) RemoveLimit(w http.ResponseWriter, r *http.Request) {
	win, err := window.Parse(r.PathValue("window"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	if err := a.limits.RemoveLimit(r.Context(), r.URL.Query().Get("api_key_id"), win); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveAllLimits handles DELETE /limits.
func (a *API) RemoveAllLimits(w http.ResponseWriter, r *http.Request) {
	if err := a.limits.RemoveAllLimits(r.Context(), r.URL.Query().Get("api_key_id")); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON body, rejecting unknown fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}
