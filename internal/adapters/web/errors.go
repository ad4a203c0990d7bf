package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"billflow/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Transient bool   `json:"transient,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapError translates service errors onto HTTP statuses. Upstream
// failures carry the transient flag so clients know whether a retry is
// worth it.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *core.ValidationError
		sc *core.StateConflictError
		ra *core.ResolutionAmbiguityError
		ae *core.AnalysisError
		se *core.SyncError
	)
	switch {
	case errors.Is(err, core.ErrInvalidTaxSplit):
		writeError(w, r, err.Error(), "INVALID_TAX_SPLIT", http.StatusBadRequest)
	case errors.As(err, &ve):
		writeError(w, r, ve.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case errors.As(err, &sc):
		writeError(w, r, sc.Error(), "STATE_CONFLICT", http.StatusConflict)
	case errors.As(err, &ra):
		writeError(w, r, ra.Error(), "RESOLUTION_AMBIGUOUS", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrUnsupportedFormat):
		writeError(w, r, err.Error(), "UNSUPPORTED_FORMAT", http.StatusUnsupportedMediaType)
	case errors.Is(err, core.ErrSizeExceeded):
		writeError(w, r, err.Error(), "FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
	case errors.As(err, &ae):
		writeUpstreamError(w, r, ae.Error(), "ANALYSIS_FAILED", ae.Transient)
	case errors.As(err, &se):
		writeUpstreamError(w, r, se.Error(), "SYNC_FAILED", se.Transient)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

func writeUpstreamError(w http.ResponseWriter, r *http.Request, message, code string, transient bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     message,
		Code:      code,
		Transient: transient,
		RequestID: requestIDFromContext(r.Context()),
	})
}
