package web

import (
	"encoding/json"
	"net/http"

	"billflow/internal/core"
)

func (h *Handler) listLedgers(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	groups, err := h.ledgers.ListGrouped(r.Context(), tenant)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) createParent(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "malformed JSON body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	parent, err := h.ledgers.EnsureParent(r.Context(), tenant, req.Name)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, parent)
}

func (h *Handler) importLedgers(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	var req struct {
		Entries []core.LedgerImportEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "malformed JSON body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, r, "entries is empty", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	result, err := h.ledgers.BulkImport(r.Context(), tenant, req.Entries)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	cfg, err := h.config.Get(r.Context(), tenant)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if cfg == nil {
		cfg = &core.TenantConfig{TenantID: tenant, Parents: map[core.LedgerRole][]string{}}
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	var req struct {
		Parents map[core.LedgerRole][]string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "malformed JSON body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	cfg, err := h.config.Set(r.Context(), tenant, req.Parents)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
