package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"billflow/internal/core"
)

type billResponse struct {
	Bill     core.Bill          `json:"bill"`
	Analyzed *core.AnalyzedBill `json:"analyzed,omitempty"`
}

// uploadBills accepts a multipart upload with one or more "files" parts
// plus "kind" and "split_mode" fields and returns the draft bills it
// produced. A bare "file" part is accepted too.
func (h *Handler) uploadBills(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())

	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			writeError(w, r, "upload too large", "FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, r, "malformed multipart request", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
		if len(headers) == 0 {
			headers = r.MultipartForm.File["file"]
		}
	}
	if len(headers) == 0 {
		writeError(w, r, "missing files field", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	uploads := make([]core.FileUpload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, r, "reading upload failed", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, r, "reading upload failed", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		uploads = append(uploads, core.FileUpload{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	kind := core.BillKind(r.FormValue("kind"))
	mode := core.SplitMode(r.FormValue("split_mode"))
	if mode == "" {
		mode = core.SplitSingle
	}

	bills, err := h.bills.Upload(r.Context(), tenant, kind, uploads, mode)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bills": bills})
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	bills, err := h.bills.ListByStatus(r.Context(), tenant, r.URL.Query().Get("status"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	if bills == nil {
		bills = []core.Bill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	bill, analyzed, err := h.bills.Get(r.Context(), tenant, chi.URLParam(r, "billID"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, billResponse{Bill: *bill, Analyzed: analyzed})
}

func (h *Handler) analyzeBill(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	analyzed, err := h.bills.Analyze(r.Context(), tenant, chi.URLParam(r, "billID"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyzed": analyzed})
}

func (h *Handler) verifyBill(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	var payload core.VerifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "malformed JSON body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	analyzed, err := h.bills.Verify(r.Context(), tenant, chi.URLParam(r, "billID"), &payload)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyzed": analyzed})
}

func (h *Handler) syncBill(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	voucher, err := h.bills.Sync(r.Context(), tenant, chi.URLParam(r, "billID"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voucher": voucher})
}
