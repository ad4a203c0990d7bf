package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"billflow/internal/core"
)

// Handler wires the HTTP API onto the bill, ledger, and config services.
type Handler struct {
	bills   *core.BillService
	ledgers *core.LedgerStore
	config  *core.ConfigService
	maxBody int64
	log     zerolog.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(bills *core.BillService, ledgers *core.LedgerStore, config *core.ConfigService,
	allowedOrigins string, maxBody int64, log zerolog.Logger) http.Handler {

	h := &Handler{
		bills:   bills,
		ledgers: ledgers,
		config:  config,
		maxBody: maxBody,
		log:     log.With().Str("component", "web").Logger(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log))
	r.Use(Recoverer(h.log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(maxBody))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireTenant)

			r.Route("/bills", func(r chi.Router) {
				r.Post("/upload", h.uploadBills)
				r.Get("/", h.listBills)
				r.Get("/{billID}", h.getBill)
				r.Post("/{billID}/analyze", h.analyzeBill)
				r.Post("/{billID}/verify", h.verifyBill)
				r.Post("/{billID}/sync", h.syncBill)
			})

			r.Route("/ledgers", func(r chi.Router) {
				r.Get("/", h.listLedgers)
				r.Post("/parents", h.createParent)
				r.Post("/import", h.importLedgers)
			})

			r.Get("/config", h.getConfig)
			r.Put("/config", h.putConfig)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequireTenant reads the tenant from the X-Tenant-ID header. Every data
// route is tenant-scoped; requests without a valid tenant are rejected
// before any handler logic runs.
func (h *Handler) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Tenant-ID")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, r, "missing or malformed X-Tenant-ID header", "TENANT_REQUIRED", http.StatusUnauthorized)
			return
		}
		ctx := contextWithTenant(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
