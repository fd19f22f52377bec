package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dmateos/shelfwise/internal/app"
)

// NewRouter wires every API route. A nil limiter disables rate limiting.
func NewRouter(issuance *app.IssuanceService, catalogue *app.CatalogueService, log *logrus.Logger, limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	if limiter != nil {
		r.Use(RateLimit(limiter))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", HandleHealth())

	r.Route("/borrows", func(r chi.Router) {
		r.Post("/", HandleBorrow(issuance))
		r.Post("/{borrowID}/return", HandleReturn(issuance))
		r.Post("/{borrowID}/renew", HandleRenew(issuance))
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/{reservationID}/claim", HandleClaimReservation(issuance))
		r.Delete("/{reservationID}", HandleCancelReservation(issuance))
	})

	r.Post("/fines/{fineID}/pay", HandlePayFine(issuance))

	r.Route("/catalogue", func(r chi.Router) {
		r.Post("/", HandleAddEntry(catalogue))
		r.Post("/fetch-metadata", HandlePreviewMetadata(catalogue))
		r.Get("/pending", HandleListPending(catalogue))
		r.Route("/pending/{entryID}", func(r chi.Router) {
			r.Get("/", HandleGetEntry(catalogue))
			r.Patch("/", HandleEditEntry(catalogue))
			r.Post("/confirm", HandleConfirmEntry(catalogue))
			r.Post("/insert", HandleInsertEntry(catalogue))
		})
		r.Get("/audit/{entryID}", HandleAuditTrail(catalogue))
	})

	return r
}
