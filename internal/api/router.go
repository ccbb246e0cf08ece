package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/export"
	"github.com/civicpay/unifee/internal/ingestion"
	"github.com/civicpay/unifee/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	posRepo *repository.PositionRepo,
	ingestionSvc *ingestion.Service,
	exportSvc *export.Service,
	log logrus.FieldLogger,
) http.Handler {
	h := &Handlers{
		posRepo:      posRepo,
		ingestionSvc: ingestionSvc,
		exportSvc:    exportSvc,
		log:          log.WithField("component", "api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion.
		r.Post("/notices/ingest", h.IngestNotices)

		// Debt positions.
		r.Get("/positions", h.ListPositions)
		r.Get("/positions/{file}/{id}", h.GetPosition)

		// Batches.
		r.Get("/batches/{file}/status", h.GetBatchStatus)
		r.Get("/batches/{file}/output", h.GetBatchOutput)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
