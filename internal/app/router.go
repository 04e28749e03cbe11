package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brioche-erp/brioche/internal/lifecycle"
	"github.com/brioche-erp/brioche/internal/posting"
	"github.com/brioche-erp/brioche/internal/recon"
	"github.com/brioche-erp/brioche/internal/stock"
	"github.com/brioche-erp/brioche/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LifecycleHandler *lifecycle.Handler
	PostingHandler   *posting.Handler
	StockHandler     *stock.Handler
	ReconHandler     *recon.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.LifecycleHandler != nil {
			params.LifecycleHandler.MountRoutes(r)
		}
		if params.PostingHandler != nil {
			r.Route("/postings", params.PostingHandler.MountRoutes)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.ReconHandler != nil {
			r.Route("/recon", params.ReconHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
