package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler, live *LiveHandler, hh *HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// our logger (after RequestID)
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", h.StartSearch)
		r.Post("/analyze", h.StartAnalysis)

		r.Route("/requests/{id}", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Get("/logs", h.GetLogs)
			r.Get("/results", h.GetResults)
			r.Get("/live", live.Live)
		})

		r.Route("/health", func(r chi.Router) {
			r.Post("/run", hh.RunProbes)
			r.Get("/incidents", hh.ListIncidents)
			r.Get("/history", hh.History)
			r.Get("/tests", hh.ListProbes)
			r.Post("/tests", hh.CreateProbe)
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
