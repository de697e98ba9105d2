package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter assembles the coordinator's HTTP surface.
func NewRouter(handler *PlanHandler, metricsHandler http.Handler, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(chimiddleware.Recoverer)

	router.Get("/health", handler.Health)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	router.Route("/v1", func(r chi.Router) {
		r.Post("/plans", handler.SubmitPlan)
		r.Post("/plans/async", handler.SubmitPlanAsync)
		r.Get("/plans/{planID}", handler.GetPlanStatus)
	})

	return router
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
