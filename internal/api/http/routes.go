package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipperstats/internal/api/http/handlers"
	"clipperstats/internal/api/http/mw"
	"clipperstats/internal/metrics"
)

func BuildRouter(
	h *handlers.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if gzipMW != nil {
		r.Use(gzipMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoints, no auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Mount("/metrics", metrics.Handler())

	// aggregate reads behind rate limit and jwt
	protected := chi.NewRouter()
	if rateLimitMW != nil {
		protected.Use(rateLimitMW.Handler)
	}
	if jwtMW != nil {
		protected.Use(jwtMW.Handler)
	}

	protected.Route("/api", func(apiR chi.Router) {
		apiR.Get("/pool", h.Pool)
		apiR.Get("/pool/status", h.PoolStatus)

		apiR.Get("/tokens/{address}", h.Token)

		apiR.Route("/coves", func(cc chi.Router) {
			cc.Get("/status", h.GlobalCoveStatus)
			cc.Get("/{id}", h.Cove)
			cc.Get("/{id}/status", h.CoveStatus)
			cc.Get("/{id}/stakes/{wallet}", h.Stake)
		})

		apiR.Get("/users/{wallet}", h.User)
		apiR.Get("/pairs/{asset0}/{asset1}", h.Pair)
		apiR.Get("/sources/{tag}", h.Source)
	})

	r.Mount("/", protected)
	return r
}
