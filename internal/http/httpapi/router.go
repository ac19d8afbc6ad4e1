package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pulsethread/internal/http/handlers"
	"pulsethread/internal/middleware"
)

// Options configures the HTTP boundary around the handlers.
type Options struct {
	JWTSecret string
	JWTIssuer string
	// Verifiers are tried after the shared-secret check, e.g. an OIDC issuer.
	Verifiers       []middleware.TokenVerifier
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	// Public
	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", app.MetricsHandler())

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		var verifiers []middleware.TokenVerifier
		if opts.JWTSecret != "" {
			verifiers = append(verifiers, middleware.HMACVerifier(opts.JWTSecret, opts.JWTIssuer))
		}
		r.Use(middleware.Authenticate(append(verifiers, opts.Verifiers...)...))
		r.Use(middleware.ViewerLocation(app.Locator))

		r.Route("/requests", func(r chi.Router) {
			r.With(limited).Post("/", app.RequestsCreate)
			r.Get("/open", app.RequestsOpen)
			r.Get("/{id}", app.RequestsGet)
			r.With(limited).Post("/{id}/cancel", app.RequestsCancel)
			r.Get("/{id}/responses", app.RequestsResponses)
			r.With(limited).Post("/{id}/accept", app.RequestsAccept)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/requests", app.MeRequests)
			r.Get("/donations", app.MeDonations)
			r.Get("/active", app.MeActive)
		})

		r.Route("/donations", func(r chi.Router) {
			r.Get("/{id}", app.DonationsGet)
			r.With(limited).Post("/{id}/cancel", app.DonationsCancel)
			r.With(limited).Post("/{id}/verify", app.DonationsVerify)
			r.Get("/{id}/checkpoint", app.DonationsCheckpoint)
		})

		r.Get("/ws", app.Live)
	})

	return r
}
