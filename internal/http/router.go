package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/stkpush/internal/http/auth"
	"github.com/MrJamesThe3rd/stkpush/internal/http/payment"
	"github.com/MrJamesThe3rd/stkpush/internal/http/response"
	"github.com/MrJamesThe3rd/stkpush/internal/http/transaction"
	"github.com/MrJamesThe3rd/stkpush/internal/metrics"
)

type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

func New(
	opts Options,
	paymentsV1 *payment.Handler,
	transactionsV1 *transaction.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if opts.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Provider callbacks are acknowledged whatever headers the gateway adds.
		r.Post("/payments/callback", paymentsV1.Callback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.JWTSecret))

			r.Route("/payments", paymentsV1.Routes)

			r.Route("/transactions", func(r chi.Router) {
				// With auth enabled, history is only visible to its owner.
				if opts.JWTSecret != "" {
					r.Use(auth.RequireUser)
				}

				transactionsV1.Routes(r)
			})
		})
	})

	return router
}
