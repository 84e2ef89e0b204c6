package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/habahaba/roundup-savings/internal/api/handlers"
	"github.com/habahaba/roundup-savings/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// publicPaths skip API-key auth. Provider callbacks carry their own proof.
var publicPaths = []string{
	"/health",
	"/metrics",
	"/api/webhooks/paystack",
	"/api/mpesa/callback",
}

type routes struct {
	roundups *handlers.RoundupsHandler
	webhooks *handlers.WebhooksHandler
	jobs     *handlers.JobsHandler
}

// only rejects every method but m.
func only(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

func newRouter(rt routes, apiKey string, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Roundup endpoints
	mux.HandleFunc("/api/roundups", only(http.MethodPost, rt.roundups.CreateRoundup))
	mux.HandleFunc("/api/roundups/preview", only(http.MethodPost, rt.roundups.PreviewRoundup))
	mux.HandleFunc("/api/transactions", only(http.MethodGet, rt.roundups.ListTransactions))
	mux.HandleFunc("/api/profile", only(http.MethodGet, rt.roundups.GetProfile))
	mux.HandleFunc("/api/withdrawals", only(http.MethodPost, rt.roundups.CreateWithdrawal))

	// Provider callbacks
	mux.HandleFunc("/api/webhooks/paystack", only(http.MethodPost, rt.webhooks.Paystack))
	mux.HandleFunc("/api/mpesa/callback", only(http.MethodPost, rt.webhooks.MpesaCallback))

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", only(http.MethodGet, rt.jobs.ListJobs))
	mux.HandleFunc("/api/jobs/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		rt.jobs.GetJob(w, r, jobID)
	}))

	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(apiKey, publicPaths...)(mux),
				),
			),
		),
	)
}
