package api

import (
	"dream-san/internal/api/handlers"
	"dream-san/internal/app"
	"dream-san/internal/middleware"
	"net/http"
)

// NewRouter registers every route on a ServeMux using Go 1.22+ method patterns
// and wraps it with CORS. A nil limiter disables rate limiting.
func NewRouter(cfg *app.Config, limiter *middleware.RateLimiter) http.Handler {
	authHandlers := handlers.NewAuthHandlers(cfg)
	accountHandlers := handlers.NewAccountHandlers(cfg)
	dreamHandlers := handlers.NewDreamHandlers(cfg)
	billingHandlers := handlers.NewBillingHandlers(cfg)
	contactHandlers := handlers.NewContactHandlers(cfg)

	protected := cfg.Tokens.Middleware
	limited := func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return next
		}
		return limiter.Limit(next)
	}

	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, cfg.Metrics.Instrument(route, h))
	}

	// Public routes
	handle("GET /health", "/health", handlers.HealthHandler(cfg.DB))
	handle("POST /api/auth/register", "/api/auth/register", limited(authHandlers.RegisterHandler))
	handle("POST /api/auth/login", "/api/auth/login", limited(authHandlers.LoginHandler))
	handle("POST /api/auth/exchange", "/api/auth/exchange", authHandlers.ExchangeHandler)
	handle("GET /api/models", "/api/models", dreamHandlers.GetModelsHandler)
	handle("POST /api/contact", "/api/contact", limited(contactHandlers.ContactHandler))

	// Signature or secret authenticated
	handle("POST /api/webhooks/stripe", "/api/webhooks/stripe", billingHandlers.StripeWebhookHandler)
	handle("GET /api/cron/monthly-grant", "/api/cron/monthly-grant", billingHandlers.MonthlyGrantHandler)
	handle("POST /api/cron/monthly-grant", "/api/cron/monthly-grant", billingHandlers.MonthlyGrantHandler)

	// Protected routes
	handle("GET /api/me", "/api/me", protected(accountHandlers.MeHandler))
	handle("GET /api/me/transactions", "/api/me/transactions", protected(accountHandlers.TransactionsHandler))
	handle("GET /api/me/reconcile", "/api/me/reconcile", protected(accountHandlers.ReconcileHandler))
	handle("POST /api/tokens/estimate", "/api/tokens/estimate", protected(accountHandlers.EstimateHandler))
	handle("POST /api/tokens/charge", "/api/tokens/charge", protected(accountHandlers.ChargeHandler))
	handle("POST /api/dreams", "/api/dreams", protected(limited(dreamHandlers.InterpretHandler)))
	handle("GET /api/dreams", "/api/dreams", protected(dreamHandlers.ListSessionsHandler))
	handle("GET /api/dreams/{id}", "/api/dreams/{id}", protected(dreamHandlers.GetSessionHandler))
	handle("GET /api/admin/stats", "/api/admin/stats", protected(accountHandlers.AdminStatsHandler))

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	return middleware.CORS(cfg.AppConfig.Server.AllowedOrigin)(mux)
}
