package http

import (
	"net/http"
	"time"

	"github.com/fjod/plancart/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Catalog        *CatalogHandler
	Carts          *CartHandler
	Checkout       *CheckoutHandler
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter mounts the JSON API under /api/v1 plus /health and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	r := chi.NewRouter()

	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", cfg.Catalog.ListPlans)
		r.Get("/plans/{planID}", cfg.Catalog.GetPlan)
		r.Get("/categories", cfg.Catalog.ListCategories)
		r.Get("/coupons/{code}", cfg.Catalog.GetCoupon)
		r.Post("/quotes", cfg.Catalog.CreateQuote)

		r.Post("/carts", cfg.Carts.CreateCart)
		r.Route("/carts/{cartID}", func(r chi.Router) {
			r.Get("/", cfg.Carts.GetCart)
			r.Delete("/", cfg.Carts.DeleteCart)
			r.Get("/totals", cfg.Carts.GetTotals)
			r.Post("/items", cfg.Carts.AddItem)
			r.Patch("/items/{itemID}", cfg.Carts.UpdateItem)
			r.Delete("/items/{itemID}", cfg.Carts.RemoveItem)
			r.Post("/items/{itemID}/preview", cfg.Carts.PreviewUpdate)
			r.Post("/coupon", cfg.Carts.ApplyCoupon)
			r.Delete("/coupon", cfg.Carts.RemoveCoupon)
			r.Post("/checkout", cfg.Checkout.Checkout)
		})

		r.Get("/orders/{orderID}", cfg.Checkout.GetOrder)
	})

	return otelhttp.NewHandler(r, "plancart.http")
}
