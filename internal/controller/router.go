package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/storefront/internal/middleware"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	RedisClient     *redis.Client
	CatalogService  *service.CatalogService
	CheckoutService *service.CheckoutService
	PublishableKey  string
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
	// SubmitRatePerMinute limits checkout starts and confirmations per client IP.
	// Zero disables the limit.
	SubmitRatePerMinute int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	catalogH := NewCatalogController(deps.CatalogService)
	checkoutH := NewCheckoutController(deps.CheckoutService, deps.CatalogService, deps.PublishableKey)

	NewHealthController(RedisCheck(deps.RedisClient)).Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	// Views
	r.Get("/", catalogH.Catalog)
	r.Get("/purchase", catalogH.Purchase)
	r.Get("/payment", checkoutH.Payment)
	r.Get("/success", checkoutH.Success)
	r.Get("/error", checkoutH.Failure)

	r.Route("/checkout", func(r chi.Router) {
		submit := func(next http.Handler) http.Handler { return next }
		if deps.SubmitRatePerMinute > 0 {
			submit = customMW.RateLimit(deps.SubmitRatePerMinute)
		}

		r.With(submit).Post("/", checkoutH.Start)
		r.Post("/{attemptID}/customer", checkoutH.CaptureCustomer)
		r.With(submit).Post("/{attemptID}/confirm", checkoutH.Confirm)
		r.Get("/{attemptID}/status", checkoutH.Status)
		r.Post("/{attemptID}/return", checkoutH.Return)
	})

	return r
}

// NewOpsRouter serves health and metrics for processes without a public API.
func NewOpsRouter(pool *pgxpool.Pool, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	NewHealthController(JournalCheck(pool), RedisCheck(redisClient)).Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
