// Package httpapi wires the HTTP transport (Gin) to the gateway's components:
// middleware, handlers, the tiered profile resolver, the API proxy, and the
// chat hub. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging, panic recovery, metrics, CORS, security headers,
// and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The proxy and static fallthrough live on NoRoute, so registered routes
//     always win and gin's tree never mixes wildcards with literal segments
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/ai"
	"github.com/fittrackpro/go-fitness-edge/internal/analytics"
	"github.com/fittrackpro/go-fitness-edge/internal/cache"
	"github.com/fittrackpro/go-fitness-edge/internal/chat"
	"github.com/fittrackpro/go-fitness-edge/internal/config"
	"github.com/fittrackpro/go-fitness-edge/internal/http/handlers"
	"github.com/fittrackpro/go-fitness-edge/internal/http/middleware"
	"github.com/fittrackpro/go-fitness-edge/internal/proxy"
	"github.com/fittrackpro/go-fitness-edge/internal/search"
)

// Deps carries everything the router needs. All fields are required except
// Tracker, which may be nil to disable request analytics.
type Deps struct {
	Cfg     config.Config
	DB      *gorm.DB
	KV      *cache.Store
	Index   *search.Index
	AI      *ai.Client
	Hub     *chat.Hub
	Tracker *analytics.Tracker
	Log     zerolog.Logger
}

// RegisterRoutes attaches all middleware and endpoints to the given engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads get a larger cap)
//  6. Gzip (chat and metrics excluded)
//  7. Metrics
//  8. Burst limiter (per user/IP)
//  9. CORS and security headers
//  10. Request analytics
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Cfg
	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1<<20, 10<<20))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`^/chat/.*`, `^/metrics$`})))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateLimit.BurstRPS, cfg.RateLimit.Burst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// The gateway fronts browser apps on arbitrary origins, so CORS is
	// wide open. Force ACAO even on requests without an Origin header so
	// every response, 404s included, carries it, and short-circuit every
	// OPTIONS on method alone, Origin header or not.
	r.Use(func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers",
				"Origin, Content-Type, Accept, Authorization, X-User-ID, X-Request-ID")
			h.Set("Access-Control-Max-Age", "43200")
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Request-ID",
		},
		ExposeHeaders:             []string{"X-Request-ID", "X-Cache", "X-RateLimit-Remaining", "Content-Length"},
		AllowCredentials:          false, // must remain false with AllowAllOrigins
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	if d.Tracker.Enabled() {
		r.Use(func(c *gin.Context) {
			if ev := eventType(c.Request.URL.Path); ev != "" {
				d.Tracker.Track(ev, c.GetHeader("X-User-ID"), c.Request.URL.Path, c.Request.Method)
			}
			c.Next()
		})
	}

	// Dependency wiring.
	resolver := &proxy.Resolver{
		DB:     d.DB,
		KV:     d.KV,
		Origin: cfg.BackendOrigin,
		Client: upstream,
		TTL:    cfg.Cache.ProfileTTL,
		Log:    d.Log,
	}
	apiProxy := &proxy.APIProxy{
		KV:     d.KV,
		Origin: cfg.BackendOrigin,
		Client: upstream,
		TTL:    cfg.Cache.ProxyTTL,
		Log:    d.Log,
	}

	health := &handlers.HealthHandler{
		KV:        d.KV != nil,
		DB:        d.DB != nil,
		AI:        d.AI.Enabled(),
		Vectorize: d.Index != nil,
		Analytics: d.Tracker.Enabled(),
		Chat:      d.Hub != nil,
	}
	aiH := &handlers.AIHandler{
		Suggester: &ai.Suggester{Gen: d.AI, MaxTokens: cfg.AI.MaxTokens},
		KV:        d.KV,
		Limits:    cfg.RateLimit,
	}
	profiles := &handlers.ProfileHandler{Resolver: resolver, DB: d.DB, MaxAge: cfg.Cache.ProfileHint}
	analyticsH := &handlers.AnalyticsHandler{DB: d.DB}
	uploads := &handlers.UploadsHandler{DB: d.DB, Enabled: cfg.UploadsEnabled}
	searchH := &handlers.SearchHandler{Index: d.Index}
	static := &handlers.StaticHandler{
		KV:       d.KV,
		Origin:   cfg.AssetOrigin,
		Client:   upstream,
		TTL:      cfg.Cache.StaticTTL,
		SWMaxAge: cfg.Cache.ServiceWorker,
		Log:      d.Log,
	}

	r.GET("/health", health.Health)
	r.GET("/manifest.json", static.Manifest)
	r.GET("/sw.js", static.ServiceWorker)

	r.GET("/client/:name", profiles.ByClientName)
	r.GET("/profile/:token", profiles.ByToken)
	r.GET("/public/profile/:token", profiles.LegacyRedirect)

	api := r.Group("/api")
	{
		api.POST("/ai/suggest-meal", aiH.MealSuggestions)
		api.POST("/ai/suggest-workout", aiH.WorkoutSuggestions)
		api.POST("/ai/progress-insights", aiH.ProgressInsights)

		api.POST("/analytics/track", analyticsH.Track)
		api.GET("/analytics/dashboard", analyticsH.Dashboard)

		api.GET("/uploads", uploads.List)
		api.GET("/uploads/:key", uploads.Get)
		api.POST("/uploads/:key", uploads.Put)
		api.PUT("/uploads/:key", uploads.Put)
		api.POST("/uploads", uploads.Put)
		api.DELETE("/uploads/:key", uploads.Delete)
		api.DELETE("/uploads", uploads.Delete)

		api.GET("/exercises/semantic", searchH.Exercises)
		api.POST("/admin/index-exercises", searchH.Reindex)
		api.POST("/admin/share-links", profiles.CreateShareLink)
	}

	chat.NewHandler(d.Hub, d.Log).Register(r)

	// Everything unmatched: /api/* goes to the origin through the caching
	// proxy, GETs may be satisfied as static assets, the rest is a 404.
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			if cfg.BackendOrigin == "" {
				handlers.Fail(c, http.StatusNotFound, "No backend configured for this endpoint", "")
				return
			}
			apiProxy.Handle(c)
			return
		}
		if static.ServeCached(c) {
			return
		}
		handlers.Fail(c, http.StatusNotFound, "Not found", "")
	})
}

// eventType classifies a request path for analytics, so the trainer dashboard
// can break usage down per feature. An empty type means the request is not
// tracked: health probes and static assets are noise, and upload traffic
// carries bodies large enough that even metadata rows add up.
func eventType(p string) string {
	switch {
	case strings.HasPrefix(p, "/api/uploads"):
		return ""
	case p == "/api/ai/suggest-meal":
		return "ai_meal_suggestion"
	case p == "/api/ai/suggest-workout":
		return "ai_workout_suggestion"
	case p == "/api/ai/progress-insights":
		return "ai_progress_insights"
	case p == "/api/exercises/semantic":
		return "semantic_search"
	case strings.HasPrefix(p, "/client/"),
		strings.HasPrefix(p, "/profile/"),
		strings.HasPrefix(p, "/public/profile/"):
		return "profile_view"
	case strings.HasPrefix(p, "/api/"), strings.HasPrefix(p, "/chat/"):
		return "api_request"
	}
	return ""
}

// limitBody caps request body sizes via http.MaxBytesReader. Uploads get the
// larger cap; everything else the default.
func limitBody(defaultMax, uploadMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		max := defaultMax
		if strings.HasPrefix(c.Request.URL.Path, "/api/uploads/") {
			max = uploadMax
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}
