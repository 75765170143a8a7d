// Package httpapi wires the HTTP transport (Gin) to the entity
// repositories and the sync engine. It centralizes the cross-cutting
// concerns: tracing, correlation IDs, structured logging, panic recovery,
// compression, metrics, and CORS.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. gzip
//  7. Metrics
//  8. CORS
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lmarques/go-backoffice-sync/internal/config"
	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/domain"
	"github.com/lmarques/go-backoffice-sync/internal/http/handlers"
	"github.com/lmarques/go-backoffice-sync/internal/http/middleware"
	"github.com/lmarques/go-backoffice-sync/internal/repository"
	"github.com/lmarques/go-backoffice-sync/internal/store"
	"github.com/lmarques/go-backoffice-sync/internal/syncengine"
)

// Deps carries the constructed application components the router mounts.
type Deps struct {
	Clients   *repository.Repository[domain.Client]
	Providers *repository.Repository[domain.Provider]
	OpLog     *store.OpLog
	Oracle    connectivity.Oracle
	Engine    *syncengine.Engine
}

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine: health and metrics, the per-entity CRUD surface for UI-facing
// callers, and the sync status/manual-resolution endpoints.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) CORS posture (allow all when no origins configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		handlers.NewEntityHandler(deps.Clients).Register(api, "clients")
		handlers.NewEntityHandler(deps.Providers).Register(api, "providers")
		handlers.NewSyncHandler(deps.OpLog, deps.Oracle, deps.Engine).Register(api)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
