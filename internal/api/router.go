package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/antbee/internal/audit"
	"github.com/prasenjit/antbee/internal/metrics"
	"github.com/prasenjit/antbee/internal/stats"
	"github.com/prasenjit/antbee/internal/storage"
)

// AdminPrefix is the path every admin route lives under
const AdminPrefix = "/_api"

// RouterOptions configures the optional parts of the router
type RouterOptions struct {
	Logs        audit.Reader // Serves /_api/logs, nil disables it
	Stream      http.Handler // Serves /_api/logs/stream, nil disables it
	Stats       *stats.Collector
	Metrics     *metrics.Collector
	MetricsPath string
	MockPrefix  string // Prefix the mock engine strips before endpoint lookup
	Logger      *slog.Logger
}

// Router handles HTTP routing
type Router struct {
	engine  *gin.Engine
	handler *Handler
	mock    http.Handler
	opts    RouterOptions
}

// NewRouter creates a router serving the admin API and handing every other
// request to mock
func NewRouter(store storage.Storage, mock http.Handler, opts RouterOptions) *Router {
	gin.SetMode(gin.ReleaseMode)

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewCollector()
	}

	r := &Router{
		engine:  gin.New(),
		handler: NewHandler(store, opts.Logs, opts.Stats, opts.Logger),
		mock:    mock,
		opts:    opts,
	}

	r.handler.shadowed = r.shadowed

	r.engine.Use(gin.Recovery())
	r.engine.Use(requestLogger(opts.Logger.With("component", "http")))

	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	// CORS applies to the admin API only; mock responses carry exactly
	// their configured headers
	api := r.engine.Group(AdminPrefix, corsMiddleware())
	{
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		// Endpoints
		api.GET("/endpoints", r.handler.ListEndpoints)
		api.POST("/endpoints", r.handler.CreateEndpoint)
		api.GET("/endpoints/:id", r.handler.GetEndpoint)
		api.PUT("/endpoints/:id", r.handler.UpdateEndpoint)
		api.DELETE("/endpoints/:id", r.handler.DeleteEndpoint)
		api.PUT("/endpoints/:id/toggle", r.handler.ToggleEndpoint)

		// Response variants
		api.GET("/endpoints/:id/responses", r.handler.ListResponses)
		api.POST("/endpoints/:id/responses", r.handler.CreateResponse)
		api.GET("/responses/:id", r.handler.GetResponse)
		api.PUT("/responses/:id", r.handler.UpdateResponse)
		api.DELETE("/responses/:id", r.handler.DeleteResponse)

		// Rules
		api.GET("/endpoints/:id/rules", r.handler.ListRules)
		api.POST("/endpoints/:id/rules", r.handler.CreateRule)
		api.PUT("/endpoints/:id/rules", r.handler.ReplaceRules)
		api.GET("/rules/:id", r.handler.GetRule)
		api.PUT("/rules/:id", r.handler.UpdateRule)
		api.DELETE("/rules/:id", r.handler.DeleteRule)

		// Request logs
		if r.opts.Stream != nil {
			api.GET("/logs/stream", gin.WrapH(r.opts.Stream))
		}
		api.GET("/logs", r.handler.ListLogs)
		api.GET("/logs/:id", r.handler.GetLog)
		api.DELETE("/logs", r.handler.ClearLogs)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/endpoints/:id", r.handler.GetEndpointStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Import
		api.POST("/import/openapi", r.handler.ImportOpenAPI)

		// Health
		api.GET("/health", r.handler.HealthCheck)
	}

	if r.opts.Metrics != nil && r.opts.MetricsPath != "" {
		r.engine.GET(r.opts.MetricsPath, gin.WrapH(r.opts.Metrics.Handler()))
	}

	// Anything else is a mock request
	r.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, AdminPrefix+"/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown admin route"})
			return
		}
		r.mock.ServeHTTP(c.Writer, c.Request)
	})
}

// shadowed reports whether a mock endpoint at method and path would be
// served by an admin or metrics route instead of the mock engine
func (r *Router) shadowed(method, path string) bool {
	wire := strings.TrimSuffix(r.opts.MockPrefix, "/") + path
	if wire == AdminPrefix || strings.HasPrefix(wire, AdminPrefix+"/") {
		return true
	}
	return r.opts.Metrics != nil && r.opts.MetricsPath != "" &&
		method == http.MethodGet && wire == r.opts.MetricsPath
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// requestLogger writes one structured line per admin request. Mock
// traffic is recorded by the audit log instead and only logged at debug.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if !strings.HasPrefix(c.Request.URL.Path, AdminPrefix) {
			level = slog.LevelDebug
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		logger.Log(c.Request.Context(), level, "request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
