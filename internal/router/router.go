package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/handlers"
	"github.com/0xArchitect/ludo-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the handlers and policies the router wires together
type Dependencies struct {
	Ledger    *handlers.LedgerHandler
	WebSocket *handlers.WebSocketHandler // optional
	Verifier  middleware.IdentityVerifier
	Throttle  *middleware.UserThrottle // optional
	CORS      config.CORSConfig
	AdminIPs  []string
	Logger    logrus.FieldLogger
}

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, X-Request-ID"
)

// corsMiddleware answers preflights and sets CORS headers.
// An empty origin list allows all origins.
func corsMiddleware(cfg config.CORSConfig, logger logrus.FieldLogger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if cfg.AllowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
			} else {
				logger.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
					"method":         c.Request.Method,
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
		c.Next()
	}
}

// SetupRouter builds the gin engine
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(corsMiddleware(deps.CORS, deps.Logger))

	localhostOnly := middleware.NewLocalhostOnly(deps.Logger, deps.AdminIPs)
	authMiddleware := middleware.NewAuthMiddleware(deps.Verifier, deps.Logger)

	// ============ Health Check ============
	r.GET("/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", localhostOnly.Restrict(), gin.WrapH(promhttp.Handler()))

	// ============ Ledger API ============
	authed := r.Group("/", authMiddleware.RequireAuth())
	{
		authed.GET("/balance", deps.Ledger.GetBalance)
		authed.GET("/transactions", deps.Ledger.GetTransactions)

		withdraw := []gin.HandlerFunc{}
		if deps.Throttle != nil {
			withdraw = append(withdraw, deps.Throttle.Limit())
		}
		withdraw = append(withdraw, deps.Ledger.Withdraw)
		authed.POST("/withdraw", withdraw...)

		if deps.WebSocket != nil {
			authed.GET("/ws", deps.WebSocket.HandleWebSocket)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Not Found",
			"message": "Endpoint not found",
			"code":    "NOT_FOUND",
		})
	})

	return r
}
