package http

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/google-connect/internal/config"
	"github.com/smallbiznis/google-connect/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/google-connect/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware. The auth API owns
// /api/auth/google/*; everything else falls through to the calendar UI's
// static assets.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, rateLimiter *httpmiddleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.Header("Cache-Control", "no-store")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "google_auth_internal_error",
			"message": "Internal authentication error.",
			"details": fmt.Sprint(recovered),
		})
	}))
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(httpmiddleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.HandleMethodNotAllowed = true
	r.NoMethod(handler.MethodNotAllowed)

	google := r.Group("/api/auth/google")
	{
		google.GET("/start", authHandler.Start)
		google.GET("/callback", authHandler.Callback)
		google.GET("/status", authHandler.Status)
		google.POST("/access-token", authHandler.AccessToken)
		google.POST("/disconnect", authHandler.Disconnect)
	}

	// UI is served only as static files; auth logic stays on the API routes.
	attachUIRoutes(r, cfg.UIDistDir)

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.Status(http.StatusNotFound)
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api")
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
