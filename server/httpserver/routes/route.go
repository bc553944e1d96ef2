package routes

import (
	"fmt"
	"net/http"

	"github.com/THPTUHA/livelook/server/httpserver/controllers"
	"github.com/THPTUHA/livelook/server/httpserver/middlewares"
	v1 "github.com/THPTUHA/livelook/server/httpserver/routes/v1"
	"github.com/gin-gonic/gin"
)

type Options struct {
	AllowOrigins []string
	// TrustedProxies may set X-Forwarded-For. Empty means the remote address
	// is always the client.
	TrustedProxies []string
	RateLimiter  *middlewares.IPRateLimiter
	LogRequests  bool
}

// initialize mounts the same handlers at the root, where existing clients
// call them, and under /apis/v1.
func initialize(ginApp *gin.Engine, ctr *controllers.Controller, opts Options) {
	ginApp.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limit := middlewares.RateLimit(opts.RateLimiter)
	for _, group := range []*gin.RouterGroup{ginApp.Group("/"), ginApp.Group("/apis/v1")} {
		v1.Channel(group, ctr, limit)
		v1.Token(group, ctr)
	}
}

func Build(ctr *controllers.Controller, opts Options) (*gin.Engine, error) {
	ginApp := gin.New()
	if err := ginApp.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	ginApp.Use(gin.Recovery())
	if opts.LogRequests {
		ginApp.Use(middlewares.RequestLogger())
	}
	ginApp.Use(middlewares.CORSMiddleware(opts.AllowOrigins...))
	initialize(ginApp, ctr, opts)

	return ginApp, nil
}
