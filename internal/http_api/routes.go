package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	locks := s.router.Group("/locks")
	locks.GET("/:resource_id", s.inspect)

	// Mutations carry the caller's identity.
	held := locks.Group("", s.identityRequired())
	held.POST("/:resource_id/acquire", s.acquire)
	held.POST("/:resource_id/renew", s.renew)
	held.DELETE("/:resource_id", s.release)
}
