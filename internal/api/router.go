// Package api assembles the HTTP surface.
package api

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Vasilion/UnyX-Social/config"
	_ "github.com/Vasilion/UnyX-Social/docs"
	"github.com/Vasilion/UnyX-Social/internal/api/handler"
	"github.com/Vasilion/UnyX-Social/internal/api/middleware"
)

const streamPath = "/api/v1/marketplace/messages/stream"

// NewRouter 注册中间件与路由
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()

	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	// SSE 不能压缩，否则事件会被缓冲
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))
	r.Use(middleware.Identity(cfg.JWT))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if cfg.Storage.Driver == "local" && cfg.Storage.PublicBaseURL != "" {
		r.Static(cfg.Storage.PublicBaseURL, cfg.Storage.LocalDir)
	}

	limiter := middleware.NewRateLimiter(cfg.Messaging.SendRate, cfg.Messaging.SendBurst)

	v1 := r.Group("/api/v1/marketplace")
	{
		msgs := v1.Group("/messages")
		msgs.POST("", limiter.Middleware(), h.SendMessage)
		msgs.GET("/thread", h.GetThread)
		msgs.POST("/read", h.MarkRead)
		msgs.GET("/unread-count", h.UnreadCount)
		msgs.GET("/stream", h.Stream)

		v1.GET("/conversations", h.ListConversations)

		items := v1.Group("/items")
		items.GET("", h.ListItems)
		items.GET("/:id", h.GetItem)
		items.POST("", h.CreateItem)
		items.PUT("/:id", h.UpdateItem)
		items.PUT("/:id/primary-image", h.SetPrimaryImage)
		items.DELETE("/:id", h.DeleteItem)
	}
	return r
}
