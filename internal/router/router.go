package router

import (
	"context"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"

	"github.com/lvyanru/hitl-chat/internal/handler"
	"github.com/lvyanru/hitl-chat/internal/middleware"
)

// Options router settings
type Options struct {
	CORSOrigin string
	Logger     *slog.Logger
}

// Setup registers middleware and routes on r
func Setup(
	r *route.Engine,
	opts Options,
	chatHandler *handler.ChatHandler,
	healthHandler *handler.HealthHandler,
) {
	// Global middleware
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(opts.CORSOrigin))

	// preflight for any path; CORS answers it before this handler runs
	r.OPTIONS("/*path", func(ctx context.Context, c *app.RequestContext) {
		c.Status(consts.StatusNoContent)
	})

	// Health check routes
	r.GET("/ping", healthHandler.Ping)
	r.GET("/health", healthHandler.Health)
	r.GET("/health/detailed", healthHandler.Detailed)

	chat := r.Group("/api/chat")
	{
		chat.POST("", chatHandler.Stream)
		chat.POST("/invoke", chatHandler.Invoke)

		threads := chat.Group("/threads")
		{
			threads.GET("/:threadId", chatHandler.GetThread)
			threads.DELETE("/:threadId", chatHandler.DeleteThread)
		}
	}
}
