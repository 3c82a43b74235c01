package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/common"
	"github.com/mosskim/gembot/internal/config"
	"github.com/mosskim/gembot/internal/httpapi/handlers"
	"github.com/mosskim/gembot/internal/httpapi/middleware"
	"github.com/mosskim/gembot/internal/store"
)

func NewRouter(st *store.Store, cfg config.HTTP, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(st, log)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))
	api.GET("/stats", h.DatabaseStats)
	api.GET("/chats/:id/stats", h.ChatStats)
	api.GET("/chats/:id/export", h.ExportChat)
	api.DELETE("/chats/:id/messages", h.DeleteChatMessages)
	api.GET("/users/:id/stats", h.UserStats)
	api.GET("/search", h.Search)
	api.POST("/purge", h.Purge)
	return r
}
