package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/basketvoice/internal/api/handlers"
	"github.com/yoockh/basketvoice/internal/api/middleware"
)

type Deps struct {
	Assistant    *handlers.AssistantHandler
	RateLimit    *handlers.RateLimitHandler
	Conversation *handlers.ConversationHandler // optional, needs Postgres
	WS           *handlers.WSHandler           // optional, needs Redis

	// Auth defaults to middleware.JWTAuth().
	Auth gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	authMW := d.Auth
	if authMW == nil {
		authMW = middleware.JWTAuth()
	}
	auth := r.Group("/")
	auth.Use(authMW)

	a := auth.Group("/assistant")
	a.POST("/session", d.Assistant.Open)
	a.GET("/sessions", d.Assistant.History)
	a.GET("/session/:session_id", d.Assistant.Get)
	a.DELETE("/session/:session_id", d.Assistant.Close)
	a.POST("/session/:session_id/listen", d.Assistant.Listen)
	a.POST("/session/:session_id/confirm", d.Assistant.Confirm)
	a.POST("/session/:session_id/cancel", d.Assistant.Cancel)
	a.POST("/session/:session_id/reset", d.Assistant.Reset)
	a.PUT("/session/:session_id/screen", d.Assistant.SetScreen)
	a.GET("/session/:session_id/utterances", d.Assistant.Utterances)
	a.GET("/ratelimit", d.RateLimit.Status)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.DELETE("/ratelimit/:device_id", d.RateLimit.Reset)

	if d.Conversation != nil {
		auth.GET("/conversation/:session_id", d.Conversation.ListBySession)
	}

	if d.WS != nil {
		auth.GET("/ws/assistant/:session_id", d.WS.SessionWS)
	}
}
