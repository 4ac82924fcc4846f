package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"relay-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	authH *AuthHandler,
	chatH *ChatHandler,
	healthPing func() error,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if healthPing != nil {
			if err := healthPing(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/api/auth")
	auth.POST("/signup", authH.Signup)
	auth.POST("/login", authH.Login)
	auth.POST("/verify-otp", authH.VerifyOTP)
	auth.POST("/verify-email", authH.VerifyEmail)
	auth.POST("/request-otp", authH.RequestVerification)
	auth.POST("/request-email-verify", authH.RequestVerification)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)
	auth.GET("/me", RequireAuth(tokens), authH.Me)
	auth.POST("/interests", RequireAuth(tokens), authH.SetInterests)

	r.POST("/api/chat", OptionalAuth(tokens), chatH.StreamChat)

	chats := r.Group("/api/chats", RequireAuth(tokens))
	chats.POST("", chatH.CreateChat)
	chats.GET("", chatH.ListChats)
	chats.GET("/:id", chatH.GetChat)
	chats.DELETE("/:id", chatH.DeleteChat)
	chats.POST("/:id/messages", chatH.AppendMessage)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
