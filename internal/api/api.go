package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	chat_module "newschat-backend/internal/api/modules/chat"
	health_module "newschat-backend/internal/api/modules/health"
	"newschat-backend/internal/gateway"
	"newschat-backend/pkg/sdk"
)

// Deps collects the wired collaborators the HTTP surface serves
type Deps struct {
	Chat    *chat_module.Controller
	Gateway *gateway.Handler
}

// NewEngine builds the gin engine with all middleware and routes registered.
// Split from Start so tests can drive the engine directly.
func NewEngine(cfg Config, deps Deps) *gin.Engine {
	engine := gin.Default()
	engine.NoRoute(noRouteHandler)

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.AllowedOrigins, ","),
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	// Adding custom modules
	health_module.RegisterRoutes(baseGroup)

	chatGroup := baseGroup.Group("")
	if cfg.APIKey != "" {
		chatGroup.Use(apiKeyHandler(cfg.APIKey))
	}
	chat_module.RegisterRoutes(chatGroup, deps.Chat)

	// WebSocket gateway lives outside the '/api' JSON surface
	if deps.Gateway != nil {
		engine.GET("/ws", gin.WrapH(deps.Gateway))
	}

	return engine
}

// Config carries the API-level settings
type Config struct {
	Port           string
	AllowedOrigins string
	APIKey         string
}

// Start builds the engine and runs it until the process exits
func Start(cfg Config, deps Deps) {
	engine := NewEngine(cfg, deps)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	if err := engine.Run(":" + port); err != nil {
		log.Fatal("[API-MAIN]: Failed to start server: ", err)
	}
}

// apiKeyHandler rejects requests without the configured X-API-KEY header
func apiKeyHandler(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(sdk.NewErrorResponse(http.StatusUnauthorized, "Invalid or missing API key", nil).AsGinResponse())
			return
		}
		c.Next()
	}
}

func noRouteHandler(c *gin.Context) {
	c.JSON(sdk.NewErrorResponse(http.StatusNotFound, "Route not found", nil).AsGinResponse())
}
