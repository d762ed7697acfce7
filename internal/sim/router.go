package sim

import (
	"github.com/gin-gonic/gin"
)

// RouterConfig holds configuration for the simulator router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Chat API (requires API key when one is configured)
	chat := r.Group("/api")
	chat.Use(Auth(cfg.APIKey))
	h.RegisterRoutes(chat)

	return r
}
