package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/config"
	"github.com/coo-agent/coo-backend/internal/httpapi/handlers"
	"github.com/coo-agent/coo-backend/internal/httpapi/middleware"
)

// NewRouter wires the HTTP surface. Everything except health/version runs
// behind the principal middleware; admin checks happen inside the services
// so a forged route can never skip them.
func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.GET("/version", h.GetVersion)

	auth := r.Group("/")
	auth.Use(middleware.PrincipalRequired(cfg.JWTSecret))

	// conversation
	auth.POST("/chat", h.SendChat)
	auth.GET("/chat/history", h.GetChatHistory)
	auth.DELETE("/chat/history", h.ClearChatHistory)

	// agent config
	auth.GET("/config", h.GetConfig)
	auth.PUT("/config/provider", h.SetProvider)
	auth.GET("/character", h.GetCharacter)
	auth.PUT("/character", h.UpdateCharacter)
	auth.PUT("/config/api-key", h.StoreAPIKey)

	// native wallet
	auth.GET("/wallet/balance", h.GetWalletBalance)
	auth.GET("/wallet/status", h.GetWalletStatus)
	auth.POST("/wallet/send", h.SendICP)
	auth.GET("/wallet/transactions", h.GetWalletHistory)

	// evm wallet
	auth.PUT("/evm/chains", h.ConfigureEVMChain)
	auth.GET("/evm/chains", h.ListEVMChains)
	auth.GET("/evm/chains/:chain_id/balance", h.GetEVMBalance)
	auth.GET("/evm/chains/:chain_id/wallet", h.GetEVMWalletInfo)
	auth.POST("/evm/send", h.SendEVMNative)
	auth.GET("/evm/transactions", h.GetEVMHistory)

	// social integration
	auth.PUT("/social/twitter", h.ConfigureTwitter)
	auth.PUT("/social/discord", h.ConfigureDiscord)
	auth.PUT("/social/platforms", h.SetEnabledPlatforms)
	auth.PUT("/social/auto-reply", h.SetAutoReply)
	auth.POST("/social/polling/start", h.StartPolling)
	auth.POST("/social/polling/stop", h.StopPolling)
	auth.POST("/social/poll", h.TriggerPoll)
	auth.POST("/social/post", h.PostNow)
	auth.GET("/social/status", h.GetSocialStatus)
	auth.GET("/social/inbox", h.GetSocialInbox)
	auth.POST("/social/schedule", h.SchedulePost)
	auth.DELETE("/social/schedule/:id", h.CancelScheduledPost)
	auth.GET("/social/schedule", h.ListScheduledPosts)
	auth.POST("/social/auto-post/start", h.StartAutoPosting)
	auth.POST("/social/auto-post/stop", h.StopAutoPosting)
	auth.POST("/social/auto-post/trigger", h.TriggerAutoPost)
	auth.GET("/social/auto-post", h.GetAutoPostConfig)

	return r
}
