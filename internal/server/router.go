package server

import (
	"net/http"
	"time"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/bridge"
	"bugwars-sync/internal/handler"
	"bugwars-sync/internal/hub"
	"bugwars-sync/internal/middleware"
	"bugwars-sync/internal/store"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	// Hub defaults to a fresh hub.
	Hub *hub.Hub
	// Tokens defaults to a cache over TokenConfig.
	Tokens     *auth.VerifyCache
	OnTransfer func(userID string, tr bridge.Transfer)
}

func (d *Deps) setDefaults() {
	if d.Hub == nil {
		d.Hub = hub.New()
	}
	if d.Tokens == nil {
		d.Tokens = auth.NewVerifyCache(d.TokenConfig, auth.DefaultCacheSize)
	}
}

func NewRouter(deps Deps) *gin.Engine {
	deps.setDefaults()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig}
	r.POST("/v1/auth/login", middleware.RateLimitMiddleware(loginLimiter), authHandler.Login)
	r.POST("/v1/auth/refresh", authHandler.Refresh)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.Tokens))

	stateHandler := &handler.StateHandler{Store: deps.Store}
	protected.GET("/player", stateHandler.Player)
	protected.PUT("/player", stateHandler.PutPlayer)
	protected.GET("/inventory", stateHandler.Inventory)

	wsHandler := &handler.WebSocketHandler{
		Hub:         deps.Hub,
		Store:       deps.Store,
		TokenConfig: deps.TokenConfig,
		Tokens:      deps.Tokens,
		OnTransfer:  deps.OnTransfer,
	}
	deps.Hub.OnOffline(wsHandler.PlayerLeft)
	r.GET("/ws", wsHandler.Serve)

	return r
}
