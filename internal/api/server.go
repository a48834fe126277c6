package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/delivery"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/shop"
)

// Server is the REST API server for WrecksShop.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus

	// Dependencies
	ledger    *db.LedgerStore
	queue     *db.DeliveryStore
	players   *db.PlayerStore
	catalog   shop.ItemProvider
	purchases *shop.Service
	sweeper   *delivery.Sweeper
	executor  shop.CommandExecutor

	// HTTP server
	httpServer *http.Server
	router     *gin.Engine
}

// Dependencies bundles the components the API exposes.
type Dependencies struct {
	Ledger    *db.LedgerStore
	Queue     *db.DeliveryStore
	Players   *db.PlayerStore
	Catalog   shop.ItemProvider
	Purchases *shop.Service
	Sweeper   *delivery.Sweeper
	Executor  shop.CommandExecutor
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, deps Dependencies) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		ledger:    deps.Ledger,
		queue:     deps.Queue,
		players:   deps.Players,
		catalog:   deps.Catalog,
		purchases: deps.Purchases,
		sweeper:   deps.Sweeper,
		executor:  deps.Executor,
	}
}

// Start runs the API server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.GetShopData().APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	security := s.cfg.GetApplicationData().Security
	if security.TLSEnabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	var err error
	if security.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(security.TLSCertFile, security.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	security := s.cfg.GetApplicationData().Security
	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Tip4Serv-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	auth := NewAuthMiddleware(s.cfg)

	// ---- Public endpoints ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/shop/items", s.handleGetItems)
		public.GET("/leaderboard", s.handleGetLeaderboard)
	}

	// The Tip4Serv webhook authenticates with its own HMAC signature, not
	// the API token.
	router.POST("/tip4serv-webhook", s.handleTip4ServWebhook)

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())
	{
		protected.GET("/balance/:player_id", s.handleGetBalance)
		protected.GET("/transactions/:player_id", s.handleGetHistory)
		protected.GET("/transactions", s.handleGetRecent)
		protected.GET("/deliveries/pending", s.handleGetPending)
		protected.POST("/deliveries/redeliver", s.handleRedeliver)
		protected.POST("/purchase", s.handlePurchase)
		protected.POST("/credit", s.handleCredit)
		protected.POST("/transfer", s.handleTransfer)
		protected.POST("/link", s.handleLink)
		protected.GET("/servers/:name/test", s.handleTestServer)
		protected.GET("/monitor/cpu", s.handleGetCPUUsage)
		protected.GET("/monitor/memory", s.handleGetMemoryUsage)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
