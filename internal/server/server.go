// Package server exposes the game over HTTP and websocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tonrush/internal/auth"
	"tonrush/internal/config"
	"tonrush/internal/engine"
	"tonrush/internal/gift"
	"tonrush/internal/ledger"
	"tonrush/internal/notification"
	"tonrush/internal/security"
	"tonrush/internal/withdrawal"
)

type Server struct {
	router   *gin.Engine
	http     *http.Server
	cfg      *config.Config
	auth     *auth.Manager
	engine   *engine.Engine
	ledger   *ledger.Ledger
	desk     *withdrawal.Desk
	verifier *gift.Verifier
	hub      *notification.Hub
	limiter  *security.IPRateLimiter
}

func New(cfg *config.Config, am *auth.Manager, e *engine.Engine, l *ledger.Ledger,
	desk *withdrawal.Desk, verifier *gift.Verifier, hub *notification.Hub) *Server {

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		cfg:      cfg,
		auth:     am,
		engine:   e,
		ledger:   l,
		desk:     desk,
		verifier: verifier,
		hub:      hub,
		limiter:  security.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.securityMiddleware())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/ws", s.hub.Handle)

	api := s.router.Group("/api")
	{
		api.POST("/auth", s.Authenticate)
		api.POST("/admin/login", s.AdminLogin)

		authenticated := api.Group("")
		authenticated.Use(s.authMiddleware(false))
		{
			authenticated.GET("/account", s.GetAccount)
			authenticated.GET("/account/transactions", s.GetTransactions)
			authenticated.GET("/account/bets", s.GetBetHistory)

			authenticated.GET("/round", s.GetCurrentRound)
			authenticated.GET("/round/history", s.GetRoundHistory)
			authenticated.POST("/bet", s.PlaceBet)
			authenticated.POST("/cashout", s.CashOut)

			authenticated.POST("/withdraw", s.RequestWithdrawal)
			authenticated.GET("/withdrawals", s.GetWithdrawals)

			authenticated.POST("/gift/request", s.CreateGiftRequest)
			authenticated.POST("/gift/verify", s.VerifyGiftDeposit)
			authenticated.GET("/gift", s.GetGiftRequest)
		}

		admin := api.Group("/admin")
		admin.Use(s.authMiddleware(true))
		{
			admin.POST("/round/new", s.ForceNewRound)
			admin.POST("/round/crash", s.ForceCrash)
			admin.POST("/balance", s.SetBalance)
			admin.GET("/withdrawals", s.PendingWithdrawals)
			admin.POST("/withdrawals/:id", s.ProcessWithdrawal)
			admin.GET("/stats", s.GetStats)
		}
	}
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.ListenAddr).Info("server: listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Router is exposed for handler tests.
func (s *Server) Router() *gin.Engine { return s.router }
