package main

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"tonrush/internal/auth"
	"tonrush/internal/config"
	"tonrush/internal/engine"
	"tonrush/internal/gift"
	"tonrush/internal/jobs"
	"tonrush/internal/ledger"
	"tonrush/internal/notification"
	"tonrush/internal/server"
	"tonrush/internal/store"
	"tonrush/internal/withdrawal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{})

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres connect failed")
		}
		st = pg
	} else {
		log.Warn("no DATABASE_URL set, state will not survive restarts")
		st = store.NewMemory()
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := ledger.New(st)
	if err := l.Load(ctx); err != nil {
		log.WithError(err).Fatal("ledger load failed")
	}
	defer l.Close()

	desk := withdrawal.NewDesk(l, st, cfg.MinWithdraw)
	if err := desk.Load(ctx); err != nil {
		log.WithError(err).Fatal("withdrawal load failed")
	}

	feed := gift.NewHTTPFeed(cfg.TonAPIURL)
	verifier := gift.NewVerifier(l, st, feed, cfg.DepositWallet, gift.PriceTable{
		Items:       cfg.GiftItemPrices,
		Collections: cfg.GiftCollectionPrices,
		Default:     cfg.GiftDefaultPrice,
	})
	if err := verifier.Load(ctx); err != nil {
		log.WithError(err).Fatal("gift verifier load failed")
	}

	hub := notification.NewHub()

	eng := engine.New(engine.Config{
		HouseEdge:     cfg.HouseEdge,
		MinBet:        cfg.MinBet,
		MaxBet:        cfg.MaxBet,
		MaxMultiplier: cfg.MaxMultiplier,
		BettingTime:   cfg.BettingTime,
		CrashDelay:    cfg.CrashDelay,
		TickRate:      cfg.TickRate,
	}, l, st, hub)
	hub.AttachGame(eng)
	eng.Start()
	go eng.Run(ctx)

	scheduler, err := jobs.NewScheduler(verifier)
	if err != nil {
		log.WithError(err).Fatal("scheduler setup failed")
	}
	scheduler.Start()
	defer scheduler.Stop()

	am := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	srv := server.New(cfg, am, eng, l, desk, verifier, hub)

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("shutdown complete")
}
