package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/config"
	"bugwars-sync/internal/hub"
	"bugwars-sync/internal/server"
	"bugwars-sync/internal/store"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadPeerConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	gin.SetMode(cfg.GinMode)
	st := store.NewWithOptions(store.Options{StateFile: cfg.StateFile, MaxSlots: cfg.InventorySlots})

	tokenCfg := auth.TokenConfig{
		Secret:        cfg.MasterSecret,
		AccessExpiry:  cfg.AccessTokenExpiry,
		RefreshExpiry: cfg.RefreshTokenExpiry,
		Issuer:        "bugwars-sync",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New()
	tokens := auth.NewVerifyCache(tokenCfg, cfg.TokenCacheSize)
	go server.Maintain(ctx, h, tokens, cfg.CleanupInterval, cfg.StaleTimeout)

	router := server.NewRouter(server.Deps{Store: st, TokenConfig: tokenCfg, Hub: h, Tokens: tokens})
	if err := server.Run(ctx, cfg, router); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
