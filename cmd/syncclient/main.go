// Command syncclient is a headless game client. It connects to a peer,
// keeps the player and inventory in sync and logs every change.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bugwars-sync/internal/client"
	"bugwars-sync/internal/config"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/session"
)

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	host, _ := os.Hostname()
	c := client.New(client.Options{Config: cfg, HostIdentity: host, AutoReconnect: true})
	defer c.Close()

	c.Player().Subscribe(func(p model.PlayerData) {
		slog.Info("player changed", "player_id", p.PlayerID, "level", p.Level, "score", p.Score)
	})
	c.Inventory().Subscribe(func(items []model.InventoryItem) {
		slog.Info("inventory changed", "items", len(items))
	})
	c.Sessions().Subscribe(func(st session.State) {
		slog.Info("session changed", "user_id", st.UserID, "authenticated", st.IsAuthenticated)
	})
	c.OnPeerError(func(e model.PeerError) {
		slog.Warn("peer error", "type", e.Type, "message", e.Message)
	})
	c.OnPlayerJoined(func(p model.PlayerData) {
		slog.Info("player joined", "player_id", p.PlayerID, "name", p.DisplayName)
	})
	c.OnPlayerLeft(func(userID string) {
		slog.Info("player left", "player_id", userID)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		slog.Error("start", "err", err)
		os.Exit(1)
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client stopped", "err", err)
		os.Exit(1)
	}
}
