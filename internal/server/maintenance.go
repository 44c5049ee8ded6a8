package server

import (
	"context"
	"log/slog"
	"time"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/hub"
)

// Maintain drops connections idle for longer than staleAfter and expired
// cached tokens every interval until ctx ends.
func Maintain(ctx context.Context, h *hub.Hub, tokens *auth.VerifyCache, interval, staleAfter time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweep(h, tokens, now, staleAfter)
		}
	}
}

func sweep(h *hub.Hub, tokens *auth.VerifyCache, now time.Time, staleAfter time.Duration) {
	stale := h.SweepStale(now.Add(-staleAfter))
	expired := tokens.Cleanup()
	if stale > 0 || expired > 0 {
		slog.Info("maintenance sweep", "stale_connections", stale, "expired_tokens", expired, "cached_tokens", tokens.Len())
	}
}
