package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectWithBackoff drops the connection and redials the last URL with
// jittered exponential backoff until it connects, ctx ends or maxElapsed
// passes. A zero maxElapsed retries until ctx ends. The session never calls
// this on its own.
func (s *Session) ReconnectWithBackoff(ctx context.Context, maxElapsed time.Duration) error {
	target := s.URL()
	if target == "" {
		return ErrNoURL
	}
	s.Disconnect()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("reconnect attempt failed", "url", target, "err", err, "retry_in", next)
		}),
		backoff.WithMaxElapsedTime(maxElapsed),
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if s.IsConnected() {
			return struct{}{}, nil
		}
		if err := s.Connect(ctx, target); err != nil {
			return struct{}{}, err
		}
		if !s.IsConnected() {
			return struct{}{}, errInFlight
		}
		return struct{}{}, nil
	}, opts...)
	return err
}
