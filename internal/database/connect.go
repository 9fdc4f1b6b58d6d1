package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// waitReady pings a backing store until it answers. Containers started
// together with the server often accept connections a few seconds late,
// so failures are retried with a doubling backoff up to attempts tries.
func waitReady(ctx context.Context, store string, attempts int, ping func(context.Context) error, log zerolog.Logger) error {
	if attempts < 1 {
		attempts = 1
	}

	backoff := initialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("ping %s after %d attempts: %w", store, attempt, err)
		}

		log.Warn().Err(err).
			Str("store", store).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("Store not ready, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ping %s: %w", store, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
