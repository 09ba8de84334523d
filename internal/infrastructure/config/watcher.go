package config

import (
	"context"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// Watch polls the config file and emits on the returned channel whenever
// its content hash changes. The channel closes when the context ends.
func Watch(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	changes := make(chan struct{}, 1)

	// Baseline before the goroutine starts, so an edit landing right
	// after Watch returns is still detected.
	last, _ := fileHash(path)

	go func() {
		defer close(changes)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h, err := fileHash(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("config watch read failed")
					continue
				}
				if h == last {
					continue
				}
				last = h
				select {
				case changes <- struct{}{}:
				default:
				}
			}
		}
	}()

	return changes
}

func fileHash(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}
