package snapshot

import (
	"github.com/saltyorg/triviasearch/internal/config"
)

// LoadConfig builds a loader Config from settings, falling back to DefaultConfig.
func LoadConfig(l *config.Loader) Config {
	cfg := DefaultConfig()
	timeouts := config.LoadTimeouts(l)

	cfg.Retry = RetryPolicy{
		MaxAttempts: l.Int(config.KeyRetryMaxAttempts, cfg.Retry.MaxAttempts),
		BaseDelay:   l.Duration(config.KeyRetryBaseDelay, cfg.Retry.BaseDelay),
		MaxDelay:    l.Duration(config.KeyRetryMaxDelay, cfg.Retry.MaxDelay),
	}
	if cfg.Retry.MaxAttempts < 0 {
		cfg.Retry.MaxAttempts = 0
	}
	cfg.Digest = l.String(config.KeySnapshotDigest, "")
	cfg.FetchTimeout = timeouts.Fetch
	cfg.PrepareTimeout = timeouts.EnginePrepare

	return cfg
}
