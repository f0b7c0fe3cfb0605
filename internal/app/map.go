package app

import (
	"fmt"
	"strings"
	"time"

	"airabot/internal/anilist"
	"airabot/internal/config"
	"airabot/internal/dispatch"
	"airabot/internal/subscription"
	"airabot/internal/sweep"
	telegram "airabot/internal/transport/telegram"
)

// Config section mapping lives here so both NewApp and the reload
// validator parse sections the same way.

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return telegram.Config{}, fmt.Errorf("telegram.token is required")
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (subscription.Config, error) {
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return subscription.Config{}, fmt.Errorf("storage.path is required")
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return subscription.Config{}, err
	}
	return subscription.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy.Milliseconds(),
	}, nil
}

func mapAniListConfig(cfg *config.Config) (anilist.Config, error) {
	if cfg.AniList.RatePerSec < 0 {
		return anilist.Config{}, fmt.Errorf("anilist.rate_per_sec must be >= 0")
	}
	timeout, err := config.ParseDurationField("anilist.timeout", cfg.AniList.Timeout)
	if err != nil {
		return anilist.Config{}, err
	}
	return anilist.Config{
		Endpoint:   cfg.AniList.Endpoint,
		RatePerSec: cfg.AniList.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapSweepConfig(cfg *config.Config) (sweep.Config, error) {
	if cfg.Sweep.SlowMultiplier < 0 {
		return sweep.Config{}, fmt.Errorf("sweep.slow_multiplier must be >= 0")
	}
	tick, err := config.ParseDurationField("sweep.tick", cfg.Sweep.Tick)
	if err != nil {
		return sweep.Config{}, err
	}
	ttl, err := config.ParseDurationField("sweep.tier_cache_ttl", cfg.Sweep.TierCacheTTL)
	if err != nil {
		return sweep.Config{}, err
	}
	return sweep.Config{
		Tick:           tick,
		SlowMultiplier: cfg.Sweep.SlowMultiplier,
		TierCacheTTL:   ttl,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	if cfg.Dispatch.RatePerSec < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	return dispatch.Config{RatePerSec: cfg.Dispatch.RatePerSec}, nil
}
