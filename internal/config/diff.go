package config

import (
	"reflect"
	"sort"
	"strings"

	logx "airabot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// AniList feed client
	if !reflect.DeepEqual(oldCfg.AniList, newCfg.AniList) {
		changed = append(changed, "anilist")
		attrs = append(attrs,
			logx.String("anilist.endpoint", strings.TrimSpace(newCfg.AniList.Endpoint)),
			logx.Any("anilist.rate_per_sec", newCfg.AniList.RatePerSec),
			logx.String("anilist.timeout", strings.TrimSpace(newCfg.AniList.Timeout)),
		)
	}

	// Sweep cadence
	if !reflect.DeepEqual(oldCfg.Sweep, newCfg.Sweep) {
		changed = append(changed, "sweep")
		attrs = append(attrs,
			logx.Bool("sweep.enabled", newCfg.Sweep.Enabled),
			logx.String("sweep.tick", strings.TrimSpace(newCfg.Sweep.Tick)),
			logx.Int("sweep.slow_multiplier", newCfg.Sweep.SlowMultiplier),
			logx.String("sweep.tier_cache_ttl", strings.TrimSpace(newCfg.Sweep.TierCacheTTL)),
		)
	}

	// Tier membership
	if !reflect.DeepEqual(oldCfg.Tier.FastChatIDs, newCfg.Tier.FastChatIDs) {
		changed = append(changed, "tier")
		attrs = append(attrs,
			logx.Int("tier.fast_chat_count", len(newCfg.Tier.FastChatIDs)),
		)
	}

	// Dispatch pacing
	if oldCfg.Dispatch.RatePerSec != newCfg.Dispatch.RatePerSec {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		)
	}

	// Storage
	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
