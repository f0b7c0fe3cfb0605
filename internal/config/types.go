package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	AniList  AniListConfig  `json:"anilist"`
	Sweep    SweepConfig    `json:"sweep"`
	Tier     TierConfig     `json:"tier,omitempty"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AniListConfig controls the upstream feed client.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - endpoint: "https://graphql.anilist.co"
//   - rate_per_sec: 1
//   - timeout: "15s"
type AniListConfig struct {
	Endpoint   string  `json:"endpoint,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// SweepConfig controls the periodic episode sweep.
//
// Defaults (when fields are omitted/zero):
//   - tick: "1m"
//   - slow_multiplier: 10
//   - tier_cache_ttl: "1h"
type SweepConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is a Go duration string; the fast tier is checked every tick.
	Tick string `json:"tick,omitempty"`
	// SlowMultiplier is how many ticks pass between slow-tier checks.
	SlowMultiplier int `json:"slow_multiplier,omitempty"`
	// TierCacheTTL bounds how long a chat's tier lookup is cached.
	TierCacheTTL string `json:"tier_cache_ttl,omitempty"`
}

// TierConfig declares which chats get fast-tier treatment.
// Chats not listed fall into the slow tier.
type TierConfig struct {
	FastChatIDs []int64 `json:"fast_chat_ids,omitempty"`
}

// DispatchConfig controls outbound notification pacing.
//
// Defaults: rate_per_sec: 3 (Telegram-friendly).
type DispatchConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
