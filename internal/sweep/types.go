// Package sweep periodically re-checks subscribed series for newly
// released episodes and hands advances to the dispatcher.
package sweep

import (
	"context"
	"time"

	"airabot/internal/anilist"
	"airabot/internal/subscription"
)

// Store is the slice of the subscription store the sweep needs.
type Store interface {
	ListAllGroupedByChat(ctx context.Context) (map[string][]subscription.Subscription, error)
	SetProgress(ctx context.Context, animeID, episodes int) error
}

// Feed fetches fresh airing metadata for one series.
type Feed interface {
	Details(ctx context.Context, animeID int) (*anilist.Media, error)
}

// Dispatcher delivers one release announcement to one chat.
type Dispatcher interface {
	NotifyEpisode(ctx context.Context, chatID string, media *anilist.Media, newEpisode int) error
}

// Config controls sweep cadence.
//
// Every tick the fast tier is checked. Slow-tier chats are only checked
// on ticks where the running cycle count is a multiple of SlowMultiplier.
type Config struct {
	Tick           time.Duration
	SlowMultiplier int
	TierCacheTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.SlowMultiplier <= 0 {
		c.SlowMultiplier = 10
	}
	if c.TierCacheTTL <= 0 {
		c.TierCacheTTL = time.Hour
	}
	return c
}

// Event types published on the bus.
const (
	EventSweepStarted    = "sweep.started"
	EventSweepFinished   = "sweep.finished"
	EventSweepSkipped    = "sweep.skipped"
	EventEpisodeAdvanced = "episode.advanced"
)

// SweepStats summarizes one completed sweep; attached to EventSweepFinished.
type SweepStats struct {
	Cycle        uint64
	SlowIncluded bool
	Chats        int
	Checked      int
	Advanced     int
	Errors       int
	Took         time.Duration
}

// AdvanceInfo is attached to EventEpisodeAdvanced.
type AdvanceInfo struct {
	ChatID     string
	AnimeID    int
	Title      string
	NewEpisode int
}
