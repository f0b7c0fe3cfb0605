package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"airabot/internal/anilist"
	"airabot/internal/episode"
	"airabot/internal/eventbus"
	"airabot/internal/subscription"
	"airabot/internal/tier"
	logx "airabot/pkg/logx"
)

// Engine drives the periodic sweep. One tick checks the fast tier; the
// slow tier joins every SlowMultiplier-th tick. Ticks never overlap: if
// the previous sweep is still running, the new tick is skipped whole.
type Engine struct {
	store      Store
	feed       Feed
	dispatcher Dispatcher
	checker    tier.Checker
	cache      *TierCache
	bus        eventbus.Bus
	log        logx.Logger
	cfg        Config

	cycle    atomic.Uint64
	sweeping atomic.Bool
}

func NewEngine(
	cfg Config,
	store Store,
	feed Feed,
	dispatcher Dispatcher,
	checker tier.Checker,
	cache *TierCache,
	bus eventbus.Bus,
	log logx.Logger,
) *Engine {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NewTierCache(cfg.TierCacheTTL, nil)
	}
	return &Engine{
		store:      store,
		feed:       feed,
		dispatcher: dispatcher,
		checker:    checker,
		cache:      cache,
		bus:        bus,
		log:        log.With(logx.String("comp", "sweep")),
		cfg:        cfg,
	}
}

// SetChecker swaps the tier source (config reload) and drops the cache.
func (e *Engine) SetChecker(c tier.Checker) {
	e.checker = c
	e.cache.Invalidate()
}

// Run schedules ticks and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", e.cfg.Tick)
	if _, err := c.AddFunc(spec, func() { e.Tick(ctx) }); err != nil {
		return fmt.Errorf("sweep: schedule %q: %w", spec, err)
	}
	c.Start()
	e.log.Info("sweep scheduled",
		logx.Duration("tick", e.cfg.Tick),
		logx.Int("slow_multiplier", e.cfg.SlowMultiplier))

	<-ctx.Done()
	stopped := c.Stop()
	// Let an in-flight tick drain, but don't hang shutdown on it.
	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Second):
		e.log.Warn("sweep did not drain before shutdown deadline")
	}
	return nil
}

// Tick runs one sweep cycle. It is safe to call concurrently; only one
// sweep runs at a time and overlapping calls are skipped, not queued.
func (e *Engine) Tick(ctx context.Context) {
	cycle := e.cycle.Add(1)
	if !e.sweeping.CompareAndSwap(false, true) {
		e.log.Debug("sweep still running; skipping tick", logx.Uint64("cycle", cycle))
		e.bus.Publish(eventbus.Event{Type: EventSweepSkipped, Data: cycle})
		return
	}
	defer e.sweeping.Store(false)

	slowDue := cycle%uint64(e.cfg.SlowMultiplier) == 0
	started := time.Now()
	e.bus.Publish(eventbus.Event{Type: EventSweepStarted, Data: cycle})

	// One snapshot per sweep. Subscriptions changed mid-sweep are picked
	// up next tick.
	grouped, err := e.store.ListAllGroupedByChat(ctx)
	if err != nil {
		e.log.Error("subscription snapshot failed", logx.Err(err), logx.Uint64("cycle", cycle))
		return
	}

	stats := SweepStats{Cycle: cycle, SlowIncluded: slowDue, Chats: len(grouped)}
	for chatID, subs := range grouped {
		if ctx.Err() != nil {
			return
		}
		if !e.due(ctx, chatID, slowDue) {
			continue
		}
		e.sweepChat(ctx, chatID, subs, &stats)
	}

	stats.Took = time.Since(started)
	e.log.Info("sweep finished",
		logx.Uint64("cycle", cycle),
		logx.Bool("slow_included", slowDue),
		logx.Int("chats", stats.Chats),
		logx.Int("checked", stats.Checked),
		logx.Int("advanced", stats.Advanced),
		logx.Int("errors", stats.Errors),
		logx.Duration("took", stats.Took))
	e.bus.Publish(eventbus.Event{Type: EventSweepFinished, Data: stats})
}

// due decides whether the chat is checked this tick. Tier lookups go
// through the cache; on a lookup error the chat is treated as slow for
// this tick only and the error result is NOT cached.
func (e *Engine) due(ctx context.Context, chatID string, slowDue bool) bool {
	if slowDue {
		return true
	}
	if fast, ok := e.cache.Get(chatID); ok {
		return fast
	}
	fast, err := e.checker.IsFastTier(ctx, chatID)
	if err != nil {
		e.log.Warn("tier lookup failed; treating chat as slow this tick",
			logx.String("chat_id", chatID), logx.Err(err))
		return false
	}
	e.cache.Set(chatID, fast)
	return fast
}

func (e *Engine) sweepChat(ctx context.Context, chatID string, subs []subscription.Subscription, stats *SweepStats) {
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if err := e.sweepOne(ctx, chatID, sub, stats); err != nil {
			// One broken series must not stop the rest of the chat.
			stats.Errors++
		}
	}
}

func (e *Engine) sweepOne(ctx context.Context, chatID string, sub subscription.Subscription, stats *SweepStats) error {
	stats.Checked++

	media, err := e.feed.Details(ctx, sub.AnimeID)
	if err != nil {
		if errors.Is(err, anilist.ErrNotFound) {
			e.log.Warn("series gone upstream; skipping",
				logx.String("chat_id", chatID),
				logx.Int("anime_id", sub.AnimeID),
				logx.String("title", sub.Title))
			return err
		}
		e.log.Warn("feed lookup failed; skipping",
			logx.String("chat_id", chatID),
			logx.Int("anime_id", sub.AnimeID),
			logx.Err(err))
		return err
	}

	latest, fire := episode.Decide(sub.Episodes, media.Snapshot())
	if !fire {
		return nil
	}

	// Commit progress BEFORE notifying. A failed send is an acceptable
	// miss; a failed commit would repeat the announcement every tick.
	if err := e.store.SetProgress(ctx, sub.AnimeID, latest); err != nil {
		e.log.Error("progress update failed",
			logx.Int("anime_id", sub.AnimeID),
			logx.Int("episode", latest),
			logx.Err(err))
		return err
	}

	if err := e.dispatcher.NotifyEpisode(ctx, chatID, media, latest); err != nil {
		e.log.Warn("episode announcement failed",
			logx.String("chat_id", chatID),
			logx.Int("anime_id", sub.AnimeID),
			logx.Int("episode", latest),
			logx.Err(err))
		return err
	}

	stats.Advanced++
	e.bus.Publish(eventbus.Event{Type: EventEpisodeAdvanced, Data: AdvanceInfo{
		ChatID:     chatID,
		AnimeID:    sub.AnimeID,
		Title:      sub.Title,
		NewEpisode: latest,
	}})
	return nil
}
