package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"airabot/internal/anilist"
	"airabot/internal/eventbus"
	"airabot/internal/subscription"
	"airabot/internal/tier"
	logx "airabot/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	subs    map[string]map[int]subscription.Subscription
	listErr error
	setErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: map[string]map[int]subscription.Subscription{}}
}

func (s *fakeStore) add(chatID string, animeID, episodes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[chatID] == nil {
		s.subs[chatID] = map[int]subscription.Subscription{}
	}
	s.subs[chatID][animeID] = subscription.Subscription{
		ChatID: chatID, AnimeID: animeID, Title: fmt.Sprintf("series-%d", animeID), Episodes: episodes,
	}
}

func (s *fakeStore) ListAllGroupedByChat(context.Context) (map[string][]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make(map[string][]subscription.Subscription, len(s.subs))
	for chat, m := range s.subs {
		for _, sub := range m {
			out[chat] = append(out[chat], sub)
		}
	}
	return out, nil
}

func (s *fakeStore) SetProgress(_ context.Context, animeID, episodes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	for chat, m := range s.subs {
		if sub, ok := m[animeID]; ok {
			sub.Episodes = episodes
			s.subs[chat][animeID] = sub
		}
	}
	return nil
}

type fakeFeed struct {
	mu    sync.Mutex
	media map[int]*anilist.Media
	errs  map[int]error
	calls int
}

func (f *fakeFeed) Details(_ context.Context, animeID int) (*anilist.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[animeID]; ok {
		return nil, err
	}
	m, ok := f.media[animeID]
	if !ok {
		return nil, anilist.ErrNotFound
	}
	return m, nil
}

type notification struct {
	chatID  string
	animeID int
	episode int
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []notification
	errOn map[string]error
}

func (d *fakeDispatcher) NotifyEpisode(_ context.Context, chatID string, media *anilist.Media, newEpisode int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.errOn[chatID]; ok {
		return err
	}
	d.sent = append(d.sent, notification{chatID: chatID, animeID: media.ID, episode: newEpisode})
	return nil
}

func (d *fakeDispatcher) notifications() []notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification(nil), d.sent...)
}

func intp(v int) *int { return &v }

func releasing(id, nextEpisode int) *anilist.Media {
	return &anilist.Media{
		ID:                id,
		Title:             anilist.Title{Romaji: fmt.Sprintf("series-%d", id)},
		Status:            "RELEASING",
		NextAiringEpisode: &anilist.NextAiringEpisode{Episode: nextEpisode},
	}
}

func newTestEngine(cfg Config, store Store, feed Feed, disp Dispatcher, fast ...int64) *Engine {
	return NewEngine(cfg, store, feed, disp, tier.NewStatic(fast),
		NewTierCache(time.Hour, nil), eventbus.New(), logx.Nop())
}

func TestFastTierCheckedEveryTick(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 0)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 2)}}
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 10}, store, feed, disp, 100)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		eng.Tick(ctx)
	}
	if feed.calls != 3 {
		t.Fatalf("fast chat should be checked every tick, got %d checks", feed.calls)
	}
}

func TestSlowTierCheckedOnMultiplesOnly(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 5) // not in fast list
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 6)}}
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 5}, store, feed, disp)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		eng.Tick(ctx)
	}
	// Cycles 5 and 10 include the slow tier.
	if feed.calls != 2 {
		t.Fatalf("slow chat should be checked on cycle multiples only, got %d checks", feed.calls)
	}
}

func TestAdvanceFiresOnceThenAgainOnNewEpisode(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 5)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 7)}} // episode 6 is out
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 1}, store, feed, disp)

	ctx := context.Background()
	eng.Tick(ctx)
	if got := disp.notifications(); len(got) != 1 || got[0].episode != 6 {
		t.Fatalf("expected one notification for episode 6, got %+v", got)
	}

	// Same upstream state: no repeat announcement.
	eng.Tick(ctx)
	if got := disp.notifications(); len(got) != 1 {
		t.Fatalf("repeated announcement for unchanged state: %+v", got)
	}

	// Episode 7 comes out.
	feed.mu.Lock()
	feed.media[1] = releasing(1, 8)
	feed.mu.Unlock()
	eng.Tick(ctx)
	got := disp.notifications()
	if len(got) != 2 || got[1].episode != 7 {
		t.Fatalf("expected second notification for episode 7, got %+v", got)
	}
}

func TestBroadcastNotifiesEverySubscribedChat(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 5)
	store.add("200", 1, 5)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 7)}}
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 1}, store, feed, disp)

	eng.Tick(context.Background())
	got := disp.notifications()
	if len(got) != 2 {
		t.Fatalf("expected both chats notified, got %+v", got)
	}
	// No repeats once progress is committed.
	eng.Tick(context.Background())
	if got := disp.notifications(); len(got) != 2 {
		t.Fatalf("broadcast repeated: %+v", got)
	}
}

func TestSeriesErrorDoesNotStopChat(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 0)
	store.add("100", 2, 5)
	feed := &fakeFeed{
		media: map[int]*anilist.Media{2: releasing(2, 7)},
		errs:  map[int]error{1: errors.New("upstream 500")},
	}
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 1}, store, feed, disp)

	eng.Tick(context.Background())
	got := disp.notifications()
	if len(got) != 1 || got[0].animeID != 2 {
		t.Fatalf("healthy series should still be announced, got %+v", got)
	}
}

func TestSendFailureDoesNotRollBackProgress(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 5)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 7)}}
	disp := &fakeDispatcher{errOn: map[string]error{"100": errors.New("chat blocked bot")}}
	eng := newTestEngine(Config{SlowMultiplier: 1}, store, feed, disp)

	eng.Tick(context.Background())
	store.mu.Lock()
	got := store.subs["100"][1].Episodes
	store.mu.Unlock()
	if got != 6 {
		t.Fatalf("progress should commit before send, got %d", got)
	}
}

func TestProgressFailureSkipsNotification(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 5)
	store.setErr = errors.New("disk full")
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 7)}}
	disp := &fakeDispatcher{}
	eng := newTestEngine(Config{SlowMultiplier: 1}, store, feed, disp)

	eng.Tick(context.Background())
	if got := disp.notifications(); len(got) != 0 {
		t.Fatalf("notification sent despite failed progress commit: %+v", got)
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 0)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 2)}}
	disp := &fakeDispatcher{}
	bus := eventbus.New()
	eng := NewEngine(Config{SlowMultiplier: 1}, store, feed, disp,
		tier.NewStatic(nil), NewTierCache(time.Hour, nil), bus, logx.Nop())

	events, unsub := bus.Subscribe(8)
	defer unsub()

	eng.sweeping.Store(true)
	eng.Tick(context.Background())
	eng.sweeping.Store(false)

	if feed.calls != 0 {
		t.Fatalf("skipped tick still swept: %d feed calls", feed.calls)
	}
	select {
	case ev := <-events:
		if ev.Type != EventSweepSkipped {
			t.Fatalf("expected %s, got %s", EventSweepSkipped, ev.Type)
		}
	default:
		t.Fatalf("no skip event published")
	}

	// Once released, ticking works again.
	eng.Tick(context.Background())
	if feed.calls == 0 {
		t.Fatalf("tick after release did not sweep")
	}
}

func TestTierLookupErrorFallsBackToSlow(t *testing.T) {
	store := newFakeStore()
	store.add("100", 1, 0)
	feed := &fakeFeed{media: map[int]*anilist.Media{1: releasing(1, 2)}}
	disp := &fakeDispatcher{}
	checker := &flakyChecker{err: errors.New("tier source down")}
	cache := NewTierCache(time.Hour, nil)
	eng := NewEngine(Config{SlowMultiplier: 10}, store, feed, disp,
		checker, cache, eventbus.New(), logx.Nop())

	ctx := context.Background()
	eng.Tick(ctx) // cycle 1, slow not due, tier lookup fails
	if feed.calls != 0 {
		t.Fatalf("chat swept despite failed tier lookup on a fast-only tick")
	}
	if _, ok := cache.Get("100"); ok {
		t.Fatalf("error result must not be cached")
	}

	// Tier source recovers and reports fast.
	checker.mu.Lock()
	checker.err = nil
	checker.fast = true
	checker.mu.Unlock()
	eng.Tick(ctx)
	if feed.calls != 1 {
		t.Fatalf("recovered fast chat not swept: %d calls", feed.calls)
	}
	if fast, ok := cache.Get("100"); !ok || !fast {
		t.Fatalf("successful lookup should be cached")
	}
}

type flakyChecker struct {
	mu   sync.Mutex
	fast bool
	err  error
}

func (c *flakyChecker) IsFastTier(context.Context, string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fast, c.err
}

func TestTierCacheTTL(t *testing.T) {
	now := time.Unix(0, 0)
	cache := NewTierCache(time.Minute, func() time.Time { return now })

	cache.Set("100", true)
	if fast, ok := cache.Get("100"); !ok || !fast {
		t.Fatalf("fresh entry missing")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("100"); ok {
		t.Fatalf("expired entry served")
	}
}
