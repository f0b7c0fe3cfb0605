package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	"airabot/internal/anilist"
	"airabot/internal/subscription"
	kit "airabot/internal/transport"
	logx "airabot/pkg/logx"
)

type sentMessage struct {
	chat   int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   []sentMessage
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := sentMessage{chat: to.ChatID, text: text}
	if opt != nil {
		msg.markup, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.sent = append(f.sent, msg)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{chat: ref.ChatID, text: text})
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type memStore struct {
	mu   sync.Mutex
	subs []subscription.Subscription
}

func (s *memStore) Upsert(_ context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.subs {
		if cur.ChatID == sub.ChatID && cur.AnimeID == sub.AnimeID {
			s.subs[i] = sub
			return nil
		}
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *memStore) RemoveByTitle(_ context.Context, chatID, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0]
	removed := false
	for _, cur := range s.subs {
		if cur.ChatID == chatID && strings.EqualFold(cur.Title, title) {
			removed = true
			continue
		}
		kept = append(kept, cur)
	}
	s.subs = kept
	return removed, nil
}

func (s *memStore) RemoveAll(_ context.Context, chatID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subs[:0]
	n := 0
	for _, cur := range s.subs {
		if cur.ChatID == chatID {
			n++
			continue
		}
		kept = append(kept, cur)
	}
	s.subs = kept
	return n, nil
}

func (s *memStore) ListForChat(_ context.Context, chatID string) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []subscription.Subscription
	for _, cur := range s.subs {
		if cur.ChatID == chatID {
			out = append(out, cur)
		}
	}
	return out, nil
}

type memCatalog struct {
	results []anilist.Media
	byID    map[int]*anilist.Media
}

func (c *memCatalog) Search(context.Context, string) ([]anilist.Media, error) {
	if len(c.results) == 0 {
		return nil, anilist.ErrNotFound
	}
	return c.results, nil
}

func (c *memCatalog) Details(_ context.Context, animeID int) (*anilist.Media, error) {
	m, ok := c.byID[animeID]
	if !ok {
		return nil, anilist.ErrNotFound
	}
	return m, nil
}

func intp(v int) *int { return &v }

func newTestRouter(catalog Catalog) (*Router, *fakeAdapter, *memStore) {
	adapter := &fakeAdapter{}
	store := &memStore{}
	r := NewRouter(adapter, store, catalog, logx.Nop())
	return r, adapter, store
}

func messageReq(text string) *Request {
	return &Request{
		Update: kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, Text: text}},
		Chat:   kit.ChatTarget{ChatID: 100},
	}
}

func runCommand(t *testing.T, r *Router, text string) {
	t.Helper()
	cmd, args, ok := parseCommand(text)
	if !ok {
		t.Fatalf("parseCommand(%q) failed", text)
	}
	req := messageReq(text)
	req.Command = cmd
	req.Args = args
	if err := r.route(context.Background(), req); err != nil {
		t.Fatalf("route(%q): %v", text, err)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		cmd  string
		args []string
		ok   bool
	}{
		{"/subscribe one piece", "subscribe", []string{"one", "piece"}, true},
		{"/list@airabot", "list", nil, true},
		{"/LIST", "list", nil, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"  /about  ", "about", nil, true},
	}
	for _, tc := range cases {
		cmd, args, ok := parseCommand(tc.in)
		if ok != tc.ok || cmd != tc.cmd || len(args) != len(tc.args) {
			t.Errorf("parseCommand(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tc.in, cmd, args, ok, tc.cmd, tc.args, tc.ok)
		}
	}
}

func TestSubscribeSingleResult(t *testing.T) {
	media := anilist.Media{
		ID:       10,
		Title:    anilist.Title{Romaji: "Frieren"},
		Episodes: intp(28),
		Status:   "FINISHED",
	}
	r, adapter, store := newTestRouter(&memCatalog{
		results: []anilist.Media{media},
		byID:    map[int]*anilist.Media{10: &media},
	})

	runCommand(t, r, "/subscribe frieren")

	subs, _ := store.ListForChat(context.Background(), "100")
	if len(subs) != 1 || subs[0].AnimeID != 10 {
		t.Fatalf("subscription not stored: %+v", subs)
	}
	// Progress seeds to the already-released count.
	if subs[0].Episodes != 28 {
		t.Fatalf("expected progress seeded to 28, got %d", subs[0].Episodes)
	}
	if !strings.Contains(adapter.last(t).text, "Subscription Added!") {
		t.Fatalf("missing confirmation: %q", adapter.last(t).text)
	}

	// Subscribing again is reported, not duplicated.
	runCommand(t, r, "/subscribe frieren")
	subs, _ = store.ListForChat(context.Background(), "100")
	if len(subs) != 1 {
		t.Fatalf("duplicate subscription stored")
	}
	if !strings.Contains(adapter.last(t).text, "already subscribed") {
		t.Fatalf("missing already-subscribed notice: %q", adapter.last(t).text)
	}
}

func TestSubscribeAmbiguousShowsMenu(t *testing.T) {
	results := []anilist.Media{
		{ID: 1, Title: anilist.Title{Romaji: "A"}, SeasonYear: 2020},
		{ID: 2, Title: anilist.Title{Romaji: "B"}, SeasonYear: 2024},
	}
	r, adapter, store := newTestRouter(&memCatalog{results: results})

	runCommand(t, r, "/subscribe a")

	msg := adapter.last(t)
	if !strings.Contains(msg.text, "select one") {
		t.Fatalf("expected pick prompt, got %q", msg.text)
	}
	if msg.markup == nil || len(msg.markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 inline rows, got %+v", msg.markup)
	}
	if got := msg.markup.InlineKeyboard[1][0].Data; !strings.Contains(got, "2") {
		t.Fatalf("unexpected callback data: %q", got)
	}
	subs, _ := store.ListForChat(context.Background(), "100")
	if len(subs) != 0 {
		t.Fatalf("nothing should be stored before a pick")
	}
}

func TestPickCallbackSubscribesAndEdits(t *testing.T) {
	media := anilist.Media{ID: 2, Title: anilist.Title{Romaji: "B"}, Status: "RELEASING",
		NextAiringEpisode: &anilist.NextAiringEpisode{Episode: 6, AiringAt: 1700000000, TimeUntilAiring: 3600}}
	r, adapter, store := newTestRouter(&memCatalog{byID: map[int]*anilist.Media{2: &media}})

	req := &Request{
		Update: kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
			ID: "cb1", ChatID: 100, MessageID: 7, Data: "sub:pick:2",
		}},
		Chat:    kit.ChatTarget{ChatID: 100},
		Command: "sub:pick",
		Payload: "2",
	}
	if err := r.route(context.Background(), req); err != nil {
		t.Fatalf("route callback: %v", err)
	}

	subs, _ := store.ListForChat(context.Background(), "100")
	if len(subs) != 1 || subs[0].AnimeID != 2 {
		t.Fatalf("pick did not subscribe: %+v", subs)
	}
	// Episode 6 is next, so 5 are already out.
	if subs[0].Episodes != 5 {
		t.Fatalf("expected seed 5, got %d", subs[0].Episodes)
	}
	if len(adapter.edits) != 1 || !strings.Contains(adapter.edits[0].text, "Subscription Added!") {
		t.Fatalf("pick should edit the menu message: %+v", adapter.edits)
	}
	if len(adapter.answers) != 1 {
		t.Fatalf("callback not answered")
	}
}

func TestUnsubscribe(t *testing.T) {
	r, adapter, store := newTestRouter(&memCatalog{})
	_ = store.Upsert(context.Background(), subscription.Subscription{ChatID: "100", AnimeID: 1, Title: "One Piece"})

	runCommand(t, r, "/unsubscribe ONE PIECE")
	if !strings.Contains(adapter.last(t).text, "Successfully unsubscribed") {
		t.Fatalf("unexpected reply: %q", adapter.last(t).text)
	}

	runCommand(t, r, "/unsubscribe one piece")
	if !strings.Contains(adapter.last(t).text, "Could not find") {
		t.Fatalf("unexpected reply: %q", adapter.last(t).text)
	}
}

func TestUnsubscribeAllReportsCount(t *testing.T) {
	r, adapter, store := newTestRouter(&memCatalog{})
	ctx := context.Background()
	_ = store.Upsert(ctx, subscription.Subscription{ChatID: "100", AnimeID: 1, Title: "A"})
	_ = store.Upsert(ctx, subscription.Subscription{ChatID: "100", AnimeID: 2, Title: "B"})
	_ = store.Upsert(ctx, subscription.Subscription{ChatID: "200", AnimeID: 3, Title: "C"})

	runCommand(t, r, "/unsubscribe_all")
	if !strings.Contains(adapter.last(t).text, "2 anime") {
		t.Fatalf("unexpected reply: %q", adapter.last(t).text)
	}

	subs, _ := store.ListForChat(ctx, "200")
	if len(subs) != 1 {
		t.Fatalf("other chat's subscriptions were removed")
	}
}

func TestListEmpty(t *testing.T) {
	r, adapter, _ := newTestRouter(&memCatalog{})
	runCommand(t, r, "/list")
	if !strings.Contains(adapter.last(t).text, "no anime subscriptions") {
		t.Fatalf("unexpected reply: %q", adapter.last(t).text)
	}
}

func TestListRendersAiringInfo(t *testing.T) {
	media := anilist.Media{ID: 1, Title: anilist.Title{Romaji: "A"}, Episodes: intp(12), Status: "FINISHED"}
	r, adapter, store := newTestRouter(&memCatalog{byID: map[int]*anilist.Media{1: &media}})
	_ = store.Upsert(context.Background(), subscription.Subscription{ChatID: "100", AnimeID: 1, Title: "A", Episodes: 12})

	runCommand(t, r, "/list")
	text := adapter.last(t).text
	if !strings.Contains(text, "Episodes: 12/12") || !strings.Contains(text, "Series completed") {
		t.Fatalf("unexpected list body:\n%s", text)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("line of a fairly ordinary length for a chat message\n")
	}
	chunks := splitTelegramText(b.String(), 1000, "HTML")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks")
	}
	for i, c := range chunks {
		if len([]rune(c)) > 1000 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		if strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has trailing newline", i)
		}
	}
}
