package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"airabot/internal/anilist"
	"airabot/internal/subscription"
	kit "airabot/internal/transport"
	logx "airabot/pkg/logx"
	"airabot/pkg/tgui"
)

func (r *Router) registerCommands() {
	r.register(&Command{
		Name:        "subscribe",
		Description: "Follow an anime for new-episode notifications",
		Usage:       "/subscribe <anime name>",
		Handle:      r.cmdSubscribe,
	})
	r.register(&Command{
		Name:        "unsubscribe",
		Description: "Stop notifications for an anime",
		Usage:       "/unsubscribe <anime name>",
		Handle:      r.cmdUnsubscribe,
	})
	r.register(&Command{
		Name:        "unsubscribe_all",
		Description: "Stop all anime notifications in this chat",
		Handle:      r.cmdUnsubscribeAll,
	})
	r.register(&Command{
		Name:        "list",
		Description: "Show this chat's subscriptions",
		Handle:      r.cmdList,
	})
	r.register(&Command{
		Name:        "about",
		Description: "What this bot does and how to use it",
		Handle:      r.cmdAbout,
	})

	r.callbacks[callbackScope+":pick"] = r.cbPickSeries
}

func chatKey(chat kit.ChatTarget) string {
	return strconv.FormatInt(chat.ChatID, 10)
}

func (r *Router) cmdSubscribe(ctx context.Context, req *Request) error {
	query := strings.TrimSpace(strings.Join(req.Args, " "))
	if query == "" {
		return r.reply(ctx, req, tgui.JoinH(" ",
			tgui.Esc("Usage:"), tgui.B("/subscribe <anime name>")))
	}

	results, err := r.catalog.Search(ctx, query)
	if err != nil {
		if errors.Is(err, anilist.ErrNotFound) {
			return r.reply(ctx, req, tgui.Esc("Could not find any anime with that name."))
		}
		r.log.Warn("search failed", logx.String("query", query), logx.Err(err))
		return r.reply(ctx, req, tgui.Esc("Search is unavailable right now, try again later."))
	}

	if len(results) == 1 {
		return r.completeSubscribe(ctx, req, &results[0], nil)
	}

	// Ambiguous: offer a pick menu, one button per match.
	menu := tgui.NewInline()
	for i := range results {
		m := &results[i]
		label := m.Title.Display()
		if m.SeasonYear > 0 {
			label = fmt.Sprintf("%s (%d)", label, m.SeasonYear)
		}
		menu.Row(tgui.Btn(label, tgui.Data(callbackScope, "pick", strconv.Itoa(m.ID))))
	}
	_, err = r.adapter.SendText(ctx, req.Chat, "Multiple anime found. Please select one:", &kit.SendOptions{
		ReplyMarkupAdapter: menu.Markup(),
	})
	return err
}

func (r *Router) cbPickSeries(ctx context.Context, req *Request) error {
	cb := req.Update.Callback
	animeID, err := strconv.Atoi(req.Payload)
	if err != nil {
		return r.adapter.AnswerCallback(ctx, cb.ID, "Broken selection, try /subscribe again.")
	}

	media, err := r.catalog.Details(ctx, animeID)
	if err != nil {
		if errors.Is(err, anilist.ErrNotFound) {
			return r.adapter.AnswerCallback(ctx, cb.ID, "That series no longer exists upstream.")
		}
		r.log.Warn("details failed", logx.Int("anime_id", animeID), logx.Err(err))
		return r.adapter.AnswerCallback(ctx, cb.ID, "Lookup failed, try again later.")
	}

	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if err := r.completeSubscribe(ctx, req, media, &ref); err != nil {
		return err
	}
	return r.adapter.AnswerCallback(ctx, cb.ID, "")
}

// completeSubscribe records the subscription and confirms it. When edit
// is set, the pick-menu message is rewritten in place instead of sending
// a new one.
func (r *Router) completeSubscribe(ctx context.Context, req *Request, media *anilist.Media, edit *kit.MessageRef) error {
	chatID := chatKey(req.Chat)
	title := media.Title.Display()

	subs, err := r.store.ListForChat(ctx, chatID)
	if err != nil {
		r.log.Error("subscription lookup failed", logx.String("chat_id", chatID), logx.Err(err))
		return r.deliver(ctx, req, edit, tgui.Esc("Something went wrong, try again later."), nil)
	}
	for _, sub := range subs {
		if sub.AnimeID == media.ID {
			return r.deliver(ctx, req, edit,
				tgui.Esc(fmt.Sprintf("You are already subscribed to %s.", title)), nil)
		}
	}

	// Seed progress with what is already out so old episodes don't get
	// announced as new.
	seed := media.Snapshot().Latest()
	err = r.store.Upsert(ctx, subscription.Subscription{
		ChatID:   chatID,
		AnimeID:  media.ID,
		Title:    title,
		Episodes: seed,
	})
	if err != nil {
		r.log.Error("subscription save failed",
			logx.String("chat_id", chatID), logx.Int("anime_id", media.ID), logx.Err(err))
		return r.deliver(ctx, req, edit, tgui.Esc("Something went wrong, try again later."), nil)
	}

	parts := []tgui.H{
		tgui.Raw("✅ " + tgui.B("Subscription Added!").String()),
		tgui.Esc(fmt.Sprintf("You will now receive notifications for new episodes of %s.", title)),
	}
	if media.Title.English != "" && media.Title.English != media.Title.Romaji {
		parts = append(parts, tgui.JoinH(" ", tgui.B("English Title:"), tgui.Esc(media.Title.English)))
	}
	if media.Episodes != nil {
		parts = append(parts, tgui.JoinH(" ", tgui.B("Total Episodes:"), tgui.Esc(strconv.Itoa(*media.Episodes))))
	}
	if media.NextAiringEpisode != nil {
		parts = append(parts, tgui.JoinH(" ", tgui.B("Next Episode:"), tgui.Esc(anilist.FormatAiringInfo(media.NextAiringEpisode))))
	}
	if len(media.Genres) > 0 {
		genres := media.Genres
		if len(genres) > 3 {
			genres = genres[:3]
		}
		parts = append(parts, tgui.JoinH(" ", tgui.B("Genres:"), tgui.Esc(strings.Join(genres, ", "))))
	}
	return r.deliver(ctx, req, edit, tgui.JoinH("\n", parts...), nil)
}

// deliver either edits the referenced message or sends a fresh one.
func (r *Router) deliver(ctx context.Context, req *Request, edit *kit.MessageRef, html tgui.H, markup any) error {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup}
	if edit != nil {
		return r.adapter.EditText(ctx, *edit, html.String(), opt)
	}
	_, err := r.adapter.SendText(ctx, req.Chat, html.String(), opt)
	return err
}

func (r *Router) cmdUnsubscribe(ctx context.Context, req *Request) error {
	title := strings.TrimSpace(strings.Join(req.Args, " "))
	if title == "" {
		return r.reply(ctx, req, tgui.JoinH(" ",
			tgui.Esc("Usage:"), tgui.B("/unsubscribe <anime name>")))
	}

	removed, err := r.store.RemoveByTitle(ctx, chatKey(req.Chat), title)
	if err != nil {
		r.log.Error("unsubscribe failed", logx.String("chat_id", chatKey(req.Chat)), logx.Err(err))
		return r.reply(ctx, req, tgui.Esc("Something went wrong, try again later."))
	}
	if removed {
		return r.reply(ctx, req, tgui.Esc(fmt.Sprintf("Successfully unsubscribed from %s.", title)))
	}
	return r.reply(ctx, req, tgui.Esc(fmt.Sprintf("Could not find a subscription for %s.", title)))
}

func (r *Router) cmdUnsubscribeAll(ctx context.Context, req *Request) error {
	count, err := r.store.RemoveAll(ctx, chatKey(req.Chat))
	if err != nil {
		r.log.Error("unsubscribe_all failed", logx.String("chat_id", chatKey(req.Chat)), logx.Err(err))
		return r.reply(ctx, req, tgui.Esc("Something went wrong, try again later."))
	}
	return r.reply(ctx, req, tgui.Esc(fmt.Sprintf("Successfully unsubscribed from %d anime.", count)))
}

func (r *Router) cmdList(ctx context.Context, req *Request) error {
	subs, err := r.store.ListForChat(ctx, chatKey(req.Chat))
	if err != nil {
		r.log.Error("list failed", logx.String("chat_id", chatKey(req.Chat)), logx.Err(err))
		return r.reply(ctx, req, tgui.Esc("Something went wrong, try again later."))
	}
	if len(subs) == 0 {
		return r.reply(ctx, req, tgui.Esc("There are no anime subscriptions in this chat."))
	}

	parts := []tgui.H{
		tgui.Raw("📺 " + tgui.B("Anime Subscriptions").String()),
		tgui.Esc("Here are your current subscriptions:"),
	}
	for _, sub := range subs {
		parts = append(parts, tgui.B(sub.Title))
		// Airing details are best-effort; the list still renders when
		// the feed is down.
		media, err := r.catalog.Details(ctx, sub.AnimeID)
		if err != nil {
			parts = append(parts, tgui.Esc("No airing information available"))
			continue
		}
		var lines []tgui.H
		if media.Episodes != nil {
			lines = append(lines, tgui.Esc(fmt.Sprintf("Episodes: %d/%d", sub.Episodes, *media.Episodes)))
		}
		switch {
		case media.NextAiringEpisode != nil:
			lines = append(lines, tgui.Esc(anilist.FormatAiringInfo(media.NextAiringEpisode)))
		case media.Status == "FINISHED":
			lines = append(lines, tgui.Esc("Series completed"))
		}
		if len(lines) == 0 {
			lines = append(lines, tgui.Esc("No airing information available"))
		}
		parts = append(parts, tgui.JoinH("\n", lines...))
	}
	return r.reply(ctx, req, tgui.JoinH("\n", parts...))
}

func (r *Router) cmdAbout(ctx context.Context, req *Request) error {
	parts := []tgui.H{
		tgui.B("About This Bot"),
		tgui.Esc("This bot notifies you when new episodes of your favorite anime are released."),
		tgui.B("How Notifications Work"),
		tgui.Esc("The bot periodically checks for new episodes of every series this chat follows. " +
			"When one is found, it posts a notification in the chat where you ran /subscribe."),
		tgui.B("Commands"),
	}
	for _, c := range r.ordered {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		parts = append(parts, tgui.JoinH(" ", tgui.Raw("•"), tgui.B(usage), tgui.Esc("- "+c.Description)))
	}
	parts = append(parts, tgui.Esc("Episode data comes from AniList."))
	return r.reply(ctx, req, tgui.JoinH("\n", parts...))
}
