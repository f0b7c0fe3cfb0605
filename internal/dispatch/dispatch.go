// Package dispatch delivers release announcements to chats. Delivery is
// strictly at-most-once: a failed send is logged and dropped, never retried.
package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/time/rate"

	"airabot/internal/anilist"
	"airabot/internal/eventbus"
	"airabot/internal/transport"
	logx "airabot/pkg/logx"
)

// Event types published on the bus.
const (
	EventDispatchSent   = "dispatch.sent"
	EventDispatchFailed = "dispatch.failed"
)

// Outcome is attached to dispatch events.
type Outcome struct {
	ChatID     string
	AnimeID    int
	NewEpisode int
	Err        string `json:",omitempty"`
}

// Sender is the slice of the transport adapter the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Config struct {
	// RatePerSec paces outbound sends across all chats. Telegram caps
	// bots around 30 msg/s globally; stay well below.
	RatePerSec int
}

type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	bus     eventbus.Bus
	log     logx.Logger
}

func New(cfg Config, sender Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		bus:     bus,
		log:     log.With(logx.String("comp", "dispatch")),
	}
}

// NotifyEpisode sends one release announcement. Exactly one attempt is
// made; on failure the announcement is lost for this episode and the
// caller is expected NOT to roll back progress.
func (d *Dispatcher) NotifyEpisode(ctx context.Context, chatID string, media *anilist.Media, newEpisode int) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("dispatch: bad chat id %q: %w", chatID, err)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	text := releaseMessage(media, newEpisode)
	_, err = d.sender.SendText(ctx, transport.ChatTarget{ChatID: id}, text, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		d.log.Warn("announcement send failed",
			logx.String("chat_id", chatID),
			logx.Int("anime_id", media.ID),
			logx.Int("episode", newEpisode),
			logx.Err(err))
		d.bus.Publish(eventbus.Event{Type: EventDispatchFailed, Data: Outcome{
			ChatID: chatID, AnimeID: media.ID, NewEpisode: newEpisode, Err: err.Error(),
		}})
		return err
	}

	d.log.Debug("announcement sent",
		logx.String("chat_id", chatID),
		logx.Int("anime_id", media.ID),
		logx.Int("episode", newEpisode))
	d.bus.Publish(eventbus.Event{Type: EventDispatchSent, Data: Outcome{
		ChatID: chatID, AnimeID: media.ID, NewEpisode: newEpisode,
	}})
	return nil
}
