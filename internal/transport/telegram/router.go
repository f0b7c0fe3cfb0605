package telegram

import (
	"context"
	"strings"
	"time"

	"airabot/internal/anilist"
	"airabot/internal/subscription"
	kit "airabot/internal/transport"
	logx "airabot/pkg/logx"
	"airabot/pkg/tgui"
)

// SubscriptionStore is the slice of the store the router needs.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub subscription.Subscription) error
	RemoveByTitle(ctx context.Context, chatID, title string) (bool, error)
	RemoveAll(ctx context.Context, chatID string) (int, error)
	ListForChat(ctx context.Context, chatID string) ([]subscription.Subscription, error)
}

// Catalog is the slice of the feed client the router needs.
type Catalog interface {
	Search(ctx context.Context, search string) ([]anilist.Media, error)
	Details(ctx context.Context, animeID int) (*anilist.Media, error)
}

type Command struct {
	Name        string
	Description string
	Usage       string
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string // callback payload (raw string)
}

// Router turns transport updates into command executions.
type Router struct {
	adapter kit.Adapter
	store   SubscriptionStore
	catalog Catalog
	log     logx.Logger

	commands  map[string]*Command
	ordered   []*Command
	callbacks map[string]func(ctx context.Context, req *Request) error
	handler   HandlerFunc
}

const callbackScope = "sub"

func NewRouter(adapter kit.Adapter, store SubscriptionStore, catalog Catalog, log logx.Logger) *Router {
	r := &Router{
		adapter:   adapter,
		store:     store,
		catalog:   catalog,
		log:       log.With(logx.String("comp", "router")),
		commands:  map[string]*Command{},
		callbacks: map[string]func(ctx context.Context, req *Request) error{},
	}
	r.registerCommands()
	r.handler = Chain(r.route,
		MWRequestLog(r.log),
		MWPanicRecover(r.log),
		MWTimeout(30*time.Second),
	)
	return r
}

func (r *Router) register(c *Command) {
	r.commands[c.Name] = c
	r.ordered = append(r.ordered, c)
}

// MenuCommands returns the command list for the platform menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// DispatchLoop consumes updates until the channel closes or ctx ends.
// Each update runs in its own goroutine so a slow search doesn't block
// the rest of the chat.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go func(up kit.Update) {
				req := r.buildRequest(up)
				if req == nil {
					return
				}
				_ = r.handler(ctx, req)
			}(up)
		}
	}
}

func (r *Router) buildRequest(up kit.Update) *Request {
	switch up.Kind {
	case kit.UpdateMessage:
		m := up.Message
		if m == nil {
			return nil
		}
		cmd, args, ok := parseCommand(m.Text)
		if !ok {
			return nil
		}
		return &Request{
			Update:  up,
			Chat:    kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
			FromID:  m.FromID,
			Command: cmd,
			Args:    args,
		}
	case kit.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return nil
		}
		scope, action, payload := tgui.Split(cb.Data)
		if scope != callbackScope {
			return nil
		}
		return &Request{
			Update:  up,
			Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
			FromID:  cb.FromID,
			Command: scope + ":" + action,
			Payload: payload,
		}
	default:
		return nil
	}
}

func (r *Router) route(ctx context.Context, req *Request) error {
	if req.Update.Kind == kit.UpdateCallback {
		h, ok := r.callbacks[req.Command]
		if !ok {
			return r.adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Unknown action.")
		}
		return h(ctx, req)
	}

	c, ok := r.commands[req.Command]
	if !ok {
		// Not our command (or another bot's); stay silent.
		return nil
	}
	return c.Handle(ctx, req)
}

// parseCommand extracts "/cmd arg arg" from message text. The "@botname"
// suffix Telegram adds in groups is dropped.
func parseCommand(text string) (cmd string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd = fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

func (r *Router) reply(ctx context.Context, req *Request, html tgui.H) error {
	_, err := r.adapter.SendText(ctx, req.Chat, html.String(), &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}
