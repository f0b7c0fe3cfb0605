// Package app wires the bot together: config, logging, storage, the
// feed client, the sweep engine, the dispatcher, and the Telegram
// transport.
package app

import (
	"context"
	"strings"
	"time"

	"airabot/internal/anilist"
	"airabot/internal/config"
	"airabot/internal/dispatch"
	"airabot/internal/eventbus"
	"airabot/internal/runtime/supervisor"
	"airabot/internal/subscription"
	"airabot/internal/sweep"
	"airabot/internal/tier"
	kit "airabot/internal/transport"
	telegram "airabot/internal/transport/telegram"
	logx "airabot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store      *subscription.Store
	feed       *anilist.Client
	adapter    *telegram.Adapter
	router     *telegram.Router
	dispatcher *dispatch.Dispatcher
	engine     *sweep.Engine

	sweepEnabled bool
	updates      chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := subscription.Open(scfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	acfg, err := mapAniListConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	feed := anilist.New(acfg, log)

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	swcfg, err := mapSweepConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	dispatcher := dispatch.New(dcfg, adapter, bus, log)
	engine := sweep.NewEngine(swcfg, store, feed, dispatcher,
		tier.NewStatic(cfg.Tier.FastChatIDs),
		sweep.NewTierCache(swcfg.TierCacheTTL, nil),
		bus, log)
	router := telegram.NewRouter(adapter, store, feed, log)

	return &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          bus,
		store:        store,
		feed:         feed,
		adapter:      adapter,
		router:       router,
		dispatcher:   dispatcher,
		engine:       engine,
		sweepEnabled: cfg.Sweep.Enabled,
		updates:      make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log)

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapTelegramConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapAniListConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSweepConfig(cfg); err != nil {
			return err
		}
		_, err := mapDispatchConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		a.router.DispatchLoop(c, a.updates)
		return nil
	})

	// Best-effort: publish the command list to Telegram's /menu.
	a.sup.Go0("menu.update", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})

	if a.sweepEnabled {
		a.sup.Go("sweep.run", func(c context.Context) error {
			return a.engine.Run(c)
		})
	} else {
		a.log.Info("sweep disabled via config")
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.startReloadLoop()

	// Debug-level event trace; components publish, nothing depends on it.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("started", logx.Bool("sweep_enabled", a.sweepEnabled))
	return nil
}

// startReloadLoop applies hot config updates. Logging and tier
// membership apply live; everything constructed at boot (telegram token,
// storage path, feed client, sweep cadence, dispatch rate) needs a
// restart and is only warned about.
func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Debug("config change summary", fields...)
				lastApplied = newCfg

				for _, s := range sections {
					switch s {
					case "logging":
						a.logs.Apply(logx.Config{
							Level:   newCfg.Logging.Level,
							Console: newCfg.Logging.Console,
							File: logx.FileConfig{
								Enabled: newCfg.Logging.File.Enabled,
								Path:    newCfg.Logging.File.Path,
							},
						})
					case "tier":
						a.engine.SetChecker(tier.NewStatic(newCfg.Tier.FastChatIDs))
						a.log.Info("tier membership updated",
							logx.Int("fast_chat_count", len(newCfg.Tier.FastChatIDs)))
					default:
						a.log.Warn("config section changed; restart required for changes to take effect",
							logx.String("section", s))
					}
				}
				a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
			}
		}
	})
}

// Stop shuts the app down in stages, each with its own deadline:
// stop intake (adapter), cancel workers, wait, then close resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = a.adapter.Stop(stopCtx)
	cancel()

	if a.sup != nil {
		a.sup.Cancel()
		waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := a.sup.Wait(waitCtx); err != nil {
			a.log.Warn("workers did not drain before deadline", logx.Err(err))
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
