package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/alerting"
	"spxreplay/internal/config"
	"spxreplay/internal/metrics"
	"spxreplay/internal/playback"
	"spxreplay/internal/render"
	"spxreplay/internal/source"
	"spxreplay/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newYahoo() *source.Yahoo {
	cfg := a.Config.Source.Yahoo
	return source.NewYahoo(source.YahooOptions{
		BaseURL:   cfg.BaseURL,
		Symbol:    cfg.Symbol,
		Range:     cfg.Range,
		Interval:  cfg.Interval,
		RSIPeriod: cfg.RSIPeriod,
		Timeout:   cfg.Timeout,
		ProxyURL:  cfg.Proxy,
	}, a.Logger)
}

// newSource builds the configured batch source, wrapped in the Redis cache
// when enabled. The returned closer releases store and cache connections.
func (a *App) newSource(ctx context.Context) (source.Source, func(), error) {
	var (
		src     source.Source
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch a.Config.Source.Kind {
	case config.SourceHTTP:
		cfg := a.Config.Source.HTTP
		src = source.NewHTTP(source.HTTPOptions{URL: cfg.URL, Timeout: cfg.Timeout, UserAgent: cfg.UserAgent}, a.Logger)
	case config.SourceYahoo:
		src = a.newYahoo()
	case config.SourceFile:
		src = source.NewFile(a.Config.Source.File.Path)
	case config.SourcePostgres:
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		if store == nil {
			return nil, nil, errors.New("database not configured; cannot replay stored bars")
		}
		closers = append(closers, closeStore)
		cfg := a.Config.Source.Postgres
		src = source.NewPostgres(store, cfg.Symbol, cfg.Limit)
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", a.Config.Source.Kind)
	}

	if a.Config.Cache.Enabled {
		cfg := a.Config.Cache
		cache := source.NewRedisCache(source.RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			a.Logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable; cache reads will fall through")
		}
		closers = append(closers, func() { _ = cache.Close() })
		src = source.NewCached(src, cache, cfg.KeyPrefix, cfg.TTL, a.Logger)
	}

	a.Logger.Info().Str("source", src.Name()).Bool("cache", a.Config.Cache.Enabled).Msg("batch source ready")
	return src, closeAll, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.Timeout, a.Logger)
	}
	return nil
}

// sinks assembles the renderers and status sinks selected in config.
func (a *App) sinks(hub *render.Hub) (*render.Multi, render.Statuses, *alerting.DecisionSink) {
	renderer := &render.Multi{}
	var statuses render.Statuses

	if a.Config.Render.Log {
		logSink := render.NewLogSink(a.Logger)
		renderer.Add("log", logSink)
		statuses = append(statuses, logSink)
	}
	if cfg := a.Config.Render.PNG; cfg.Enabled {
		renderer.Add("png", render.NewPNGSink(render.PNGOptions{
			Path:   cfg.Path,
			Width:  cfg.Width,
			Height: cfg.Height,
			Title:  a.Config.Source.Yahoo.Symbol,
		}, a.Logger))
	}
	if hub != nil {
		renderer.Add("ws", hub)
		statuses = append(statuses, hub)
	}

	var decisions *alerting.DecisionSink
	if a.Config.Alerting.Enabled {
		if notifier := a.newNotifier(); notifier != nil {
			decisions = alerting.NewDecisionSink(notifier, a.Config.Alerting.Symbol, a.Config.Alerting.Timeout, a.Logger)
			renderer.Add("alerts", decisions)
		} else {
			a.Logger.Warn().Msg("alerting enabled without a channel; decision alerts disabled")
		}
	}
	return renderer, statuses, decisions
}

// Run replays the configured source until interrupted or a sink fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, closeSource, err := a.newSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	var hub *render.Hub
	if a.Config.Server.Enabled {
		hub = render.NewHub(a.Logger)
		defer hub.Close()
	}
	renderer, statuses, decisions := a.sinks(hub)
	if renderer.Len() == 0 {
		a.Logger.Warn().Msg("no render sinks enabled; frames are discarded")
	}
	if decisions != nil {
		defer decisions.Wait()
	}

	m := metrics.NewMetrics(nil)
	engine := playback.New(playback.Options{
		WindowSize:     a.Config.Playback.WindowSize,
		UpdateInterval: a.Config.Playback.UpdateInterval,
		Status:         statuses,
		Observer:       m,
	}, src, renderer, a.Logger)

	if hub != nil {
		srv := newServer(a.Config.Server.Addr, engine, hub, m, a.Logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error().Err(err).Str("addr", a.Config.Server.Addr).Msg("http server failed")
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.Logger.Info().Str("source", src.Name()).Msg("starting playback service")
	err = engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("playback terminated with error")
		return err
	}

	a.Logger.Info().Msg("playback service stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored bars.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol string
	Limit  int
}

// IngestOptions configure the ingest job.
type IngestOptions struct {
	Symbol string
	Every  time.Duration
	DryRun bool
}
