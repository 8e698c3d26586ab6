package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevemurr/story-sync/auth"
	"github.com/stevemurr/story-sync/config"
	"github.com/stevemurr/story-sync/feed"
	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/i18n"
	"github.com/stevemurr/story-sync/reportdb"
	"github.com/stevemurr/story-sync/store"
)

// app is the object graph shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	tokens *auth.FileTokens
	client *gateway.Client
	db     *reportdb.DB
	feed   *feed.Synchronizer
}

// newLogger builds the slog logger described by cfg. Verbose forces debug.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newApp loads configuration and wires the gateway, the local database and
// the synchronizer. reg may be nil.
func newApp(opts *RootOptions, logOut io.Writer, reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, opts.Verbose, logOut)

	s, err := store.New(cfg.Store.Backend, cfg.Store.DataDir, cfg.Store.DSN)
	if err != nil {
		logger.Error("create store", "backend", cfg.Store.Backend, "error", err)
		return nil, &ExitError{
			Code:    ExitFailure,
			Message: i18n.T(cfg.Locale, i18n.MsgStorage),
			Err:     fmt.Errorf("%w: create store (backend=%s): %w", reportdb.ErrStorageUnavailable, cfg.Store.Backend, err),
		}
	}
	db := reportdb.New(s, logger)

	tokens := auth.NewFileTokens(cfg.Store.DataDir)
	client := gateway.NewClient(cfg.API.BaseURL, tokens, gateway.Options{
		Timeout:       cfg.API.Timeout,
		RetryAttempts: cfg.API.RetryAttempts,
		Logger:        logger,
	})

	location, _ := cfg.LocationFilter()
	synchronizer := feed.New(db, client, feed.Options{
		List:                 gateway.ListOptions{Size: cfg.Feed.PageSize, Location: location},
		HydrationConcurrency: cfg.Feed.HydrationConcurrency,
		Logger:               logger,
		Registerer:           reg,
	})
	if opts.Verbose {
		synchronizer.Subscribe(feed.LogNotifier(logger))
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		tokens: tokens,
		client: client,
		db:     db,
		feed:   synchronizer,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
