package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/sylph/internal/bridge"
	"github.com/nextlevelbuilder/sylph/internal/bus"
	"github.com/nextlevelbuilder/sylph/internal/config"
	"github.com/nextlevelbuilder/sylph/internal/dispatch"
	"github.com/nextlevelbuilder/sylph/internal/fleet"
	"github.com/nextlevelbuilder/sylph/internal/moderation"
	"github.com/nextlevelbuilder/sylph/internal/plugin"
	"github.com/nextlevelbuilder/sylph/internal/sched"
	"github.com/nextlevelbuilder/sylph/internal/store"
	"github.com/nextlevelbuilder/sylph/internal/store/file"
	"github.com/nextlevelbuilder/sylph/internal/store/pg"
	"github.com/nextlevelbuilder/sylph/internal/tracing"
)

func runBot() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Bridges) == 0 {
		slog.Error("no bridges configured; set bridges in the config file or SYLPH_BRIDGE_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Database.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}()

	classifier := moderation.NewClassifier()
	if cfg.Moderation.WordsFile != "" {
		if err := classifier.Watch(config.ExpandHome(cfg.Moderation.WordsFile)); err != nil {
			slog.Warn("word list watch failed, using built-in list only", "error", err)
		}
		defer classifier.Close()
	}

	registry := plugin.NewRegistry(prefixAffix(cfg.Prefix))
	if err := registerBuiltins(registry); err != nil {
		slog.Error("failed to register plugins", "error", err)
		os.Exit(1)
	}

	msgBus := bus.New()
	defer msgBus.Close()
	manager := fleet.NewManager(msgBus)

	queue := dispatch.NewQueue(time.Duration(cfg.Limits.QueueStepMS) * time.Millisecond)
	roles := plugin.Roles{Owners: cfg.Owners, Mods: cfg.Mods, Prems: cfg.Prems}

	for _, b := range cfg.Bridges {
		client, err := bridge.New(b.Name, b.URL, msgBus, cfg.Limits.SendPerMinute)
		if err != nil {
			slog.Error("failed to create bridge client", "name", b.Name, "error", err)
			os.Exit(1)
		}
		d := dispatch.New(&dispatch.Dispatcher{
			Opts: dispatch.Options{
				SelfOnly:       cfg.Opts.Self,
				Listen:         cfg.Opts.Listen,
				StatusOnly:     cfg.Opts.StatusOnly,
				Restrict:       cfg.Opts.Restrict,
				Queue:          cfg.Opts.Queue,
				AutoRead:       cfg.Opts.AutoRead,
				SpamWindowMS:   cfg.Limits.SpamWindowMS,
				WarnLimit:      cfg.Limits.WarnLimit,
				ToxicWarnLimit: cfg.Limits.ToxicWarnLimit,
				APIKeys:        cfg.APIKeys,
			},
			Registry:  registry,
			Stores:    stores,
			Transport: client,
			Toxic:     classifier,
			Roles:     roles,
			Queue:     queue,
		})
		manager.Add(&fleet.Conn{Client: client, Dispatcher: d})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(ctx) })

	if cfg.Flush.Schedule != "" {
		flusher, err := sched.NewFlusher(cfg.Flush.Schedule, stores.Flush)
		if err != nil {
			slog.Error("invalid flush schedule", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return flusher.Run(ctx) })
	}

	slog.Info("sylph running", "bridges", len(cfg.Bridges), "backend", cfg.Database.Backend)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("runtime stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("sylph stopped")
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	switch cfg.Database.Backend {
	case "postgres":
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg.New(db), nil
	default:
		return file.Open(config.ExpandHome(cfg.Database.Path))
	}
}

// prefixAffix turns the configured prefix character set into the registry
// default: any single leading character from the set.
func prefixAffix(chars string) *plugin.Affix {
	out := make([]string, 0, len(chars))
	for _, r := range chars {
		out = append(out, string(r))
	}
	return plugin.Literals(out...)
}
