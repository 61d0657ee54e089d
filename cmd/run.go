package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewbot/internal/bot"
	"crewbot/internal/common"
	"crewbot/internal/config"
	"crewbot/internal/presence"
	"crewbot/internal/roster"
	"crewbot/internal/server"
	"crewbot/internal/store"
	"crewbot/internal/supervisor"
	"crewbot/internal/tracker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Track the crew, serve the discord bot and the metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	client := newRosterClient(cfg)
	enrichment := roster.NewEnrichmentCache(client, cfg.Enrichment.Refresh)
	reconciler, err := tracker.Restore(ctx, db, client.Regions(), time.Now(), cfg.Store.RecoveryGrace)
	if err != nil {
		return err
	}

	// Services stop within ShutdownTimeout; the tree waits longer before abandoning them
	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: 2 * cfg.Tracker.ShutdownTimeout})
	var alerter store.Alerter
	var publishers []tracker.Publisher

	if cfg.Discord.Enabled {
		discordBot := bot.New(bot.Settings{
			Token:        cfg.Discord.Token,
			Prefix:       cfg.Discord.Prefix,
			BoardChannel: cfg.Discord.BoardChannel,
			AlertChannel: cfg.Discord.AlertChannel,
		}, db)
		alerter = discordBot
		publishers = append(publishers, discordBot)
		tree.AddEdge(discordBot)
	}

	sink := store.NewSink(db, cfg.Store.MaxBacklogEvents, alerter)

	if cfg.HTTP.Enabled {
		monitor := server.NewMonitor(3*cfg.Tracker.Interval, sink.Pending)
		monitor.TrackEnrichment(enrichment.RefreshedAt)
		publishers = append(publishers, monitor)
		tree.AddEdge(server.New(cfg.HTTP.Address, server.NewRouter(monitor), cfg.Tracker.ShutdownTimeout))
	}

	presenceTracker := tracker.New(
		client,
		enrichment,
		presence.NewResolver(cfg.Enrichment.Tags),
		reconciler,
		sink,
		tracker.Settings{Interval: cfg.Tracker.Interval, ShutdownTimeout: cfg.Tracker.ShutdownTimeout},
		publishers...,
	)
	tree.AddCore(presenceTracker)

	log.Info().Int("regions", len(cfg.Regions)).Bool("discord", cfg.Discord.Enabled).Bool("http", cfg.HTTP.Enabled).Msg("Starting crewbot")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("crewbot stopped")
	return nil
}

func newRosterClient(cfg *config.Config) *roster.Client {
	header := map[string]string{}
	if cfg.Proxy.APIKeyHeader != "" {
		header[cfg.Proxy.APIKeyHeader] = cfg.Proxy.APIKey
	}
	proxy := common.NewProxy(header, cfg.Proxy.Timeout, common.NewRateLimiter(cfg.Proxy.Restrictions, cfg.Proxy.RateLimitBackoff))

	regions := make([]roster.Endpoint, 0, len(cfg.Regions))
	for _, region := range cfg.Regions {
		regions = append(regions, roster.Endpoint{Name: region.Name, URL: region.URL})
	}
	return roster.NewClient(proxy, regions, cfg.Enrichment.URL, roster.BreakerSettings{
		ConsecutiveFailures: cfg.Proxy.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Proxy.Breaker.OpenTimeout,
	})
}
