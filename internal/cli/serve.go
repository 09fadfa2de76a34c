package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/engine"
	"github.com/parleybot/parley/internal/gateway"
	"github.com/parleybot/parley/internal/llm"
	"github.com/parleybot/parley/internal/pricing"
	"github.com/parleybot/parley/internal/relay"
	"github.com/parleybot/parley/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the parley server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			db, err := store.Open(paths.DatabasePath(), log)
			if err != nil {
				return err
			}
			defer db.Close()
			cs := store.NewConversationStore(db)

			catalog := pricing.NewCatalog(
				cfg.Pricing.CatalogURL,
				paths.Pricing,
				time.Duration(cfg.Pricing.CacheTTLDays)*24*time.Hour,
				log,
			)
			calc := pricing.NewCalculator(catalog, cfg.Pricing.ExchangeRate, cfg.Pricing.Precision, cfg.Pricing.LocalCurrency)

			client := llm.NewOpenAIClient(
				cfg.API.BaseURL,
				cfg.API.Key,
				time.Duration(cfg.API.TimeoutSeconds)*time.Second,
			)

			srv := gateway.New(cfg, cs, log)

			sinks := engine.MultiSink{srv}
			var rly *relay.Relay
			if cfg.Relay.Enabled {
				rly = relay.New(cfg.Relay, log)
				sinks = append(sinks, rly)
			}

			eng := engine.New(client, cs, calc, sinks, engine.Config{
				TurnDelay:   time.Duration(cfg.Engine.TurnDelayMs) * time.Millisecond,
				MaxTokens:   cfg.Engine.MaxTokens,
				Temperature: cfg.Engine.Temperature,
				MaxTurns:    cfg.Engine.MaxTurns,
			}, log)
			defer eng.Stop()
			srv.AttachEngine(eng)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if rly != nil {
				go func() {
					if err := rly.Start(ctx); err != nil && ctx.Err() == nil {
						log.Warn().Err(err).Msg("IRC relay stopped")
					}
				}()
				defer rly.Stop()
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind address")

	return cmd
}
