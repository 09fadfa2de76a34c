package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show parley configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("parley %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Pricing:  %s\n", paths.Pricing)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Gateway:  %s:%d\n", cfg.Gateway.Bind, cfg.Gateway.Port)
			fmt.Printf("API:      %s\n", cfg.API.BaseURL)
			fmt.Printf("Models:   %s\n", strings.Join(cfg.Models, ", "))
			fmt.Printf("Pricing:  %s @ %.4f (precision %d)\n",
				cfg.Pricing.LocalCurrency, cfg.Pricing.ExchangeRate, cfg.Pricing.Precision)
			if cfg.Relay.Enabled {
				fmt.Printf("Relay:    %s:%d %s as %s\n",
					cfg.Relay.Server, cfg.Relay.Port, cfg.Relay.Channel, cfg.Relay.Nick)
			} else {
				fmt.Println("Relay:    (disabled)")
			}

			if err := config.Validate(cfg); err != nil {
				fmt.Printf("\nValidation: %v\n", err)
			}
			return nil
		},
	}
}
