package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/instarepost/core/cmd"
	"github.com/m3rciful/instarepost/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(*cobra.Command, []string) error {
	return corecmd.Run(serveOptions())
}

func serveOptions() corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := app.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*app.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}
