package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"barefoot_sync/internal/adapters/observability"
	"barefoot_sync/internal/bootstrap"
	"barefoot_sync/internal/shared"
)

var (
	cfg  shared.Config
	deps *bootstrap.App
)

var rootCmd = &cobra.Command{
	Use:           "syncer",
	Short:         "Sync Barefoot properties into the local catalogue",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = shared.Load()
		if err != nil {
			return err
		}
		log.Logger = observability.NewLogger(cfg.AppEnv, "syncer")
		deps, err = bootstrap.Build(cmd.Context(), cfg)
		return err
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if deps != nil {
		deps.Close()
	}
	if err != nil {
		log.Error().Err(err).Msg("syncer failed")
		stop()
		os.Exit(1)
	}
}
