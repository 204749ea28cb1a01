package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"barefoot_sync/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full sync and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		res := deps.Sync.TriggerSync(cmd.Context())
		if err := printJSON(res); err != nil {
			return err
		}
		if res.State != domain.StateCompleted {
			return fmt.Errorf("sync ended in state %s: %s", res.State, res.Message)
		}
		return nil
	},
}

var watchEvery time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a sync now and then on every interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		every := watchEvery
		if every <= 0 {
			every = cfg.Sync.Interval
		}
		if every <= 0 {
			return errors.New("no interval: pass --every or set SYNC_INTERVAL")
		}
		ctx := cmd.Context()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			res := deps.Sync.TriggerSync(ctx)
			log.Info().Str("state", string(res.State)).Int("count", res.Count).Str("next_in", every.String()).Msg(res.Message)
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the Barefoot service is reachable and accepts the credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := deps.Sync.TestConnection(cmd.Context())
		if err := printJSON(st); err != nil {
			return err
		}
		if !st.Success {
			return errors.New(st.Message)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Move local properties missing from Barefoot to draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		res := deps.Sync.CleanupOrphans(cmd.Context())
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List the property operations the service offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := deps.Sync.PropertyOperations(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(ops)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchEvery, "every", 0, "interval between runs (defaults to SYNC_INTERVAL)")
	rootCmd.AddCommand(runCmd, watchCmd, testConnectionCmd, cleanupCmd, operationsCmd)
}
