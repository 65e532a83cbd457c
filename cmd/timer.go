package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tradingbot/bus"
	"tradingbot/config"
	"tradingbot/logging"
	"tradingbot/timer"
)

var timerPhase string

// timerCmd is the one-shot phase dispatcher: every invocation publishes
// the request for the current phase and advances the cycle. Run it
// periodically from cron or a systemd timer.
var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Dispatch the next pipeline phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log, err := logging.New(cfg.Log.Path, "timer", cfg.Log.Level)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := os.MkdirAll(cfg.Run.Path, 0o755); err != nil {
			return err
		}

		b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		dispatcher := timer.New(b, filepath.Join(cfg.Run.Path, "timer-daemon.state"),
			cfg.Orders.Lookahead, cfg.Orders.Lookbehind, log)
		if timerPhase != "" {
			return dispatcher.Publish(ctx, timerPhase)
		}
		return dispatcher.Tick(ctx)
	},
}

func init() {
	timerCmd.Flags().StringVar(&timerPhase, "phase", "", "dispatch this phase instead of rotating (trends, orders or profit)")
	rootCmd.AddCommand(timerCmd)
}
