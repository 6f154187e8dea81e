package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch CHANNEL",
	Short: "Follow an event channel, e.g. battery.level",
	Long: `Follow an event channel until interrupted or until another client
replaces the subscription. Channels: battery.isLowPowerMode, battery.state,
battery.level, connectivity.state.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	channel, err := resolveChannel(args[0])
	if err != nil {
		return err
	}

	client, closeFn, err := dial(busFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	err = client.Watch(ctx, channel, timeoutFlag, func(payload any) {
		fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), formatPayload(payload))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err == nil {
		fmt.Fprintln(out, "subscription ended")
	}
	return err
}
